// Package history turns scheduler job ads (condor_history -json) into job
// records and derives the batch reports: summary statistics, concurrency
// over time, the completion curve, duration histograms and per-job phases.
//
// A timestamp of zero in a job ad means the scheduler never recorded the
// event; derived durations that depend on it stay absent.
package history
