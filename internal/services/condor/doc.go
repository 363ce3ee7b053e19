// Package condor wraps the HTCondor command-line tools used by a batch:
// condor_submit to queue the rendered submit description and condor_history
// to fetch the job ads of a finished cluster as JSON.
//
// Command execution goes through an Executor so tests can replay captured
// scheduler output without a pool.
package condor
