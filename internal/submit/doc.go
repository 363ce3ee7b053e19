// Package submit builds the HTCondor submit description for an imaging
// batch and expands a manifest into the per-job invocations it declares.
//
// Every job runs the same executable with the same imaging parameters; only
// the manifest entry ($(input_data)) and the process index ($(Process))
// vary. Retries, file transfer and placement are left to the scheduler.
package submit
