// Package preflight provides readiness checks for the scheduler binaries
// and filesystem paths that htcimaging depends on.
//
// The CLI "htcimaging status" command renders every result; "submit run"
// calls RunAll first and refuses to submit when a check fails.
package preflight
