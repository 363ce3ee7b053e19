// Package main implements the htcimaging command-line interface.
//
// The CLI builds chunk manifests, renders and submits the imaging job
// description to HTCondor, organizes job outputs, plans spectral-window
// chunks, and reports on job history and per-job timing files. Reporting
// commands accept --json for machine-readable output.
package main
