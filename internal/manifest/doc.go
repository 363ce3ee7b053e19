// Package manifest reads, writes and generates the input manifest that
// drives a batch: one entry per line, one scheduler job per entry.
//
// An entry may hold several comma-separated inputs when Generate groups
// files to hit a requested number of parallel jobs (the breadth).
package manifest
