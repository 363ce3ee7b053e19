// Package organizer sorts the outputs a batch leaves in its working
// directory into fixed category directories by file-name suffix.
//
// The sweep only looks at regular files directly inside the directory, so
// running it again on an organized directory moves nothing. Destination
// directories are created up front even when no file matches. A per-file
// failure is recorded in the Result and the sweep continues.
package organizer
