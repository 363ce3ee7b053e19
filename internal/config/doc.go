// Package config loads, normalizes, and validates htcimaging configuration.
//
// It supplies defaults for the imaging batch (tclean parameters, resource
// requests, retry policy, container image), expands user paths including
// tilde shortcuts, reads TOML files, and honours environment fallbacks such
// as HTCIMAGING_CONTAINER_IMAGE. Every command resolves its settings through
// this package so manifests, submit descriptions, and the organizer agree on
// file names and directories.
package config
