// Package logging assembles structured slog loggers used across htcimaging.
//
// It owns the console and JSON handlers, routes output to stderr and the
// state-directory log file, stamps every record from one invocation with a
// session id, and exposes context-aware helpers so scheduler and organizer
// code can tag lines with the cluster id, run id, and batch phase.
//
// Prefer these constructors over hand-rolled slog setup so every command
// emits records with the same shape.
package logging
