// Package services defines shared utilities consumed by the batch commands and
// the scheduler integration.
//
// Key responsibilities:
//   - Context helpers that stamp cluster ids, run ids, and phase names so log
//     lines from one invocation can be correlated.
//   - Structured error markers plus the Wrap helper, so callers can tell a
//     scheduler failure from a configuration or validation problem.
//   - Sub-packages wrap the external command-line tools the batch relies on.
package services
