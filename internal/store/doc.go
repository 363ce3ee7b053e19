// Package store persists batch submissions and imported scheduler job
// history in a SQLite database under the state directory.
//
// The schema is applied from embedded migrations on Open. Job records are
// grouped per cluster; importing a cluster that is already stored is a
// no-op unless the caller asks to overwrite it.
package store
