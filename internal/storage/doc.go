// Package storage persists playback actions and the scheduler's recovery
// state.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "file":   dependency-free snapshot + journal files
//   - "memory": process-local, nothing written to disk
package storage
