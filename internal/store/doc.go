// Package store persists templates and instances.
//
// Two implementations share one contract:
//   - Store: SQLite, the default durable repository
//   - Memory: process-local maps for tests and the scenario harness
//
// A third, backed by PostgreSQL, lives in store/postgres.
//
// Every row holds the complete JSON snapshot of a template or instance plus
// a revision counter. Saves are compare-and-swap on that counter:
//   - expectedRevision 0 inserts; an existing id is ErrConflict
//   - otherwise the stored revision must equal expectedRevision
//   - a successful save stores and returns expectedRevision+1
//
// Transmittal numbers are unique across instances; a colliding insert is
// also ErrConflict.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Content hashes are computed by ir.InstanceHash and ir.TemplateHash over
// NFC-normalized canonical JSON.
package store
