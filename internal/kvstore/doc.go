// Package kvstore provides access to SQLite-backed key-value store files.
//
// # Overview
//
// The host application persists its state in SQLite databases holding a
// single two-column table (key TEXT PRIMARY KEY, value BLOB). Workspace
// stores keep this table as ItemTable; the global payload store keeps it
// as cursorDiskKV. The Store interface binds one file plus one table name
// and exposes the small surface the transfer engine needs:
//
//   - Get / Set: point read and insert-or-replace write
//   - InsertIfAbsent: conditional insert, never overwrites
//   - KeysWithPrefix: ordered prefix scan
//   - WithTx: multi-key atomic writes
//   - CheckIntegrity: PRAGMA quick_check gate
//   - Backup / Restore / Discard: crash-safe point-in-time copies
//
// SQLiteStore is the production implementation; MockStore is an
// in-memory one for exercising engine failure paths in tests.
//
// # Concurrency
//
// Stores may be concurrently open in the host application. Writes use
// SQLite's own locking with a bounded busy timeout: the store waits, then
// fails, rather than taking an exclusive lock. Backups use VACUUM INTO,
// which snapshots a live database without exclusive access.
//
// # Error Handling
//
// Sentinel errors:
//
//   - ErrNotFound: requested key does not exist
//   - ErrStoreUnavailable: store file missing, unreadable, or lacking the
//     expected table
//   - ErrEngineUnavailable: the SQLite engine itself failed to initialize
//
// All methods accept context.Context for cancellation support. Every read
// round-trips to the store; there is no caching layer.
package kvstore
