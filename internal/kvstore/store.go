// ABOUTME: Store interface and shared errors for key-value store access
// ABOUTME: Backed by SQLite in production and an in-memory mock in tests

package kvstore

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("key not found")

// ErrStoreUnavailable is returned when the store file is missing or unreadable
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrEngineUnavailable is returned when the database engine cannot be initialized
var ErrEngineUnavailable = errors.New("database engine unavailable")

// Store defines the operations the transfer engine needs from a
// key-value store holding a single (key TEXT PRIMARY KEY, value BLOB)
// table. Host application store files keep their index in ItemTable and
// their payloads in cursorDiskKV; the table name is a parameter so one
// store type serves both.
type Store interface {
	// Path returns the on-disk location of the store file
	Path() string
	// Table returns the key-value table this store reads and writes
	Table() string
	// SizeOnDisk returns the current size of the store file in bytes
	SizeOnDisk() (int64, error)

	// Get retrieves the value stored under key; ErrNotFound if absent
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key with insert-or-replace semantics
	Set(ctx context.Context, key string, value []byte) error
	// InsertIfAbsent writes value under key only if the key does not
	// already exist. It reports whether a row was actually inserted;
	// existing values are never overwritten.
	InsertIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// InsertIfAbsentTx is InsertIfAbsent against an open transaction
	InsertIfAbsentTx(ctx context.Context, tx *sql.Tx, key string, value []byte) (bool, error)
	// KeysWithPrefix returns all keys beginning with prefix, in key order
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	// CountKeys returns the number of keys in the store's table
	CountKeys(ctx context.Context) (int64, error)
	// WithTx runs fn inside a transaction. Any error from fn rolls the
	// transaction back before being returned; a nil error commits.
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error

	// CheckIntegrity runs a consistency check and reports whether the
	// store passed. A store that fails this check must never be written to.
	CheckIntegrity(ctx context.Context) (bool, error)
	// Backup captures a consistent point-in-time copy of the store into
	// dir. If dir is empty the backup is written next to the store file.
	Backup(ctx context.Context, dir string) (*Backup, error)

	// Close releases any resources held by the store
	Close() error
}
