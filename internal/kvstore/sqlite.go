// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides point reads, conditional inserts, prefix scans, and transactions

package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

// busyTimeoutMillis bounds how long we wait on a store locked by a live
// external writer before failing instead of blocking forever.
const busyTimeoutMillis = 5000

var validTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore implements the Store interface against a single SQLite
// key-value table.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	table  string
	logger *slog.Logger
}

// Open opens an existing store file. The file must already exist -
// a transfer tool must never invent a store where the host application
// expects one, so a missing path is ErrStoreUnavailable rather than an
// implicit create.
func Open(path, table string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, path, err)
	}
	return open(path, table, false)
}

// Create creates a new store file with the key-value schema, making parent
// directories as needed. Existing files are opened as-is.
func Create(path, table string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return open(path, table, true)
}

func open(path, table string, create bool) (*SQLiteStore, error) {
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	logger := slog.Default().With("component", "kvstore", "store", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrEngineUnavailable, err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis)); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: setting busy timeout: %v", ErrEngineUnavailable, err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		table:  table,
		logger: logger,
	}

	if create {
		// WAL mode for concurrent readers, matching how the host
		// application opens its own stores
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
		if err := s.createSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	} else {
		// Verify the table exists so a wrong-path or wrong-table mistake
		// fails here instead of on the first read
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err == sql.ErrNoRows {
			db.Close()
			return nil, fmt.Errorf("%w: %s has no table %q", ErrStoreUnavailable, path, table)
		}
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: inspecting schema: %v", ErrStoreUnavailable, err)
		}
	}

	logger.Debug("store opened", "table", table, "created", create)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BLOB
		)
	`, s.table)

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Debug("closing store")
	return s.db.Close()
}

// Path returns the on-disk location of the store file
func (s *SQLiteStore) Path() string {
	return s.path
}

// Table returns the key-value table this store reads and writes
func (s *SQLiteStore) Table() string {
	return s.table
}

// SizeOnDisk returns the current size of the store file in bytes.
// WAL sidecars are not counted; this backs a coarse in-memory-processing
// guard, not an exact accounting.
func (s *SQLiteStore) SizeOnDisk() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, s.path, err)
	}
	return info.Size(), nil
}

// Get retrieves the value stored under key.
// Returns ErrNotFound if the key does not exist.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, s.table)

	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying key %q: %w", key, err)
	}
	return value, nil
}

// Set writes value under key with insert-or-replace semantics
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (key, value) VALUES (?, ?)`, s.table)

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	s.logger.Debug("set key", "key", key, "size", len(value))
	return nil
}

// InsertIfAbsent writes value under key only if the key does not already
// exist. It reports whether a row was actually inserted. Existing values
// are never overwritten; this is the conflict-avoidance primitive merges
// are built on.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (key, value) VALUES (?, ?)`, s.table)

	result, err := s.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return false, fmt.Errorf("inserting key %q: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows > 0, nil
}

// KeysWithPrefix returns all keys beginning with prefix, in key order
func (s *SQLiteStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT key FROM %s WHERE key LIKE ? ESCAPE '\' ORDER BY key`, s.table)

	rows, err := s.db.QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("scanning prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating key rows: %w", err)
	}
	return keys, nil
}

// escapeLike escapes LIKE wildcards so a prefix is matched literally
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// CountKeys returns the number of keys in the store's table
func (s *SQLiteStore) CountKeys(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)

	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting keys: %w", err)
	}
	return n, nil
}

// WithTx runs fn inside a transaction. Any error from fn rolls the
// transaction back before being returned; a nil error commits.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// InsertIfAbsentTx is InsertIfAbsent against an open transaction
func (s *SQLiteStore) InsertIfAbsentTx(ctx context.Context, tx *sql.Tx, key string, value []byte) (bool, error) {
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (key, value) VALUES (?, ?)`, s.table)

	result, err := tx.ExecContext(ctx, query, key, value)
	if err != nil {
		return false, fmt.Errorf("inserting key %q: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows > 0, nil
}

// CheckIntegrity runs SQLite's built-in consistency check and reports
// whether the store passed. A store that fails this check must never be
// written to.
func (s *SQLiteStore) CheckIntegrity(ctx context.Context) (bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return false, fmt.Errorf("running quick_check: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return false, fmt.Errorf("scanning quick_check row: %w", err)
		}
		results = append(results, line)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterating quick_check rows: %w", err)
	}

	ok := len(results) == 1 && results[0] == "ok"
	if !ok {
		s.logger.Warn("integrity check failed", "results", strings.Join(results, "; "))
	}
	return ok, nil
}

var _ Store = (*SQLiteStore)(nil)
