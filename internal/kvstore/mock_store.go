// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows engine failure paths to be exercised without SQLite

package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing. The zero
// value is not usable; construct with NewMockStore.
//
// Failure injection: set IntegrityFunc to control what CheckIntegrity
// reports, and DiskSize to control what SizeOnDisk reports.
type MockStore struct {
	mu    sync.RWMutex
	path  string
	table string
	data  map[string][]byte

	// IntegrityFunc overrides CheckIntegrity when non-nil
	IntegrityFunc func(ctx context.Context) (bool, error)
	// DiskSize is what SizeOnDisk reports
	DiskSize int64
}

// NewMockStore creates an empty MockStore. The path is only used for
// naming backups and error messages; no file is created there.
func NewMockStore(path, table string) *MockStore {
	return &MockStore{
		path:  path,
		table: table,
		data:  make(map[string][]byte),
	}
}

// Path returns the nominal store file location
func (m *MockStore) Path() string {
	return m.path
}

// Table returns the nominal table name
func (m *MockStore) Table() string {
	return m.table
}

// SizeOnDisk reports the configured DiskSize
func (m *MockStore) SizeOnDisk() (int64, error) {
	return m.DiskSize, nil
}

// Get retrieves the value stored under key
func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set writes value under key with insert-or-replace semantics
func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// InsertIfAbsent writes value under key only if the key does not already exist
func (m *MockStore) InsertIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; ok {
		return false, nil
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return true, nil
}

// InsertIfAbsentTx ignores the transaction handle; WithTx provides the
// rollback semantics for the mock.
func (m *MockStore) InsertIfAbsentTx(ctx context.Context, tx *sql.Tx, key string, value []byte) (bool, error) {
	return m.InsertIfAbsent(ctx, key, value)
}

// KeysWithPrefix returns all keys beginning with prefix, in key order
func (m *MockStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// CountKeys returns the number of keys in the store
func (m *MockStore) CountKeys(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data)), nil
}

// WithTx runs fn with snapshot-and-restore semantics: an error from fn
// puts the data back exactly as it was. The *sql.Tx passed to fn is nil;
// mock callers must route writes through the store's Tx methods, which
// ignore it.
func (m *MockStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	m.mu.Lock()
	before := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		before[k] = v
	}
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.data = before
		m.mu.Unlock()
		return err
	}
	return nil
}

// CheckIntegrity reports what IntegrityFunc says, or passes by default
func (m *MockStore) CheckIntegrity(ctx context.Context) (bool, error) {
	if m.IntegrityFunc != nil {
		return m.IntegrityFunc(ctx)
	}
	return true, nil
}

// Backup writes the store's contents to a real file in dir so callers
// that assert on backup files behave as they would against SQLite. The
// file is a JSON dump, not a database; it exists to be counted, stat-ed,
// and discarded.
func (m *MockStore) Backup(ctx context.Context, dir string) (*Backup, error) {
	if dir == "" {
		dir = filepath.Dir(m.path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	m.mu.RLock()
	dump, err := json.Marshal(m.data)
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("encoding mock backup: %w", err)
	}

	now := time.Now()
	target := filepath.Join(dir, fmt.Sprintf("%s.backup-%d", filepath.Base(m.path), now.UnixNano()))
	if err := os.WriteFile(target, dump, 0644); err != nil {
		return nil, fmt.Errorf("writing mock backup: %w", err)
	}
	return &Backup{Path: target, Source: m.path, CreatedAt: now}, nil
}

// Close is a no-op for the mock
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
