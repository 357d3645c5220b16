// ABOUTME: Tests for store backup, restore, and discard
// ABOUTME: Verifies point-in-time copies survive later writes and restore cleanly

package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBackup_CreatesFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	backupDir := filepath.Join(t.TempDir(), "backups")
	b, err := store.Backup(ctx, backupDir)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	if _, err := os.Stat(b.Path); err != nil {
		t.Errorf("backup file missing: %v", err)
	}
	if b.Source != store.Path() {
		t.Errorf("backup source mismatch: got %q, want %q", b.Source, store.Path())
	}

	// The backup is itself a valid store holding the same data
	restored, err := Open(b.Path, "ItemTable")
	if err != nil {
		t.Fatalf("opening backup as store failed: %v", err)
	}
	defer restored.Close()
	got, err := restored.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get from backup failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("backup value mismatch: got %q", got)
	}
}

func TestBackup_DefaultDir(t *testing.T) {
	store := newTestStore(t)

	b, err := store.Backup(context.Background(), "")
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if filepath.Dir(b.Path) != filepath.Dir(store.Path()) {
		t.Errorf("expected backup next to store, got %q", b.Path)
	}
}

func TestRestore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("before")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	b, err := store.Backup(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	// Mutate after the backup
	if err := store.Set(ctx, "k", []byte("after")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, "extra", []byte("x")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Restore(ctx, b); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after restore failed: %v", err)
	}
	if string(got) != "before" {
		t.Errorf("expected pre-backup value, got %q", got)
	}
	if _, err := store.Get(ctx, "extra"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected post-backup key gone, got %v", err)
	}
}

func TestRestore_MissingBackup(t *testing.T) {
	store := newTestStore(t)

	b := &Backup{Path: filepath.Join(t.TempDir(), "gone.backup"), Source: store.Path()}
	if err := store.Restore(context.Background(), b); err == nil {
		t.Error("expected error restoring from missing backup")
	}
}

func TestDiscard(t *testing.T) {
	store := newTestStore(t)

	b, err := store.Backup(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	if err := b.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if _, err := os.Stat(b.Path); !os.IsNotExist(err) {
		t.Error("backup file still exists after discard")
	}

	// Discarding twice is harmless
	if err := b.Discard(); err != nil {
		t.Errorf("second Discard failed: %v", err)
	}
}
