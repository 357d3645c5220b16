// ABOUTME: Shared test fixtures for the composer engine tests
// ABOUTME: Creates temp index/payload store pairs and seeds records

package composer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cursorkit/composer-transfer/internal/kvstore"
)

// newTestStores creates a fresh index store (ItemTable) and payload
// store (cursorDiskKV) in a temp directory, mirroring the host
// application's workspace/global split.
func newTestStores(t *testing.T) (*kvstore.SQLiteStore, *kvstore.SQLiteStore) {
	t.Helper()
	dir := t.TempDir()

	indexStore, err := kvstore.Create(filepath.Join(dir, "workspace.vscdb"), "ItemTable")
	require.NoError(t, err)
	t.Cleanup(func() { indexStore.Close() })

	payloadStore, err := kvstore.Create(filepath.Join(dir, "global.vscdb"), "cursorDiskKV")
	require.NoError(t, err)
	t.Cleanup(func() { payloadStore.Close() })

	return indexStore, payloadStore
}

// seedRecord writes one composer into the stores: an index entry, a
// payload document, and the given bubbles.
func seedRecord(t *testing.T, indexStore, payloadStore kvstore.Store, id, name, payload string, bubbles map[string]string) {
	t.Helper()
	ctx := context.Background()

	ix, err := ReadIndex(ctx, indexStore)
	require.NoError(t, err)
	if ix == nil {
		ix = &Index{}
	}
	ix.AllComposers = append(ix.AllComposers, Metadata{
		ComposerID:    id,
		Name:          name,
		CreatedAt:     1700000000000,
		LastUpdatedAt: 1700000000000,
	})
	require.NoError(t, WriteIndex(ctx, indexStore, ix))

	if payload != "" {
		require.NoError(t, payloadStore.Set(ctx, PayloadKey(id), []byte(payload)))
	}
	for bubbleID, value := range bubbles {
		require.NoError(t, payloadStore.Set(ctx, BubbleKey(id, bubbleID), []byte(value)))
	}
}

// mustJSON unmarshals JSON into a map or fails the test
func mustJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}
