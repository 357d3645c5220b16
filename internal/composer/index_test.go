// ABOUTME: Tests for composer index read/write and metadata field preservation
// ABOUTME: Covers absent/malformed index handling and unknown-field round-tripping

package composer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadIndex_Absent(t *testing.T) {
	indexStore, _ := newTestStores(t)

	ix, err := ReadIndex(context.Background(), indexStore)
	require.NoError(t, err)
	assert.Nil(t, ix)
}

func TestReadIndex_Malformed(t *testing.T) {
	indexStore, _ := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, indexStore.Set(ctx, IndexKey, []byte("not json at all")))

	ix, err := ReadIndex(ctx, indexStore)
	require.NoError(t, err, "malformed index must not be fatal")
	assert.Nil(t, ix)
}

func TestIndex_RoundTripPreservesUnknownFields(t *testing.T) {
	indexStore, _ := newTestStores(t)
	ctx := context.Background()

	doc := `{
		"allComposers": [
			{
				"composerId": "rec-1",
				"name": "my chat",
				"createdAt": 1700000000000,
				"lastUpdatedAt": 1700000001000,
				"unifiedMode": "agent",
				"contextState": {"nested": [1, 2, 3]}
			}
		],
		"selectedComposerId": "rec-1",
		"somethingElse": 42
	}`
	require.NoError(t, indexStore.Set(ctx, IndexKey, []byte(doc)))

	ix, err := ReadIndex(ctx, indexStore)
	require.NoError(t, err)
	require.NotNil(t, ix)
	require.Len(t, ix.AllComposers, 1)

	rec := ix.AllComposers[0]
	assert.Equal(t, "rec-1", rec.ComposerID)
	assert.Equal(t, "my chat", rec.Name)
	assert.Equal(t, int64(1700000000000), rec.CreatedAt)
	assert.Equal(t, int64(1700000001000), rec.LastUpdatedAt)

	require.NoError(t, WriteIndex(ctx, indexStore, ix))

	raw, err := indexStore.Get(ctx, IndexKey)
	require.NoError(t, err)
	got := mustJSON(t, string(raw))

	// Document-level unknown fields survive
	assert.Equal(t, "rec-1", got["selectedComposerId"])
	assert.Equal(t, float64(42), got["somethingElse"])

	// Entry-level unknown fields survive
	entries := got["allComposers"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "agent", entry["unifiedMode"])
	assert.Equal(t, map[string]any{"nested": []any{float64(1), float64(2), float64(3)}}, entry["contextState"])
}

func TestMetadata_Clone(t *testing.T) {
	m := Metadata{
		ComposerID: "rec-1",
		Extra:      map[string]json.RawMessage{"flag": json.RawMessage(`true`)},
	}

	clone := m.Clone()
	clone.Extra["flag"] = json.RawMessage(`false`)

	assert.Equal(t, json.RawMessage(`true`), m.Extra["flag"], "clone must not share the Extra map")
}

func TestIndex_IDSet(t *testing.T) {
	ix := &Index{AllComposers: []Metadata{
		{ComposerID: "a"},
		{ComposerID: "b"},
	}}

	set := ix.IDSet()
	assert.True(t, set["a"])
	assert.True(t, set["b"])
	assert.False(t, set["c"])
}
