// ABOUTME: Tests for the snapshot builder
// ABOUTME: Covers selection, missing-payload diagnostics, empty stores, and the size guard

package composer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursorkit/composer-transfer/internal/kvstore"
)

func TestBuildSnapshot_EmptyStore(t *testing.T) {
	indexStore, payloadStore := newTestStores(t)

	snap, diag, err := BuildSnapshot(context.Background(), indexStore, payloadStore, ExportOptions{})
	require.NoError(t, err, "an empty store is a valid state")
	assert.Empty(t, snap.Records)
	assert.Empty(t, snap.Payloads)
	assert.Zero(t, diag.RecordsScanned)
}

func TestBuildSnapshot_AllRecords(t *testing.T) {
	indexStore, payloadStore := newTestStores(t)

	seedRecord(t, indexStore, payloadStore, "a", "chat a", `{"composerId":"a","x":1}`, map[string]string{
		"b1": `{"t":"hi","bubbleId":"b1"}`,
		"b2": `{"t":"again","bubbleId":"b2"}`,
	})
	seedRecord(t, indexStore, payloadStore, "b", "chat b", `{"composerId":"b"}`, nil)

	snap, diag, err := BuildSnapshot(context.Background(), indexStore, payloadStore, ExportOptions{})
	require.NoError(t, err)

	assert.Len(t, snap.Records, 2)
	assert.Len(t, snap.Payloads, 2)
	assert.Len(t, snap.Bubbles["a"], 2)
	assert.Empty(t, snap.Bubbles["b"])

	assert.Equal(t, 2, diag.RecordsScanned)
	assert.Equal(t, 2, diag.PayloadHits)
	assert.Equal(t, 0, diag.PayloadMisses)
	assert.Equal(t, 2, diag.BubbleCount)
}

func TestBuildSnapshot_Selection(t *testing.T) {
	indexStore, payloadStore := newTestStores(t)

	seedRecord(t, indexStore, payloadStore, "a", "chat a", `{"composerId":"a"}`, nil)
	seedRecord(t, indexStore, payloadStore, "b", "chat b", `{"composerId":"b"}`, nil)
	seedRecord(t, indexStore, payloadStore, "c", "chat c", `{"composerId":"c"}`, nil)

	snap, diag, err := BuildSnapshot(context.Background(), indexStore, payloadStore, ExportOptions{
		SelectedIDs: []string{"b", "not-in-index"},
	})
	require.NoError(t, err)

	// Exactly the intersection of selection and index, never more
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "b", snap.Records[0].ComposerID)
	assert.Equal(t, 1, diag.RecordsScanned)

	_, hasA := snap.Payloads["a"]
	_, hasC := snap.Payloads["c"]
	assert.False(t, hasA, "no trace of unselected records")
	assert.False(t, hasC, "no trace of unselected records")
}

func TestBuildSnapshot_MissingPayloadDiagnostic(t *testing.T) {
	indexStore, payloadStore := newTestStores(t)

	// Index lists the record but the payload store has no composerData key
	seedRecord(t, indexStore, payloadStore, "a", "orphaned", "", nil)

	snap, diag, err := BuildSnapshot(context.Background(), indexStore, payloadStore, ExportOptions{})
	require.NoError(t, err, "missing payload must not abort the batch")

	assert.Len(t, snap.Records, 1)
	assert.Empty(t, snap.Payloads)
	assert.Equal(t, 1, diag.PayloadMisses)
	require.Len(t, diag.Warnings, 1)
	assert.Contains(t, diag.Warnings[0], "a")
}

func TestBuildSnapshot_SizeLimit(t *testing.T) {
	indexStore, payloadStore := newTestStores(t)
	seedRecord(t, indexStore, payloadStore, "a", "chat a", `{"composerId":"a"}`, nil)

	_, _, err := BuildSnapshot(context.Background(), indexStore, payloadStore, ExportOptions{
		MaxStoreBytes: 1, // any real store file is bigger
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeLimitExceeded))
}

func TestBuildSnapshot_SizeLimitCoversIndexStore(t *testing.T) {
	// An oversized index store must trip the guard even when the payload
	// store is small
	indexStore := kvstore.NewMockStore("workspace.vscdb", "ItemTable")
	payloadStore := kvstore.NewMockStore("global.vscdb", "cursorDiskKV")
	indexStore.DiskSize = 10_000
	payloadStore.DiskSize = 10

	_, _, err := BuildSnapshot(context.Background(), indexStore, payloadStore, ExportOptions{
		MaxStoreBytes: 1_000,
	})
	require.ErrorIs(t, err, ErrSizeLimitExceeded)
	assert.Contains(t, err.Error(), "workspace.vscdb")
}

func TestBuildSnapshot_BubblesOfUnselectedRecordsExcluded(t *testing.T) {
	indexStore, payloadStore := newTestStores(t)

	seedRecord(t, indexStore, payloadStore, "a", "chat a", `{"composerId":"a"}`, map[string]string{
		"b1": `{"bubbleId":"b1"}`,
	})
	seedRecord(t, indexStore, payloadStore, "z", "chat z", `{"composerId":"z"}`, map[string]string{
		"b9": `{"bubbleId":"b9"}`,
	})

	snap, _, err := BuildSnapshot(context.Background(), indexStore, payloadStore, ExportOptions{
		SelectedIDs: []string{"a"},
	})
	require.NoError(t, err)

	assert.Len(t, snap.Bubbles, 1)
	assert.Len(t, snap.Bubbles["a"], 1)
}
