// ABOUTME: Snapshot builder - extracts selected composer records from a source store
// ABOUTME: Missing payloads are counted and reported, never fatal to the batch

package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cursorkit/composer-transfer/internal/kvstore"
)

// ExportOptions controls snapshot building.
type ExportOptions struct {
	// SelectedIDs restricts the export to these composer IDs. Nil means
	// all records in the index.
	SelectedIDs []string

	// MaxStoreBytes aborts the export with ErrSizeLimitExceeded when
	// either source store file is larger than this. Zero disables the
	// guard.
	MaxStoreBytes int64
}

// BuildSnapshot assembles a portable snapshot of composer records from
// indexStore plus their payloads and bubbles from payloadStore.
//
// An absent index yields an empty snapshot, not an error. A record whose
// payload key is missing is still exported (metadata and bubbles) with a
// diagnostic recorded; the index and payload stores are not
// transactionally linked at the source, so this is an expected state.
func BuildSnapshot(ctx context.Context, indexStore, payloadStore kvstore.Store, opts ExportOptions) (*Snapshot, *Diagnostics, error) {
	logger := slog.Default().With("component", "export")
	diag := &Diagnostics{}

	if opts.MaxStoreBytes > 0 {
		sources := []kvstore.Store{indexStore}
		if payloadStore != indexStore {
			sources = append(sources, payloadStore)
		}
		for _, st := range sources {
			size, err := st.SizeOnDisk()
			if err != nil {
				return nil, nil, err
			}
			if size > opts.MaxStoreBytes {
				return nil, nil, fmt.Errorf("%w: source store %s is %d bytes (limit %d); reduce the selection or raise the limit",
					ErrSizeLimitExceeded, st.Path(), size, opts.MaxStoreBytes)
			}
		}
	}

	snap := NewSnapshot()

	ix, err := ReadIndex(ctx, indexStore)
	if err != nil {
		return nil, nil, err
	}
	if ix == nil {
		logger.Info("source index absent, exporting empty snapshot", "store", indexStore.Path())
		return snap, diag, nil
	}

	var selected map[string]bool
	if opts.SelectedIDs != nil {
		selected = make(map[string]bool, len(opts.SelectedIDs))
		for _, id := range opts.SelectedIDs {
			selected[id] = true
		}
	}

	for _, rec := range ix.AllComposers {
		if selected != nil && !selected[rec.ComposerID] {
			continue
		}
		diag.RecordsScanned++
		snap.Records = append(snap.Records, rec.Clone())

		payload, err := payloadStore.Get(ctx, PayloadKey(rec.ComposerID))
		switch {
		case errors.Is(err, kvstore.ErrNotFound):
			diag.PayloadMisses++
			diag.Warnf("record %s has no payload in %s", rec.ComposerID, payloadStore.Path())
		case err != nil:
			return nil, nil, fmt.Errorf("reading payload for %s: %w", rec.ComposerID, err)
		default:
			diag.PayloadHits++
			snap.Payloads[rec.ComposerID] = string(payload)
		}

		keys, err := payloadStore.KeysWithPrefix(ctx, BubbleScanPrefix(rec.ComposerID))
		if err != nil {
			return nil, nil, fmt.Errorf("scanning bubbles for %s: %w", rec.ComposerID, err)
		}
		for _, key := range keys {
			bubbleID, ok := BubbleIDFromKey(key, rec.ComposerID)
			if !ok {
				diag.Warnf("skipping malformed bubble key %q", key)
				continue
			}
			value, err := payloadStore.Get(ctx, key)
			if err != nil {
				return nil, nil, fmt.Errorf("reading bubble %s: %w", key, err)
			}
			snap.Bubbles[rec.ComposerID] = append(snap.Bubbles[rec.ComposerID], BubbleEntry{
				Key:      key,
				Value:    string(value),
				BubbleID: bubbleID,
			})
			diag.BubbleCount++
		}
	}

	logger.Info("snapshot built",
		"records", diag.RecordsScanned,
		"payload_hits", diag.PayloadHits,
		"payload_misses", diag.PayloadMisses,
		"bubbles", diag.BubbleCount)
	return snap, diag, nil
}
