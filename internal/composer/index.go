// ABOUTME: Read and write the composer index document under its well-known key
// ABOUTME: Malformed index documents are logged and treated as absent, never fatal

package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cursorkit/composer-transfer/internal/kvstore"
)

// Index is the authoritative list of composer records known to a store.
// Top-level fields other than allComposers are preserved verbatim.
type Index struct {
	AllComposers []Metadata

	// Extra holds index-document fields we do not interpret
	Extra map[string]json.RawMessage
}

const fieldAllComposers = "allComposers"

// UnmarshalJSON splits allComposers from the verbatim remainder
func (ix *Index) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw[fieldAllComposers]; ok {
		if err := json.Unmarshal(v, &ix.AllComposers); err != nil {
			return fmt.Errorf("decoding allComposers: %w", err)
		}
		delete(raw, fieldAllComposers)
	}
	ix.Extra = raw
	return nil
}

// MarshalJSON re-assembles the index document
func (ix Index) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(ix.Extra)+1)
	for k, v := range ix.Extra {
		out[k] = v
	}
	entries := ix.AllComposers
	if entries == nil {
		entries = []Metadata{}
	}
	v, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	out[fieldAllComposers] = v
	return json.Marshal(out)
}

// IDSet returns the set of composer IDs present in the index
func (ix *Index) IDSet() map[string]bool {
	set := make(map[string]bool, len(ix.AllComposers))
	for _, rec := range ix.AllComposers {
		set[rec.ComposerID] = true
	}
	return set
}

// ReadIndex reads the composer index from store. An absent key returns
// (nil, nil): an empty store is a valid state. A document that fails to
// decode is logged and also returned as nil - the index and payload
// stores are not transactionally linked at the source, so a torn index
// must degrade to "no records" rather than crash the caller.
func ReadIndex(ctx context.Context, store kvstore.Store) (*Index, error) {
	value, err := store.Get(ctx, IndexKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	var ix Index
	if err := json.Unmarshal(value, &ix); err != nil {
		slog.Warn("composer index is malformed, treating as absent",
			"store", store.Path(), "error", err)
		return nil, nil
	}
	return &ix, nil
}

// WriteIndex replaces the composer index document atomically
// (insert-or-replace on its key)
func WriteIndex(ctx context.Context, store kvstore.Store, ix *Index) error {
	value, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := store.Set(ctx, IndexKey, value); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}
