// ABOUTME: Data types for composer records, bubbles, snapshots, and store keys
// ABOUTME: Metadata preserves unknown JSON fields verbatim for round-tripping

package composer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Store key conventions. These must match the host application's own
// store reader byte for byte.
const (
	// IndexKey is the well-known key holding the composer index document
	IndexKey = "composer.composerData"

	payloadKeyPrefix = "composerData:"
	bubbleKeyPrefix  = "bubbleId:"
)

// PayloadKey returns the payload-store key for a composer's conversation data
func PayloadKey(composerID string) string {
	return payloadKeyPrefix + composerID
}

// BubbleKey returns the payload-store key for one bubble of a composer
func BubbleKey(composerID, bubbleID string) string {
	return bubbleKeyPrefix + composerID + ":" + bubbleID
}

// BubbleScanPrefix returns the prefix under which all of a composer's
// bubbles are stored
func BubbleScanPrefix(composerID string) string {
	return bubbleKeyPrefix + composerID + ":"
}

// BubbleIDFromKey extracts the bubble ID from a full bubble key.
// Returns false if the key is not a bubble key for composerID.
func BubbleIDFromKey(key, composerID string) (string, bool) {
	prefix := BubbleScanPrefix(composerID)
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	id := key[len(prefix):]
	if id == "" {
		return "", false
	}
	return id, true
}

// Metadata is one entry of the composer index. The host application
// stores more fields here than we interpret (mode flags, context state,
// UI hints); everything except the fields we rewrite is carried verbatim
// through Extra so a transferred entry is indistinguishable from one the
// host wrote itself.
type Metadata struct {
	ComposerID    string
	Name          string
	CreatedAt     int64 // Unix milliseconds
	LastUpdatedAt int64 // Unix milliseconds

	// Extra holds every index field we do not interpret, keyed by its
	// original JSON name
	Extra map[string]json.RawMessage
}

// interpreted fields of a Metadata document
const (
	fieldComposerID    = "composerId"
	fieldName          = "name"
	fieldCreatedAt     = "createdAt"
	fieldLastUpdatedAt = "lastUpdatedAt"
)

// UnmarshalJSON decodes an index entry, splitting interpreted fields from
// the verbatim remainder
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw[fieldComposerID]; ok {
		if err := json.Unmarshal(v, &m.ComposerID); err != nil {
			return fmt.Errorf("decoding composerId: %w", err)
		}
		delete(raw, fieldComposerID)
	}
	if v, ok := raw[fieldName]; ok {
		if err := json.Unmarshal(v, &m.Name); err != nil {
			return fmt.Errorf("decoding name: %w", err)
		}
		delete(raw, fieldName)
	}
	if v, ok := raw[fieldCreatedAt]; ok {
		if err := json.Unmarshal(v, &m.CreatedAt); err != nil {
			return fmt.Errorf("decoding createdAt: %w", err)
		}
		delete(raw, fieldCreatedAt)
	}
	if v, ok := raw[fieldLastUpdatedAt]; ok {
		if err := json.Unmarshal(v, &m.LastUpdatedAt); err != nil {
			return fmt.Errorf("decoding lastUpdatedAt: %w", err)
		}
		delete(raw, fieldLastUpdatedAt)
	}

	m.Extra = raw
	return nil
}

// MarshalJSON re-assembles the entry, interpreted fields plus the
// verbatim remainder
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}

	var err error
	if out[fieldComposerID], err = json.Marshal(m.ComposerID); err != nil {
		return nil, err
	}
	if out[fieldName], err = json.Marshal(m.Name); err != nil {
		return nil, err
	}
	if out[fieldCreatedAt], err = json.Marshal(m.CreatedAt); err != nil {
		return nil, err
	}
	if out[fieldLastUpdatedAt], err = json.Marshal(m.LastUpdatedAt); err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

// Clone returns a deep copy of the metadata entry
func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// BubbleEntry is one message bubble as carried in a snapshot: the full
// storage key, the serialized payload, and the bubble's own ID
type BubbleEntry struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	BubbleID string `json:"bubbleId"`
}

// Snapshot is an in-memory, portable bundle of composer records, their
// conversation payloads, and their bubbles. It is the unit of transfer
// between stores and the unit of identity remapping; it is never itself
// the system of record.
type Snapshot struct {
	Records  []Metadata               `json:"allComposers"`
	Payloads map[string]string        `json:"composers"`
	Bubbles  map[string][]BubbleEntry `json:"bubbles"`
}

// NewSnapshot returns an empty snapshot with initialized maps
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Payloads: make(map[string]string),
		Bubbles:  make(map[string][]BubbleEntry),
	}
}

// RecordIDs returns the composer IDs of all records in index order
func (s *Snapshot) RecordIDs() []string {
	ids := make([]string, 0, len(s.Records))
	for _, rec := range s.Records {
		ids = append(ids, rec.ComposerID)
	}
	return ids
}

// Diagnostics accumulates per-record observations during an export or
// merge. The predominant real-world failure mode is "right record list,
// wrong payload store selected", which is silent without these counters,
// so they are part of the contract rather than debug output.
type Diagnostics struct {
	RecordsScanned int
	PayloadHits    int
	PayloadMisses  int
	BubbleCount    int
	Warnings       []string
}

// Warnf appends a formatted warning
func (d *Diagnostics) Warnf(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}
