// ABOUTME: Snapshot interchange file format for out-of-process transfer
// ABOUTME: Structural validation happens on load, before any store is touched

package composer

import (
	"encoding/json"
	"fmt"
	"os"
)

// SaveSnapshot writes snap to path as an indented JSON document with the
// three top-level fields allComposers, composers, and bubbles.
func SaveSnapshot(path string, snap *Snapshot) error {
	// Normalize nils so the file always carries all three fields with
	// the right JSON types
	out := *snap
	if out.Records == nil {
		out.Records = []Metadata{}
	}
	if out.Payloads == nil {
		out.Payloads = map[string]string{}
	}
	if out.Bubbles == nil {
		out.Bubbles = map[string][]BubbleEntry{}
	}

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return nil
}

// LoadSnapshot reads and validates a snapshot file. A file is valid only
// if allComposers is an array, composers is an object (and bubbles, when
// present, is an object), and every record and bubble carries a
// non-empty ID; anything else is ErrInvalidFormat and no store is
// touched.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrInvalidFormat, err)
	}

	allComposers, ok := raw["allComposers"]
	if !ok || !startsWith(allComposers, '[') {
		return nil, fmt.Errorf("%w: allComposers must be an array", ErrInvalidFormat)
	}
	composers, ok := raw["composers"]
	if !ok || !startsWith(composers, '{') {
		return nil, fmt.Errorf("%w: composers must be an object", ErrInvalidFormat)
	}
	if bubbles, ok := raw["bubbles"]; ok && !startsWith(bubbles, '{') {
		return nil, fmt.Errorf("%w: bubbles must be an object", ErrInvalidFormat)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	// Every record and bubble must carry an identity: downstream
	// remapping substitutes IDs literally, and an empty literal matches
	// everywhere
	for _, rec := range snap.Records {
		if rec.ComposerID == "" {
			return nil, fmt.Errorf("%w: record with empty composerId", ErrInvalidFormat)
		}
	}
	for id, entries := range snap.Bubbles {
		for _, bubble := range entries {
			if bubble.BubbleID == "" {
				return nil, fmt.Errorf("%w: bubble with empty bubbleId under record %s", ErrInvalidFormat, id)
			}
		}
	}
	if snap.Payloads == nil {
		snap.Payloads = map[string]string{}
	}
	if snap.Bubbles == nil {
		snap.Bubbles = map[string][]BubbleEntry{}
	}
	return &snap, nil
}

// startsWith reports whether raw's first non-whitespace byte is c
func startsWith(raw json.RawMessage, c byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b == c
		}
	}
	return false
}
