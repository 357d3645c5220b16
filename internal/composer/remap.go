// ABOUTME: Identity remapper - clones a snapshot under fresh collision-free IDs
// ABOUTME: Rewrites every cross-reference, structural where possible, literal otherwise

package composer

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RemapResult records how identities were rewritten. Both maps are
// injective: every input ID maps to a distinct fresh ID, and fresh IDs
// are drawn from a random 128-bit space so they collide with neither
// each other nor any input ID.
type RemapResult struct {
	// IDMap maps old composer IDs to new ones
	IDMap map[string]string
	// BubbleIDMap maps old bubble IDs to new ones
	BubbleIDMap map[string]string
	// Diagnostics records entries dropped for carrying no usable identity
	Diagnostics Diagnostics
}

// Remap produces a copy of snap in which every composer and bubble
// carries a fresh identity and every cross-reference between them has
// been rewritten to match. The input snapshot is not modified. Records
// and bubbles with an empty ID are dropped and reported in the result's
// diagnostics.
//
// Payload rewriting applies literal old-ID-to-new-ID substitution over
// the serialized text, because payloads embed their IDs at arbitrary
// depths in a schema opaque to this layer, then structurally pins the
// embedded composerId field where the payload decodes as JSON. UUIDs
// are long and random enough that an accidental substring match is
// negligible; this is a documented sharp edge, not an assumption of
// impossibility.
func Remap(snap *Snapshot) (*Snapshot, *RemapResult) {
	result := &RemapResult{
		IDMap:       make(map[string]string, len(snap.Records)),
		BubbleIDMap: make(map[string]string),
	}
	out := NewSnapshot()

	// Batch timestamps: current time offset by insertion order, so the
	// clone batch sorts stably even when drawn within one clock tick
	base := time.Now().UnixMilli()
	seq := int64(0)

	for _, rec := range snap.Records {
		oldID := rec.ComposerID
		if oldID == "" {
			// An empty ID would literal-match at every position of the
			// documents below; drop the record instead
			result.Diagnostics.Warnf("dropping record with empty composerId")
			continue
		}
		newID := uuid.NewString()
		result.IDMap[oldID] = newID

		clone := rec.Clone()
		clone.ComposerID = newID
		clone.CreatedAt = base + seq
		clone.LastUpdatedAt = base + seq
		seq++
		out.Records = append(out.Records, clone)

		// Bubbles first: their ID pairs also feed the payload rewrite.
		// All substitutions for one document go through a single
		// Replacer pass so a freshly inserted ID is never itself
		// rescanned for a later old-ID match.
		pairs := []string{oldID, newID}
		for _, bubble := range snap.Bubbles[oldID] {
			if bubble.BubbleID == "" {
				result.Diagnostics.Warnf("dropping bubble with empty bubbleId under record %s", oldID)
				continue
			}
			newBubbleID := uuid.NewString()
			result.BubbleIDMap[bubble.BubbleID] = newBubbleID

			value := strings.NewReplacer(bubble.BubbleID, newBubbleID, oldID, newID).Replace(bubble.Value)
			out.Bubbles[newID] = append(out.Bubbles[newID], BubbleEntry{
				Key:      BubbleKey(newID, newBubbleID),
				Value:    value,
				BubbleID: newBubbleID,
			})
			pairs = append(pairs, bubble.BubbleID, newBubbleID)
		}

		payload, ok := snap.Payloads[oldID]
		if !ok {
			// Source had no payload. The target store must never hold a
			// metadata entry with nothing behind it, so synthesize a
			// minimal well-formed document.
			out.Payloads[newID] = emptyPayload(newID)
			continue
		}

		rewritten := strings.NewReplacer(pairs...).Replace(payload)
		out.Payloads[newID] = rewritePayloadID(rewritten, newID)
	}

	return out, result
}

// rewritePayloadID structurally replaces the embedded composerId field
// of a payload document. If the payload is not valid JSON it is
// returned unchanged, preserving opaque or foreign formats with only
// the caller's literal substitution applied.
func rewritePayloadID(payload, newID string) string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return payload
	}
	if _, ok := doc[fieldComposerID]; !ok {
		return payload
	}
	id, err := json.Marshal(newID)
	if err != nil {
		return payload
	}
	doc[fieldComposerID] = id
	encoded, err := json.Marshal(doc)
	if err != nil {
		return payload
	}
	return string(encoded)
}

// emptyPayload returns a minimal well-formed conversation document for a
// record whose source had none
func emptyPayload(composerID string) string {
	doc := map[string]any{
		fieldComposerID:               composerID,
		"conversation":                []any{},
		"fullConversationHeadersOnly": []any{},
	}
	encoded, _ := json.Marshal(doc)
	return string(encoded)
}
