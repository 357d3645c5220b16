// ABOUTME: Tests for the identity remapper
// ABOUTME: Covers injectivity, cross-reference rewriting, timestamps, and payload synthesis

package composer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotForRemap() *Snapshot {
	snap := NewSnapshot()
	snap.Records = []Metadata{
		{ComposerID: "rec-a", Name: "first", CreatedAt: 100, LastUpdatedAt: 200},
		{ComposerID: "rec-b", Name: "second", CreatedAt: 100, LastUpdatedAt: 200},
	}
	snap.Payloads["rec-a"] = `{"composerId":"rec-a","refs":["bub-1","bub-2"]}`
	snap.Payloads["rec-b"] = `{"composerId":"rec-b"}`
	snap.Bubbles["rec-a"] = []BubbleEntry{
		{Key: BubbleKey("rec-a", "bub-1"), Value: `{"t":"hi","bubbleId":"bub-1","composerId":"rec-a"}`, BubbleID: "bub-1"},
		{Key: BubbleKey("rec-a", "bub-2"), Value: `{"t":"yo","bubbleId":"bub-2"}`, BubbleID: "bub-2"},
	}
	return snap
}

func TestRemap_Injectivity(t *testing.T) {
	snap := snapshotForRemap()
	out, result := Remap(snap)

	require.Len(t, result.IDMap, 2)
	require.Len(t, result.BubbleIDMap, 2)

	// Injective: no two inputs share an output, and no output equals any input
	seen := map[string]bool{}
	inputs := map[string]bool{"rec-a": true, "rec-b": true, "bub-1": true, "bub-2": true}
	for _, m := range []map[string]string{result.IDMap, result.BubbleIDMap} {
		for old, fresh := range m {
			assert.NotEqual(t, old, fresh)
			assert.False(t, seen[fresh], "output ID %q drawn twice", fresh)
			assert.False(t, inputs[fresh], "output ID %q collides with an input", fresh)
			seen[fresh] = true
		}
	}

	assert.Len(t, out.Records, 2)
	assert.Len(t, out.Payloads, 2)
}

func TestRemap_InputUntouched(t *testing.T) {
	snap := snapshotForRemap()
	Remap(snap)

	assert.Equal(t, "rec-a", snap.Records[0].ComposerID)
	assert.Contains(t, snap.Payloads["rec-a"], "rec-a")
	assert.Equal(t, "bub-1", snap.Bubbles["rec-a"][0].BubbleID)
}

func TestRemap_CrossReferencesRewritten(t *testing.T) {
	snap := snapshotForRemap()
	out, result := Remap(snap)

	newA := result.IDMap["rec-a"]
	newB1 := result.BubbleIDMap["bub-1"]
	newB2 := result.BubbleIDMap["bub-2"]

	// Bubble keys rebuilt under the new IDs
	bubbles := out.Bubbles[newA]
	require.Len(t, bubbles, 2)
	assert.Equal(t, BubbleKey(newA, newB1), bubbles[0].Key)
	assert.Equal(t, newB1, bubbles[0].BubbleID)

	// Zero occurrences of old IDs, at least one of the new
	for _, bubble := range bubbles {
		assert.NotContains(t, bubble.Value, "rec-a")
		assert.NotContains(t, bubble.Value, "bub-1")
		assert.NotContains(t, bubble.Value, "bub-2")
	}
	assert.Contains(t, bubbles[0].Value, newB1)
	assert.Contains(t, bubbles[0].Value, newA)
	assert.Contains(t, bubbles[1].Value, newB2)

	// Record payload: structural composerId rewrite plus literal bubble refs
	payload := out.Payloads[newA]
	assert.NotContains(t, payload, "rec-a")
	assert.NotContains(t, payload, "bub-1")
	doc := mustJSON(t, payload)
	assert.Equal(t, newA, doc["composerId"])
	assert.Equal(t, []any{newB1, newB2}, doc["refs"])
}

func TestRemap_TimestampsStrictlyIncreasing(t *testing.T) {
	snap := NewSnapshot()
	for _, id := range []string{"a", "b", "c", "d"} {
		snap.Records = append(snap.Records, Metadata{ComposerID: id})
		snap.Payloads[id] = `{"composerId":"` + id + `"}`
	}

	out, _ := Remap(snap)

	for i := 1; i < len(out.Records); i++ {
		assert.Greater(t, out.Records[i].CreatedAt, out.Records[i-1].CreatedAt,
			"batch timestamps must be strictly increasing")
	}
}

func TestRemap_SynthesizesMissingPayload(t *testing.T) {
	snap := NewSnapshot()
	snap.Records = []Metadata{{ComposerID: "rec-a", Name: "payloadless"}}

	out, result := Remap(snap)

	newID := result.IDMap["rec-a"]
	payload, ok := out.Payloads[newID]
	require.True(t, ok, "a record must never land without a payload")
	doc := mustJSON(t, payload)
	assert.Equal(t, newID, doc["composerId"])
}

func TestRemap_EmptyIDsDroppedNotSubstituted(t *testing.T) {
	// An empty ID would literal-match at every byte of a document; such
	// entries must be dropped with a diagnostic, never substituted
	snap := NewSnapshot()
	snap.Records = []Metadata{
		{ComposerID: "", Name: "broken"},
		{ComposerID: "rec-a", Name: "good"},
	}
	snap.Payloads["rec-a"] = `{"composerId":"rec-a","text":"hello"}`
	snap.Bubbles["rec-a"] = []BubbleEntry{
		{Key: BubbleKey("rec-a", ""), Value: `{"t":"hi"}`, BubbleID: ""},
	}

	out, result := Remap(snap)

	require.Len(t, out.Records, 1)
	newA := result.IDMap["rec-a"]
	assert.Equal(t, newA, out.Records[0].ComposerID)
	assert.NotContains(t, result.IDMap, "")
	assert.NotContains(t, result.BubbleIDMap, "")
	assert.Empty(t, out.Bubbles[newA])

	// The surviving payload is rewritten normally, not shredded by an
	// empty-pattern substitution
	doc := mustJSON(t, out.Payloads[newA])
	assert.Equal(t, newA, doc["composerId"])
	assert.Equal(t, "hello", doc["text"])

	assert.Len(t, result.Diagnostics.Warnings, 2)
}

func TestRemap_NonJSONPayloadFallsBackToLiteral(t *testing.T) {
	snap := NewSnapshot()
	snap.Records = []Metadata{{ComposerID: "rec-a"}}
	snap.Payloads["rec-a"] = "opaque blob mentioning rec-a twice: rec-a"

	out, result := Remap(snap)

	newID := result.IDMap["rec-a"]
	payload := out.Payloads[newID]
	assert.NotContains(t, payload, "rec-a")
	assert.Equal(t, 2, strings.Count(payload, newID))
}
