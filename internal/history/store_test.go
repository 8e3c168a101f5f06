package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(v int64) *int64 { return &v }

func entryAt(sig string, timestamp *int64) Entry {
	return Entry{
		Signature:       sig,
		Timestamp:       timestamp,
		InstructionName: "mint_nft",
		DecodedArgs:     map[string]any{},
	}
}

func signatures(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Signature
	}
	return out
}

func TestStoreMergeDeduplicates(t *testing.T) {
	store := NewStore()

	added := store.Merge([]Entry{entryAt("a", ts(100)), entryAt("b", ts(200))})
	assert.Equal(t, []string{"a", "b"}, added)

	added = store.Merge([]Entry{entryAt("a", ts(100)), entryAt("c", ts(300))})
	assert.Equal(t, []string{"c"}, added)
	assert.Equal(t, 3, store.Len())
}

func TestStoreMergeIdempotent(t *testing.T) {
	store := NewStore()
	batch := []Entry{entryAt("a", ts(100)), entryAt("b", ts(200))}

	store.Merge(batch)
	before := store.Snapshot()

	added := store.Merge(batch)
	assert.Empty(t, added)
	assert.Equal(t, before, store.Snapshot())
}

func TestStoreOrdersNewestFirst(t *testing.T) {
	store := NewStore()
	store.Merge([]Entry{
		entryAt("old", ts(100)),
		entryAt("new", ts(300)),
		entryAt("mid", ts(200)),
	})

	assert.Equal(t, []string{"new", "mid", "old"}, signatures(store.Snapshot()))
}

func TestStoreNilTimestampSortsNewest(t *testing.T) {
	store := NewStore()
	store.Merge([]Entry{
		entryAt("confirmed", ts(1_700_000_000)),
		entryAt("pending", nil),
	})

	newest, ok := store.Newest()
	require.True(t, ok)
	assert.Equal(t, "pending", newest.Signature)
}

func TestStoreMergeCommutes(t *testing.T) {
	page := []Entry{entryAt("p1", ts(300)), entryAt("p2", ts(100))}
	live := []Entry{entryAt("l1", ts(400)), entryAt("p1", ts(300))}

	first := NewStore()
	first.Merge(page)
	first.Merge(live)

	second := NewStore()
	second.Merge(live)
	second.Merge(page)

	assert.Equal(t, signatures(first.Snapshot()), signatures(second.Snapshot()))
	assert.Equal(t, []string{"l1", "p1", "p2"}, signatures(first.Snapshot()))
}

func TestStoreIgnoresEmptySignature(t *testing.T) {
	store := NewStore()
	added := store.Merge([]Entry{entryAt("", ts(100))})
	assert.Empty(t, added)
	assert.Zero(t, store.Len())
}

func TestStoreAppend(t *testing.T) {
	store := NewStore()
	assert.True(t, store.Append(entryAt("a", ts(100))))
	assert.False(t, store.Append(entryAt("a", ts(100))))
}

func TestStoreCursorLifecycle(t *testing.T) {
	store := NewStore()
	assert.True(t, store.HasMore())
	assert.Empty(t, store.Cursor())

	store.AdvanceCursor("oldest", true)
	assert.Equal(t, "oldest", store.Cursor())
	assert.True(t, store.HasMore())

	store.AdvanceCursor("older", false)
	assert.False(t, store.HasMore())

	store.ExhaustPages()
	assert.False(t, store.HasMore())
}

func TestStoreResetBumpsGeneration(t *testing.T) {
	store := NewStore()
	store.Merge([]Entry{entryAt("a", ts(100))})
	store.AdvanceCursor("a", false)
	gen := store.Generation()

	store.Reset()

	assert.Equal(t, gen+1, store.Generation())
	assert.Zero(t, store.Len())
	assert.Empty(t, store.Cursor())
	assert.True(t, store.HasMore())

	// A signature seen before the reset is new again afterwards.
	assert.Equal(t, []string{"a"}, store.Merge([]Entry{entryAt("a", ts(100))}))
}

func TestStoreGenerationConditionalMutations(t *testing.T) {
	store := NewStore()
	gen := store.Generation()

	added, ok := store.MergeAt(gen, []Entry{entryAt("a", ts(100))})
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, added)
	assert.True(t, store.AdvanceCursorAt(gen, "a", true))
	assert.Equal(t, "a", store.Cursor())

	store.Reset()

	// Work still holding the old generation must leave the fresh state alone.
	added, ok = store.MergeAt(gen, []Entry{entryAt("stale", ts(200))})
	assert.False(t, ok)
	assert.Empty(t, added)
	assert.Zero(t, store.Len())

	assert.False(t, store.AdvanceCursorAt(gen, "stale", false))
	assert.Empty(t, store.Cursor())

	assert.False(t, store.ExhaustPagesAt(gen))
	assert.True(t, store.HasMore())

	// The current generation proceeds normally.
	assert.True(t, store.ExhaustPagesAt(store.Generation()))
	assert.False(t, store.HasMore())
}
