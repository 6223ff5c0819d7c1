package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestAtomicChunkInvariant exercises spec.md invariant A1 end to end: a
// chunk row never exists without its matching inverted-index row, and
// vice versa, at every quiescent point.
func TestAtomicChunkInvariant(t *testing.T) {
	s := openTestStore(t)

	id, err := s.UpsertItem(Item{Path: "/doc/report.txt", Name: "report.txt", Kind: KindText})
	require.NoError(t, err)

	err = s.InsertChunks(id, "report.txt", "/doc/report.txt", []ItemChunk{
		{ID: "c1", ChunkIndex: 0, Text: "Quarterly performance overview"},
		{ID: "c2", ChunkIndex: 1, Text: "Revenue metrics for the period"},
	})
	require.NoError(t, err)

	hits, err := s.SearchFTS("quarterly", 10, false)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, id, hits[0].ItemID)

	assertChunkSearchIndexParity(t, s, id, 2)

	// Rebuilding the item deletes both chunk and inverted-index rows
	// before reinserting, so the invariant still holds afterward.
	err = s.InsertChunks(id, "report.txt", "/doc/report.txt", []ItemChunk{
		{ID: "c3", ChunkIndex: 0, Text: "Replaced content entirely"},
	})
	require.NoError(t, err)
	assertChunkSearchIndexParity(t, s, id, 1)

	hits, err = s.SearchFTS("quarterly", 10, false)
	require.NoError(t, err)
	require.Empty(t, hits)
}

// TestDeleteItemRemovesOrphanedInvertedIndexRows is scenario 2 from
// spec.md §8: deleting an item leaves no orphaned search_index row.
func TestDeleteItemRemovesOrphanedInvertedIndexRows(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.UpsertItem(Item{Path: "/a.txt", Name: "a.txt", Kind: KindText})
	require.NoError(t, err)
	id2, err := s.UpsertItem(Item{Path: "/b.txt", Name: "b.txt", Kind: KindText})
	require.NoError(t, err)

	require.NoError(t, s.InsertChunks(id1, "a.txt", "/a.txt", []ItemChunk{
		{ID: "a1", ChunkIndex: 0, Text: "quarterly performance"},
	}))
	require.NoError(t, s.InsertChunks(id2, "b.txt", "/b.txt", []ItemChunk{
		{ID: "b1", ChunkIndex: 0, Text: "xyzzy123 unique marker"},
	}))

	require.NoError(t, s.DeleteItemByPath("/a.txt"))
	hits, err := s.SearchFTS("quarterly", 10, false)
	require.NoError(t, err)
	require.Empty(t, hits)

	require.NoError(t, s.DeleteItemByPath("/b.txt"))
	hits, err = s.SearchFTS("xyzzy123", 10, false)
	require.NoError(t, err)
	require.Empty(t, hits)

	assertChunkSearchIndexParity(t, s, id1, 0)
	assertChunkSearchIndexParity(t, s, id2, 0)
}

func assertChunkSearchIndexParity(t *testing.T, s *Store, itemID int64, wantChunks int) {
	t.Helper()
	var chunkCount, siCount int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM item_chunks WHERE item_id = ?`, itemID).Scan(&chunkCount))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM search_index WHERE item_id = ?`, itemID).Scan(&siCount))
	require.Equal(t, wantChunks, chunkCount)
	require.Equal(t, wantChunks, siCount)
}

// TestUpsertItemIdempotent verifies re-upserting an unchanged tuple keeps
// the row id stable (spec.md §8 round-trip law).
func TestUpsertItemIdempotent(t *testing.T) {
	s := openTestStore(t)
	item := Item{Path: "/x.txt", Name: "x.txt", Kind: KindText, Size: 10}

	id1, err := s.UpsertItem(item)
	require.NoError(t, err)
	id2, err := s.UpsertItem(item)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

// TestDeleteAllClearsInvertedIndexBeforeItems covers the "Delete-all"
// policy (spec.md §4.1): search_index is virtual and does not cascade, so
// delete-all must clear it explicitly.
func TestDeleteAllClearsInvertedIndexBeforeItems(t *testing.T) {
	s := openTestStore(t)
	id, err := s.UpsertItem(Item{Path: "/c.txt", Name: "c.txt", Kind: KindText})
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(id, "c.txt", "/c.txt", []ItemChunk{
		{ID: "c1", ChunkIndex: 0, Text: "some content"},
	}))

	require.NoError(t, s.DeleteAll())

	var itemCount, siCount int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&itemCount))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM search_index`).Scan(&siCount))
	require.Equal(t, 0, itemCount)
	require.Equal(t, 0, siCount)
}

// TestHealthDerivesItemsWithoutContent checks the set-difference and O(1)
// fts_index_size derivation of spec.md §4.1.
func TestHealthDerivesItemsWithoutContent(t *testing.T) {
	s := openTestStore(t)
	id1, err := s.UpsertItem(Item{Path: "/has.txt", Name: "has.txt", Kind: KindText})
	require.NoError(t, err)
	_, err = s.UpsertItem(Item{Path: "/empty.txt", Name: "empty.txt", Kind: KindText})
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(id1, "has.txt", "/has.txt", []ItemChunk{
		{ID: "h1", ChunkIndex: 0, Text: "content"},
	}))

	h, err := s.Health()
	require.NoError(t, err)
	require.Equal(t, 2, h.TotalItems)
	require.Equal(t, 1, h.ItemsWithoutContent)
	require.GreaterOrEqual(t, h.FTSIndexSizeBytes, int64(0))
}

// TestFailureSeverityFilterExcludesExpectedGaps covers the
// "Failure severity filter" policy (spec.md §4.1).
func TestFailureSeverityFilterExcludesExpectedGaps(t *testing.T) {
	s := openTestStore(t)
	id, err := s.UpsertItem(Item{Path: "/p.pdf", Name: "p.pdf", Kind: KindPDF})
	require.NoError(t, err)

	require.NoError(t, s.RecordFailure(id, "extract", "PDF backend unavailable"))
	require.NoError(t, s.RecordFailure(id, "parse", "unexpected nil pointer"))

	total, critical, expectedGap, err := s.TotalFailures()
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, 1, critical)
	require.Equal(t, 1, expectedGap)
}

// TestSearchFTSEmptySanitizedQueryReturnsEmptyWithoutError is the boundary
// behavior from spec.md §8: a sanitizer that reduces the query to empty
// returns an empty result without touching the index.
func TestSearchFTSEmptySanitizedQueryReturnsEmptyWithoutError(t *testing.T) {
	s := openTestStore(t)
	hits, err := s.SearchFTS(`***:():`, 10, false)
	require.NoError(t, err)
	require.Empty(t, hits)
}

// TestAggregateFeedbackIdempotent covers the round-trip law from spec.md
// §8: aggregateFeedback is idempotent over an unchanged feedback table.
func TestAggregateFeedbackIdempotent(t *testing.T) {
	s := openTestStore(t)
	id, err := s.UpsertItem(Item{Path: "/f.txt", Name: "f.txt", Kind: KindText})
	require.NoError(t, err)
	require.NoError(t, s.RecordFeedback(id, "opened", "query", 0))

	require.NoError(t, s.AggregateFeedback())
	f1, err := s.GetFrequency(id)
	require.NoError(t, err)

	require.NoError(t, s.AggregateFeedback())
	f2, err := s.GetFrequency(id)
	require.NoError(t, err)

	require.Equal(t, f1.OpenCount, f2.OpenCount)
	require.Equal(t, 1, f2.OpenCount)
}

// TestSettingsRoundTrip covers getSetting/setSetting.
func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetSetting("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetSetting("learningEnabled", "true"))
	v, ok, err := s.GetSetting("learningEnabled")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", v)

	require.NoError(t, s.SetSetting("learningEnabled", "false"))
	v, ok, err = s.GetSetting("learningEnabled")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "false", v)
}
