package integration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterspotlight/bspotlight/internal/query"
	"github.com/betterspotlight/bspotlight/internal/store"
)

// Index/search integration tests - exercise the full path from a store
// write (UpsertItem + InsertChunks) through the query engine's lexical
// retrieval stage to returned results.

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// lexicalRetriever adapts store.SearchFTSJoined to query.Retriever.
func lexicalRetriever(s *store.Store) query.Retriever {
	return func(q string, filters query.Filters, limit int) ([]query.Candidate, error) {
		hits, err := s.SearchFTSJoined(q, limit, false, toStoreFilters(filters))
		if err != nil {
			return nil, err
		}
		out := make([]query.Candidate, 0, len(hits))
		for i, h := range hits {
			out = append(out, query.Candidate{
				ItemID:       h.ItemID,
				Path:         h.Path,
				Name:         h.Name,
				LexicalScore: h.Score,
				LexicalRank:  i + 1,
				Snippet:      h.Snippet,
			})
		}
		return out, nil
	}
}

func toStoreFilters(f query.Filters) store.Filters {
	out := store.Filters{
		Extensions:   f.FileTypes,
		IncludePaths: f.IncludePaths,
		ExcludePaths: f.ExcludePaths,
	}
	if f.MinSize != 0 {
		out.MinSize = &f.MinSize
	}
	if f.MaxSize != 0 {
		out.MaxSize = &f.MaxSize
	}
	return out
}

func indexFile(t *testing.T, s *store.Store, path, content string) {
	t.Helper()
	itemID, err := s.UpsertItem(store.Item{
		Path:      path,
		Name:      filepath.Base(path),
		Extension: filepath.Ext(path),
		Kind:      store.KindCode,
		Size:      int64(len(content)),
	})
	require.NoError(t, err)
	err = s.InsertChunks(itemID, filepath.Base(path), path, []store.ItemChunk{
		{ID: path + "#0", ItemID: itemID, ChunkIndex: 0, Text: content, ContentHash: "h"},
	})
	require.NoError(t, err)
}

func TestIntegration_IndexAndSearch_FindsResults(t *testing.T) {
	s := openTestStore(t)

	indexFile(t, s, "main.go", "package main\n\nfunc handleRequest() {\n\t// the main HTTP handler function\n}")
	indexFile(t, s, "util.go", "package main\n\nfunc formatMessage(msg string) string {\n\treturn msg\n}")

	engine := query.NewEngine()
	engine.LexicalRetriever = lexicalRetriever(s)

	resp, err := engine.Search(query.Request{Query: "handler function", Limit: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results, "search should find results")

	found := false
	for _, r := range resp.Results {
		if r.Path == "main.go" {
			found = true
		}
	}
	assert.True(t, found, "should find main.go with handler function")
}

func TestIntegration_SearchAfterDelete_ExcludesDeleted(t *testing.T) {
	s := openTestStore(t)
	indexFile(t, s, "main.go", "package main\n\nfunc handleRequest() {}")

	engine := query.NewEngine()
	engine.LexicalRetriever = lexicalRetriever(s)

	resp, err := engine.Search(query.Request{Query: "handleRequest", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	require.NoError(t, s.DeleteItemByPath("main.go"))

	resp, err = engine.Search(query.Request{Query: "handleRequest", Limit: 10})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotEqual(t, "main.go", r.Path, "deleted item should not appear in results")
	}
}

func TestIntegration_EmptyIndex_ReturnsNoResults(t *testing.T) {
	s := openTestStore(t)
	engine := query.NewEngine()
	engine.LexicalRetriever = lexicalRetriever(s)

	resp, err := engine.Search(query.Request{Query: "any query", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestIntegration_SearchWithFilters_FiltersResults(t *testing.T) {
	s := openTestStore(t)
	indexFile(t, s, "main.go", "package main\n\nfunc main() {}")
	indexFile(t, s, "script.py", "def main():\n    pass")

	engine := query.NewEngine()
	engine.LexicalRetriever = lexicalRetriever(s)

	resp, err := engine.Search(query.Request{
		Query:   "main",
		Limit:   10,
		Filters: query.Filters{FileTypes: []string{".go"}},
	})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.Equal(t, ".go", filepath.Ext(r.Path), "filtered results should only contain .go files")
	}
}
