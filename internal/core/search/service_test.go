package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandle(t *testing.T, records ...store.Record) *store.Handle {
	t.Helper()
	dim := 0
	if len(records) > 0 {
		dim = len(records[0].Vector)
	}
	s, err := store.New(store.Metadata{BuildID: "b1", EmbeddingModel: "stub", Dimension: max(dim, 1), BuiltAt: time.Now(), ChunkCount: len(records)}, records, nil)
	require.NoError(t, err)
	return store.NewHandle(s, discardLogger())
}

func record(id, docID string, ordinal int, kind chunking.Kind, lawType corpus.LawType, vec ...float32) store.Record {
	return store.Record{
		Chunk: &chunking.Chunk{
			ID:           id,
			DocumentID:   docID,
			DocumentName: docID + " Kanunu",
			DocumentType: lawType,
			Kind:         kind,
			Ordinal:      ordinal,
			Text:         id,
		},
		Vector: vec,
	}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.ID
	}
	return out
}

func TestEngine_RanksByCosine(t *testing.T) {
	h := newHandle(t,
		record("a_0", "a", 0, chunking.KindArticle, corpus.LawTypeKanun, 1, 0),
		record("a_1", "a", 1, chunking.KindArticle, corpus.LawTypeKanun, 0, 1),
		record("b_0", "b", 0, chunking.KindSection, corpus.LawTypeYonetmelik, 1, 1),
	)
	engine := NewEngine(h)

	results, err := engine.Search(context.Background(), []float32{1, 0}, 2, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{"a_0", "b_0"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestEngine_TiesBrokenByOrdinal(t *testing.T) {
	h := newHandle(t,
		record("x_7", "x", 7, chunking.KindArticle, corpus.LawTypeKanun, 1, 0),
		record("x_3", "x", 3, chunking.KindArticle, corpus.LawTypeKanun, 2, 0),
	)

	results, err := NewEngine(h).Search(context.Background(), []float32{1, 0}, 2, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x_3", "x_7"}, ids(results))
}

func TestEngine_FiltersBeforeScoring(t *testing.T) {
	h := newHandle(t,
		record("a_0", "a", 0, chunking.KindArticle, corpus.LawTypeKanun, 1, 0),
		record("b_0", "b", 0, chunking.KindSection, corpus.LawTypeYonetmelik, 0.5, 0.5),
		record("b_1", "b", 1, chunking.KindArticle, corpus.LawTypeYonetmelik, 0, 1),
	)
	engine := NewEngine(h)

	section := chunking.KindSection
	regulation := corpus.LawTypeYonetmelik
	name := "a Kanunu"

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "種類", filter: Filter{Kind: &section}, want: []string{"b_0"}},
		{name: "法令種別", filter: Filter{DocumentType: &regulation}, want: []string{"b_0", "b_1"}},
		{name: "法令名", filter: Filter{DocumentName: &name}, want: []string{"a_0"}},
		{name: "複数条件の論理積", filter: Filter{Kind: &section, DocumentName: &name}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.Search(context.Background(), []float32{1, 0}, 10, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(results))
			for _, r := range results {
				assert.True(t, tt.filter.Match(r.Chunk))
			}
		})
	}
}

func TestEngine_Errors(t *testing.T) {
	h := newHandle(t, record("a_0", "a", 0, chunking.KindArticle, corpus.LawTypeKanun, 1, 0, 0))
	engine := NewEngine(h)

	_, err := engine.Search(context.Background(), []float32{1, 0}, 1, Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	var dm *DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 2, dm.Query)
	assert.Equal(t, 3, dm.Store)

	_, err = engine.Search(context.Background(), []float32{1, 0, 0}, 0, Filter{})
	assert.ErrorIs(t, err, ErrInvalidTopK)

	_, err = NewEngine(store.NewHandle(nil, discardLogger())).Search(context.Background(), []float32{1}, 1, Filter{})
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestEngine_EmptyStoreIsNotAnError(t *testing.T) {
	results, err := NewEngine(newHandle(t)).Search(context.Background(), []float32{1, 0}, 3, Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_ZeroVectorScoresZero(t *testing.T) {
	h := newHandle(t, record("a_0", "a", 0, chunking.KindArticle, corpus.LawTypeKanun, 0, 0))
	results, err := NewEngine(h).Search(context.Background(), []float32{1, 0}, 1, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Score)
}

func TestEngine_ConcurrentSearches(t *testing.T) {
	h := newHandle(t,
		record("a_0", "a", 0, chunking.KindArticle, corpus.LawTypeKanun, 1, 0),
		record("a_1", "a", 1, chunking.KindArticle, corpus.LawTypeKanun, 0, 1),
	)
	engine := NewEngine(h)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := []float32{1, 0}
			if i%2 == 1 {
				q = []float32{0, 1}
			}
			results, err := engine.Search(context.Background(), q, 1, Filter{})
			assert.NoError(t, err)
			if assert.Len(t, results, 1) {
				assert.Equal(t, "a_"+string(rune('0'+i%2)), results[0].Chunk.ID)
			}
		}()
	}
	wg.Wait()
}

type stubEmbedder struct{ called bool }

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.called = true
	return []float32{1, 0}, nil
}

func TestSearchService_DistinctDocuments(t *testing.T) {
	h := newHandle(t,
		record("a_0", "a", 0, chunking.KindArticle, corpus.LawTypeKanun, 1, 0),
		record("a_1", "a", 1, chunking.KindArticle, corpus.LawTypeKanun, 0.9, 0.1),
		record("b_0", "b", 0, chunking.KindArticle, corpus.LawTypeKanun, 0.5, 0.5),
	)
	embedder := &stubEmbedder{}
	svc := NewSearchService(NewEngine(h), embedder, WithSearchLogger(discardLogger()))

	results, err := svc.Search(context.Background(), SearchParams{Query: "kıdem tazminatı", TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a_0", "a_1"}, ids(results))
	assert.True(t, embedder.called)

	results, err = svc.Search(context.Background(), SearchParams{Query: "kıdem tazminatı", TopK: 2, DistinctDocuments: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a_0", "b_0"}, ids(results))
	assert.Equal(t, 2, results[1].Rank)

	_, err = svc.Search(context.Background(), SearchParams{})
	assert.Error(t, err)
}

func TestEngine_RepeatedSearchIsDeterministic(t *testing.T) {
	h := newHandle(t,
		record("a_0", "a", 0, chunking.KindArticle, corpus.LawTypeKanun, 0.6, 0.8),
		record("a_1", "a", 1, chunking.KindArticle, corpus.LawTypeKanun, 0.8, 0.6),
		record("b_0", "b", 0, chunking.KindSection, corpus.LawTypeYonetmelik, 0.6, 0.8),
		record("b_1", "b", 1, chunking.KindArticle, corpus.LawTypeYonetmelik, 1, 0),
		record("c_0", "c", 0, chunking.KindArticle, corpus.LawTypeTeblig, 0, 1),
	)
	engine := NewEngine(h)

	first, err := engine.Search(context.Background(), []float32{0.7, 0.7}, 4, Filter{})
	require.NoError(t, err)
	require.Len(t, first, 4)

	for range 20 {
		again, err := engine.Search(context.Background(), []float32{0.7, 0.7}, 4, Filter{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngine_FilterNarrowerThanTopK(t *testing.T) {
	h := newHandle(t,
		record("a_0", "a", 0, chunking.KindArticle, corpus.LawTypeKanun, 1, 0),
		record("a_1", "a", 1, chunking.KindArticle, corpus.LawTypeKanun, 0.9, 0.1),
		record("a_2", "a", 2, chunking.KindArticle, corpus.LawTypeKanun, 0.8, 0.2),
		record("b_0", "b", 0, chunking.KindArticle, corpus.LawTypeYonetmelik, 0, 1),
		record("b_1", "b", 1, chunking.KindSection, corpus.LawTypeYonetmelik, 0.5, 0.5),
	)

	regulation := corpus.LawTypeYonetmelik
	results, err := NewEngine(h).Search(context.Background(), []float32{1, 0}, 5, Filter{DocumentType: &regulation})
	require.NoError(t, err)

	// 一致する2件だけを返し、条件外のチャンクで埋めない
	require.Len(t, results, 2)
	assert.Equal(t, []string{"b_1", "b_0"}, ids(results))
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
}

func TestBrowse(t *testing.T) {
	h := newHandle(t,
		record("b_1", "b", 1, chunking.KindArticle, corpus.LawTypeYonetmelik, 1, 0),
		record("a_1", "a", 1, chunking.KindArticle, corpus.LawTypeKanun, 1, 0),
		record("a_0", "a", 0, chunking.KindSection, corpus.LawTypeKanun, 1, 0),
		record("b_0", "b", 0, chunking.KindArticle, corpus.LawTypeYonetmelik, 1, 0),
	)
	s := h.Current()

	chunkIDs := func(chunks []*chunking.Chunk) []string {
		out := make([]string, len(chunks))
		for i, c := range chunks {
			out[i] = c.ID
		}
		return out
	}

	assert.Equal(t, []string{"a_0", "a_1", "b_0", "b_1"}, chunkIDs(Browse(s, Filter{}, 0)))
	assert.Equal(t, []string{"a_0", "a_1"}, chunkIDs(Browse(s, Filter{}, 2)))

	article := chunking.KindArticle
	regulation := corpus.LawTypeYonetmelik
	assert.Equal(t, []string{"a_1", "b_0", "b_1"}, chunkIDs(Browse(s, Filter{Kind: &article}, 10)))
	assert.Equal(t, []string{"b_0", "b_1"}, chunkIDs(Browse(s, Filter{DocumentType: &regulation}, 10)))

	assert.Nil(t, Browse(nil, Filter{}, 10))
}
