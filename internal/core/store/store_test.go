package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

type stubEmbedder struct {
	mu        sync.Mutex
	dimension int
	batchSize int
	// dimFor はテキストごとに返す次元を上書きする
	dimFor func(text string) int
	err    error
	calls  int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		dim := e.dimension
		if e.dimFor != nil {
			dim = e.dimFor(t)
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(len(t) + j)
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) ModelName() string { return "stub-embedding" }
func (e *stubEmbedder) Dimension() int    { return 0 }
func (e *stubEmbedder) MaxBatchSize() int { return e.batchSize }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeChunks(n int) []*chunking.Chunk {
	chunks := make([]*chunking.Chunk, n)
	for i := range chunks {
		chunks[i] = &chunking.Chunk{
			ID:           fmt.Sprintf("doc%d_%d", i%2, i),
			DocumentID:   fmt.Sprintf("doc%d", i%2),
			DocumentType: corpus.LawTypeKanun,
			Kind:         chunking.KindArticle,
			Ordinal:      i,
			Text:         fmt.Sprintf("MADDE %d - metin", i),
		}
	}
	return chunks
}

func TestBuild(t *testing.T) {
	embedder := &stubEmbedder{dimension: 3, batchSize: 2}
	chunks := makeChunks(5)

	var last int
	s, err := Build(context.Background(), chunks, embedder,
		WithConcurrency(2),
		WithBuildLogger(discardLogger()),
		WithProgress(func(done, total int) {
			assert.Equal(t, 5, total)
			last = max(last, done)
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, embedder.calls)
	assert.Equal(t, 5, last)
	assert.Equal(t, 5, s.Len())

	meta := s.Metadata()
	assert.NotEmpty(t, meta.BuildID)
	assert.Equal(t, "stub-embedding", meta.EmbeddingModel)
	assert.Equal(t, 3, meta.Dimension)

	// 挿入順が保たれる
	all := s.AllChunks()
	for i, c := range all {
		assert.Equal(t, chunks[i].ID, c.ID)
	}

	rec, ok := s.Get(chunks[3].ID)
	require.True(t, ok)
	assert.Len(t, rec.Vector, 3)

	st := s.Stats()
	assert.Equal(t, 2, st.TotalDocuments)
	assert.Equal(t, 5, st.ByLawType[corpus.LawTypeKanun])
}

func TestBuild_InconsistentDimensionFailsFast(t *testing.T) {
	embedder := &stubEmbedder{
		batchSize: 10,
		dimFor: func(text string) int {
			if text == "MADDE 2 - metin" {
				return 4
			}
			return 3
		},
	}

	_, err := Build(context.Background(), makeChunks(4), embedder, WithBuildLogger(discardLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistentDimension)
}

func TestBuild_EmbedderError(t *testing.T) {
	boom := errors.New("unavailable")
	embedder := &stubEmbedder{dimension: 3, batchSize: 1, err: boom}

	_, err := Build(context.Background(), makeChunks(3), embedder, WithConcurrency(1), WithBuildLogger(discardLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, embedder.calls, "最初の失敗で残りのバッチは開始されない")
}

func TestBuild_NoChunks(t *testing.T) {
	_, err := Build(context.Background(), nil, &stubEmbedder{dimension: 3})
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestNew_Validation(t *testing.T) {
	chunk := &chunking.Chunk{ID: "a_0"}

	tests := []struct {
		name    string
		meta    Metadata
		records []Record
	}{
		{name: "次元なし", meta: Metadata{Dimension: 0, ChunkCount: 1}, records: []Record{{Chunk: chunk, Vector: []float32{1}}}},
		{name: "件数不一致", meta: Metadata{Dimension: 1, ChunkCount: 2}, records: []Record{{Chunk: chunk, Vector: []float32{1}}}},
		{name: "ベクトル長不一致", meta: Metadata{Dimension: 2, ChunkCount: 1}, records: []Record{{Chunk: chunk, Vector: []float32{1}}}},
		{name: "ID重複", meta: Metadata{Dimension: 1, ChunkCount: 2}, records: []Record{{Chunk: chunk, Vector: []float32{1}}, {Chunk: chunk, Vector: []float32{2}}}},
		{name: "チャンクなし", meta: Metadata{Dimension: 1, ChunkCount: 1}, records: []Record{{Vector: []float32{1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.meta, tt.records, nil)
			assert.ErrorIs(t, err, ErrCorruptStore)
		})
	}
}

type stubRepository struct {
	store *Store
	err   error
}

func (r *stubRepository) Publish(ctx context.Context, s *Store) (string, error) {
	r.store = s
	return "stub", nil
}

func (r *stubRepository) LoadCurrent(ctx context.Context) (*Store, error) {
	return r.store, r.err
}

func buildStore(t *testing.T, n int) *Store {
	t.Helper()
	s, err := Build(context.Background(), makeChunks(n), &stubEmbedder{dimension: 3, batchSize: 10}, WithBuildLogger(discardLogger()))
	require.NoError(t, err)
	return s
}

func TestLoad_ModelMismatch(t *testing.T) {
	repo := &stubRepository{store: buildStore(t, 2)}

	_, err := Load(context.Background(), repo, WithExpectedModel("text-embedding-3-small", 0))
	assert.ErrorIs(t, err, ErrModelMismatch)

	_, err = Load(context.Background(), repo, WithExpectedModel("stub-embedding", 1536))
	assert.ErrorIs(t, err, ErrModelMismatch)

	s, err := Load(context.Background(), repo, WithExpectedModel("stub-embedding", 3))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestHandle_SwapAndReload(t *testing.T) {
	first := buildStore(t, 1)
	h := NewHandle(first, discardLogger())
	assert.Same(t, first, h.Current())

	// 読み取り中に差し替えても古い参照は有効なまま
	second := buildStore(t, 2)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := h.Current()
			assert.NotNil(t, s)
			assert.Positive(t, s.Len())
		}()
	}
	old := h.Swap(second)
	wg.Wait()
	assert.Same(t, first, old)
	assert.Equal(t, 2, h.Current().Len())

	// 検証に失敗した再読み込みは現在の Store を維持する
	repo := &stubRepository{err: ErrCorruptStore}
	require.ErrorIs(t, h.Reload(context.Background(), repo), ErrCorruptStore)
	assert.Same(t, second, h.Current())

	third := buildStore(t, 3)
	repo = &stubRepository{store: third}
	require.NoError(t, h.Reload(context.Background(), repo))
	assert.Same(t, third, h.Current())
}

func TestHandle_SwapNilKeepsCurrent(t *testing.T) {
	first := buildStore(t, 1)
	h := NewHandle(first, discardLogger())

	assert.NotPanics(t, func() {
		assert.Nil(t, h.Swap(nil))
	})
	assert.Same(t, first, h.Current())

	empty := NewHandle(nil, discardLogger())
	assert.Nil(t, empty.Swap(nil))
	assert.Nil(t, empty.Current())
}
