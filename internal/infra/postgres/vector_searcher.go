package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/mevzuat-rag/internal/core/search"
	"github.com/jinford/mevzuat-rag/internal/core/store"
)

// VectorSearcher は現行ビルドに対する近傍検索を pgvector で実行します
type VectorSearcher struct {
	db            *DB
	expectedModel string
}

type VectorSearcherOption func(*VectorSearcher)

// WithSearcherExpectedModel は現行ビルドの埋め込みモデルがクエリ側と一致するかを検索ごとに検証する
func WithSearcherExpectedModel(model string) VectorSearcherOption {
	return func(s *VectorSearcher) {
		s.expectedModel = model
	}
}

// NewVectorSearcher は新しい VectorSearcher を返す。
func NewVectorSearcher(db *DB, opts ...VectorSearcherOption) *VectorSearcher {
	s := &VectorSearcher{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ search.Searcher = (*VectorSearcher)(nil)

func (s *VectorSearcher) Search(ctx context.Context, query []float32, topK int, filter search.Filter) ([]search.Result, error) {
	if topK <= 0 {
		return nil, search.ErrInvalidTopK
	}

	meta, err := currentBuild(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrNoStore, err)
	}
	// 現行ビルドは検索ごとに読むため、起動後の再ビルドもここで検証する
	if s.expectedModel != "" && meta.EmbeddingModel != s.expectedModel {
		return nil, fmt.Errorf("%w: current build %s uses %q, queries use %q", store.ErrModelMismatch, meta.BuildID, meta.EmbeddingModel, s.expectedModel)
	}
	if len(query) != meta.Dimension {
		return nil, &search.DimensionMismatchError{Query: len(query), Store: meta.Dimension}
	}

	kind, lawType, lawName := filterArgs(filter)
	// ノルム0のベクトルは距離が NaN になるため、メモリ検索と同じくスコア0（距離1）として並べる
	rows, err := s.db.Pool.Query(ctx, `
		SELECT c.chunk_id, c.document_id, c.document_name, c.law_type, c.kind, c.ordinal,
			c.header, c.text, c.tokens, c.char_count, c.word_count, c.oversized, v.embedding::real[],
			COALESCE(NULLIF((v.embedding <=> $1::vector)::float8, 'NaN'::float8), 1) AS distance
		FROM store_chunks c
		JOIN store_vectors v ON v.build_id = c.build_id AND v.chunk_id = c.chunk_id
		WHERE c.build_id = $2
			AND ($3::text IS NULL OR c.kind = $3)
			AND ($4::text IS NULL OR c.law_type = $4)
			AND ($5::text IS NULL OR c.document_name = $5)
		ORDER BY distance, c.ordinal, c.chunk_id
		LIMIT $6`,
		pgvector.NewVector(query), meta.BuildID, kind, lawType, lawName, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	defer rows.Close()

	results := make([]search.Result, 0, topK)
	for rows.Next() {
		var distance float64
		c, _, err := scanChunk(rows, &distance)
		if err != nil {
			return nil, err
		}
		results = append(results, search.Result{Chunk: c, Score: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	search.Sort(results)
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}
