package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultTopK は top_k 未指定時の件数
	DefaultTopK = 5

	// distinctOversample は文書単位で重複除去する際に多めに取得する倍率
	distinctOversample = 4
)

// SearchService はクエリ文による検索のビジネスロジックを提供する
type SearchService struct {
	searcher Searcher
	embedder QueryEmbedder
	logger   *slog.Logger
}

type SearchServiceOption func(*SearchService)

// WithSearchLogger は SearchService にロガーを設定する
func WithSearchLogger(logger *slog.Logger) SearchServiceOption {
	return func(s *SearchService) {
		s.logger = logger
	}
}

// NewSearchService は新しいSearchServiceを作成する
func NewSearchService(searcher Searcher, embedder QueryEmbedder, opts ...SearchServiceOption) *SearchService {
	svc := &SearchService{
		searcher: searcher,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// SearchParams は検索パラメータを表す
type SearchParams struct {
	Query  string
	TopK   int
	Filter Filter
	// DistinctDocuments は同じ文書のチャンクを1件にまとめる
	DistinctDocuments bool
}

// Search はクエリ文を埋め込み、類似チャンクを返す
func (s *SearchService) Search(ctx context.Context, params SearchParams) ([]Result, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	topK := params.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return s.SearchVector(ctx, vector, topK, params.Filter, params.DistinctDocuments)
}

// SearchVector は埋め込み済みのクエリベクトルで検索する
func (s *SearchService) SearchVector(ctx context.Context, vector []float32, topK int, filter Filter, distinct bool) ([]Result, error) {
	started := time.Now()

	limit := topK
	if distinct {
		limit = topK * distinctOversample
	}

	results, err := s.searcher.Search(ctx, vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if distinct {
		results = DistinctDocuments(results, topK)
	}

	s.logger.Debug("search completed",
		"topK", topK,
		"distinct", distinct,
		"filtered", !filter.IsZero(),
		"results", len(results),
		"elapsed", time.Since(started),
	)
	return results, nil
}
