package search

import (
	"context"
	"sort"

	"github.com/jinford/mevzuat-rag/internal/core/store"
)

// Engine は Store を線形走査してコサイン類似度で検索する
// 数千チャンク規模を想定しており索引構造は持たない
type Engine struct {
	handle *store.Handle
}

// NewEngine は新しい Engine を作成する
func NewEngine(handle *store.Handle) *Engine {
	return &Engine{handle: handle}
}

// Search はフィルタで候補を絞り込んだ後にスコアリングし、上位 topK 件を返す
func (e *Engine) Search(ctx context.Context, query []float32, topK int, filter Filter) ([]Result, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	// リクエスト中は同じスナップショットを使う
	s := e.handle.Current()
	if s == nil {
		return nil, ErrNoStore
	}
	if s.Len() == 0 {
		return []Result{}, nil
	}
	if dim := s.Metadata().Dimension; len(query) != dim {
		return nil, &DimensionMismatchError{Query: len(query), Store: dim}
	}

	results := make([]Result, 0, min(topK, s.Len()))
	for i, r := range s.Records() {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !filter.Match(r.Chunk) {
			continue
		}
		results = append(results, Result{Chunk: r.Chunk, Score: cosine(query, r.Vector)})
	}

	Sort(results)
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// Sort はスコア降順、同点なら ordinal 昇順、さらにチャンクID昇順で並べ替える
func Sort(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Ordinal != b.Chunk.Ordinal {
			return a.Chunk.Ordinal < b.Chunk.Ordinal
		}
		return a.Chunk.ID < b.Chunk.ID
	})
}

// DistinctDocuments は文書ごとに最上位のチャンクだけを残し、limit 件に絞って順位を振り直す
func DistinctDocuments(results []Result, limit int) []Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, min(limit, len(results)))
	for _, r := range results {
		if len(out) >= limit {
			break
		}
		if _, ok := seen[r.Chunk.DocumentID]; ok {
			continue
		}
		seen[r.Chunk.DocumentID] = struct{}{}
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out
}

var _ Searcher = (*Engine)(nil)
