package search

import (
	"sort"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/store"
)

// Browse はスコアリングせずにフィルタに一致するチャンクを返す
// 並びは法令名、条文順。limit が0以下なら全件
func Browse(s *store.Store, filter Filter, limit int) []*chunking.Chunk {
	if s == nil {
		return nil
	}

	var out []*chunking.Chunk
	for _, c := range s.AllChunks() {
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DocumentName != out[j].DocumentName {
			return out[i].DocumentName < out[j].DocumentName
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
