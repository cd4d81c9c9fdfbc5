package search

import "context"

// Searcher はクエリベクトルに近いチャンクを返す
// 結果はスコア降順、同点の場合は ordinal の小さい順に並ぶ
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int, filter Filter) ([]Result, error)
}

// QueryEmbedder はクエリ文をベクトルに変換する
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
