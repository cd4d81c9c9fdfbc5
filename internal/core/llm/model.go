package llm

import "context"

// CompletionRequest はテキスト生成のリクエスト
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string // 空の場合はクライアントの既定モデル
	Temperature float64
	MaxTokens   int
}

// CompletionResponse はテキスト生成のレスポンス
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// Generator はテキスト生成を行う外部協調者
type Generator interface {
	GenerateCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	ModelName() string
}

// Embedder はテキストをベクトルに変換する外部協調者
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimension() int
	MaxBatchSize() int
}
