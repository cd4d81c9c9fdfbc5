package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/jinford/mevzuat-rag/internal/core/llm"
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client      openai.Client
	model       string
	dimension   int
	timeout     time.Duration
	baseBackoff time.Duration
}

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536
	// maxBatchSize は1リクエストあたりの最大入力数
	maxBatchSize = 100
)

type embedderOptions struct {
	model     string
	dimension int
	client    []ClientOption
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingClientOptions は接続設定を指定する
func WithEmbeddingClientOptions(opts ...ClientOption) EmbedderOption {
	return func(o *embedderOptions) {
		o.client = append(o.client, opts...)
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(&options)
	}
	co := resolveOptions(options.client)

	return &Embedder{
		client:      newSDKClient(apiKey, co),
		model:       options.model,
		dimension:   options.dimension,
		timeout:     co.timeout,
		baseBackoff: co.baseBackoff,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// BatchEmbed はバッチで Embedding を生成する（最大100件）
// 返却順は入力順と一致する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, llm.Wrap(providerName, "embed", 400, fmt.Errorf("no texts provided"))
	}
	if len(texts) > maxBatchSize {
		return nil, llm.Wrap(providerName, "embed", 400, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), maxBatchSize))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}
	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var resp *openai.CreateEmbeddingResponse
	err := withRetry(ctx, e.baseBackoff, func() error {
		var err error
		resp, err = e.client.Embeddings.New(ctx, params)
		return err
	})
	if err != nil {
		return nil, wrapError("embed", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, llm.Wrap(providerName, "embed", 0, fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, llm.Wrap(providerName, "embed", 0, fmt.Errorf("embedding index %d out of range", idx))
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings[idx] = vector
	}

	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return maxBatchSize
}

// インターフェース実装の確認
var _ llm.Embedder = (*Embedder)(nil)
