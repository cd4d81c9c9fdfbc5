package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/jinford/mevzuat-rag/internal/core/llm"
)

const (
	// DefaultServerURL はローカルの Ollama サーバー
	DefaultServerURL = "http://localhost:11434"
	// DefaultChatModel は生成用の既定モデル
	DefaultChatModel = "llama3.1"
	// DefaultEmbeddingModel は埋め込み用の既定モデル
	DefaultEmbeddingModel = "nomic-embed-text:latest"

	providerName = "ollama"
	maxBatchSize = 32
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type embeddingCreator interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Config は Ollama 接続設定
type Config struct {
	ServerURL string
	Model     string
	Dimension int // 埋め込み次元（不明なら0）
}

func (c Config) withDefaults(model string) Config {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.Model == "" {
		c.Model = model
	}
	return c
}

// Client は langchaingo 経由で Ollama を使う生成クライアント
type Client struct {
	llm   contentGenerator
	model string
}

// NewClient は新しい Client を作成する
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults(DefaultChatModel)
	model, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.ServerURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama LLM: %w", err)
	}
	return &Client{llm: model, model: cfg.Model}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// GenerateCompletion はシステム指示とユーザー入力からテキストを生成する
func (c *Client) GenerateCompletion(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	opts = append(opts, llms.WithModel(model))

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return llm.CompletionResponse{}, llm.Wrap(providerName, "chat", 0, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llm.Wrap(providerName, "chat", 0, errors.New("no completion choices returned"))
	}

	return llm.CompletionResponse{
		Content: strings.TrimSpace(resp.Choices[0].Content),
		Model:   model,
	}, nil
}

// Embedder は langchaingo 経由で Ollama を使う埋め込みクライアント
type Embedder struct {
	llm       embeddingCreator
	model     string
	dimension int
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(cfg Config) (*Embedder, error) {
	cfg = cfg.withDefaults(DefaultEmbeddingModel)
	model, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.ServerURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
	}
	return &Embedder{llm: model, model: cfg.Model, dimension: cfg.Dimension}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// BatchEmbed はバッチで Embedding を生成する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, llm.Wrap(providerName, "embed", 400, errors.New("no texts provided"))
	}

	vecs, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, llm.Wrap(providerName, "embed", 0, err)
	}
	if len(vecs) != len(texts) {
		return nil, llm.Wrap(providerName, "embed", 0, fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(texts)))
	}
	return vecs, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string { return e.model }

// Dimension は設定された次元数を返す。0の場合はビルド時に最初のベクトルから決まる
func (e *Embedder) Dimension() int { return e.dimension }

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int { return maxBatchSize }

var (
	_ llm.Generator = (*Client)(nil)
	_ llm.Embedder  = (*Embedder)(nil)
)
