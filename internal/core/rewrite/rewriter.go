package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/mevzuat-rag/internal/core/llm"
)

const (
	// DefaultModel は書き換えに使うモデル
	DefaultModel = "gpt-4o-mini"
	// DefaultMaxTokens は応答トークン上限
	DefaultMaxTokens = 500
	// DefaultMaxInputTokens は質問文に許すトークン上限
	DefaultMaxInputTokens = 1000
	// DefaultTemperature はサンプリング温度
	DefaultTemperature = 0.3
	// DefaultTimeout は1回の呼び出しのタイムアウト
	DefaultTimeout = 15 * time.Second
)

// TokenTrimmer はテキストをトークン上限で切り詰める
type TokenTrimmer interface {
	CountTokens(text string) int
	TrimToTokenLimit(text string, limit int) string
}

// Config は Rewriter の設定
type Config struct {
	Model          string
	MaxTokens      int
	MaxInputTokens int
	Temperature    float64
	Timeout        time.Duration
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Model:          DefaultModel,
		MaxTokens:      DefaultMaxTokens,
		MaxInputTokens: DefaultMaxInputTokens,
		Temperature:    DefaultTemperature,
		Timeout:        DefaultTimeout,
	}
}

// Result は書き換え結果
type Result struct {
	Query string
	// FellBack は元の質問をそのまま使ったことを示す
	FellBack bool
	// Err はフォールバックの原因（ログ用）
	Err error
}

// Rewriter は質問文を検索向けのキーワード列に変換する
// 失敗しても元の質問を返すため、パイプラインを止めることはない
type Rewriter struct {
	generator llm.Generator
	tokens    TokenTrimmer
	cfg       Config
	logger    *slog.Logger
}

type Option func(*Rewriter)

// WithLogger は Rewriter にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rewriter) {
		r.logger = logger
	}
}

// New は新しい Rewriter を作成する
func New(generator llm.Generator, tokens TokenTrimmer, cfg Config, opts ...Option) *Rewriter {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = def.MaxInputTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	r := &Rewriter{
		generator: generator,
		tokens:    tokens,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Rewrite は質問を書き換える
func (r *Rewriter) Rewrite(ctx context.Context, question string) Result {
	query, err := r.rewrite(ctx, question)
	if err != nil {
		r.logger.Warn("query rewrite failed, using original question", "error", err)
		return Result{Query: question, FellBack: true, Err: err}
	}
	return Result{Query: query}
}

func (r *Rewriter) rewrite(ctx context.Context, question string) (string, error) {
	input := question
	if r.tokens != nil && r.tokens.CountTokens(input) > r.cfg.MaxInputTokens {
		input = r.tokens.TrimToTokenLimit(input, r.cfg.MaxInputTokens)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := r.generator.GenerateCompletion(callCtx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      BuildPrompt(input),
		Model:       r.cfg.Model,
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", llm.Wrap(r.generator.ModelName(), "rewrite", 0, fmt.Errorf("%w: %v", context.DeadlineExceeded, err))
		}
		return "", err
	}

	query := cleanResponse(resp.Content)
	if query == "" {
		return "", fmt.Errorf("empty rewrite response")
	}
	if r.tokens != nil && r.tokens.CountTokens(query) > r.cfg.MaxTokens {
		query = r.tokens.TrimToTokenLimit(query, r.cfg.MaxTokens)
	}
	return query, nil
}
