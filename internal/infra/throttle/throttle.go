package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/jinford/mevzuat-rag/internal/core/llm"
)

// NewLimiter は1分あたりのリクエスト数から limiter を作成する
// requestsPerMinute が0以下なら制限しない
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	every := time.Minute / time.Duration(requestsPerMinute)
	burst := max(requestsPerMinute/60, 1)
	return rate.NewLimiter(rate.Every(every), burst)
}

// Embedder はレート制限付きの Embedder
type Embedder struct {
	next    llm.Embedder
	limiter *rate.Limiter
}

// WrapEmbedder は Embedder にレート制限を付与する
func WrapEmbedder(next llm.Embedder, limiter *rate.Limiter) *Embedder {
	return &Embedder{next: next, limiter: limiter}
}

// Embed はレート制限に従って待機してから埋め込みを行う
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.next.Embed(ctx, text)
}

// BatchEmbed はレート制限に従って待機してからバッチ埋め込みを行う
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.next.BatchEmbed(ctx, texts)
}

func (e *Embedder) ModelName() string { return e.next.ModelName() }
func (e *Embedder) Dimension() int    { return e.next.Dimension() }
func (e *Embedder) MaxBatchSize() int { return e.next.MaxBatchSize() }

// Generator はレート制限付きの Generator
type Generator struct {
	next    llm.Generator
	limiter *rate.Limiter
}

// WrapGenerator は Generator にレート制限を付与する
func WrapGenerator(next llm.Generator, limiter *rate.Limiter) *Generator {
	return &Generator{next: next, limiter: limiter}
}

// GenerateCompletion はレート制限に従って待機してからテキストを生成する
func (g *Generator) GenerateCompletion(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return llm.CompletionResponse{}, err
	}
	return g.next.GenerateCompletion(ctx, req)
}

func (g *Generator) ModelName() string { return g.next.ModelName() }

var (
	_ llm.Embedder  = (*Embedder)(nil)
	_ llm.Generator = (*Generator)(nil)
)
