package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/mevzuat-rag/internal/core/llm"
	"github.com/jinford/mevzuat-rag/internal/core/rewrite"
	"github.com/jinford/mevzuat-rag/internal/core/search"
	"github.com/jinford/mevzuat-rag/internal/core/store"
)

// QueryRewriter は質問を検索向けに書き換える。失敗時は元の質問を返す
type QueryRewriter interface {
	Rewrite(ctx context.Context, question string) rewrite.Result
}

// VectorSearcher は埋め込み済みのクエリで検索する
type VectorSearcher interface {
	SearchVector(ctx context.Context, vector []float32, topK int, filter search.Filter, distinct bool) ([]search.Result, error)
}

// Config は AskService の設定
type Config struct {
	TopK                 int
	DistinctDocuments    bool
	MaxContextTokens     int
	SynthesisModel       string
	SynthesisMaxTokens   int
	SynthesisTemperature float64
	EmbedTimeout         time.Duration
	SynthesisTimeout     time.Duration
	SynthesisRetries     int
	RetryBackoff         time.Duration
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		TopK:                 search.DefaultTopK,
		DistinctDocuments:    true,
		MaxContextTokens:     12000,
		SynthesisModel:       "gpt-4o",
		SynthesisMaxTokens:   4000,
		SynthesisTemperature: 0.1,
		EmbedTimeout:         20 * time.Second,
		SynthesisTimeout:     90 * time.Second,
		SynthesisRetries:     2,
		RetryBackoff:         time.Second,
	}
}

// AskService は質問応答パイプラインを実行する
// 各リクエストは独立しており、複数のゴルーチンから同時に呼び出してよい
type AskService struct {
	rewriter  QueryRewriter
	embedder  search.QueryEmbedder
	searcher  VectorSearcher
	generator llm.Generator
	tokens    TokenCounter
	recorder  RunRecorder
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// WithRunRecorder は実行記録の保存先を設定する
func WithRunRecorder(recorder RunRecorder) AskServiceOption {
	return func(s *AskService) {
		s.recorder = recorder
	}
}

// WithConfig は設定を上書きする
func WithConfig(cfg Config) AskServiceOption {
	return func(s *AskService) {
		s.cfg = cfg
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	rewriter QueryRewriter,
	embedder search.QueryEmbedder,
	searcher VectorSearcher,
	generator llm.Generator,
	tokens TokenCounter,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		rewriter:  rewriter,
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		tokens:    tokens,
		recorder:  NopRecorder{},
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.recorder == nil {
		svc.recorder = NopRecorder{}
	}

	return svc
}

// Ask は質問に対してRAGベースで回答を生成する
// 失敗してもエラーではなく Status=failed の結果を返す
// 呼び出し元のコンテキストがキャンセルされた場合のみ ctx.Err() を返し、回答は破棄される
func (s *AskService) Ask(ctx context.Context, params AskParams) (*AskResult, error) {
	question := strings.TrimSpace(params.Question)
	r := newRun(question, s.now())
	topK := params.TopK.OrElse(s.cfg.TopK)
	filter := params.Filter.OrElse(search.Filter{})
	logger := s.logger.With("runID", r.id.String())

	defer func() {
		s.record(ctx, r, topK, filter)
	}()

	// 1. バリデーション
	if question == "" {
		return s.fail(r, ReasonInvalidQuestion, MessageInvalidQuestion), nil
	}
	if topK <= 0 {
		return s.fail(r, ReasonInvalidTopK, MessageInvalidTopK), nil
	}

	// 2. クエリ書き換え（失敗しても元の質問で継続する）
	s.transition(logger, r, StateRewriting)
	rw := s.rewriter.Rewrite(ctx, question)
	r.result.RewrittenQuery = rw.Query
	r.result.RewriteFellBack = rw.FellBack
	if err := ctx.Err(); err != nil {
		return s.cancel(logger, r, err)
	}

	// 3. 検索
	s.transition(logger, r, StateRetrieving)
	vector, err := s.embedQuery(ctx, rw.Query)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancel(logger, r, ctx.Err())
		}
		logger.Error("query embedding failed", "error", err)
		return s.fail(r, ReasonEmbeddingFailed, MessageRetrievalFailed), nil
	}

	results, err := s.searcher.SearchVector(ctx, vector, topK, filter, s.cfg.DistinctDocuments)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancel(logger, r, ctx.Err())
		}
		reason := ReasonSearchFailed
		switch {
		case errors.Is(err, search.ErrDimensionMismatch):
			reason = ReasonDimensionMismatch
		case errors.Is(err, store.ErrModelMismatch):
			reason = ReasonModelMismatch
		}
		logger.Error("search failed", "reason", reason, "error", err)
		return s.fail(r, reason, MessageRetrievalFailed), nil
	}

	logger.Info("retrieval completed",
		"query", rw.Query,
		"rewriteFellBack", rw.FellBack,
		"topK", topK,
		"results", len(results),
	)

	// 4. プロンプト構築と回答生成
	s.transition(logger, r, StateSynthesizing)
	prompt, used := BuildPrompt(PromptInput{
		Question:         question,
		RewrittenQuery:   rw.Query,
		Results:          results,
		MaxContextTokens: s.cfg.MaxContextTokens,
	}, s.tokens)
	r.result.Matches = toMatches(used)

	answer, err := s.synthesize(ctx, logger, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancel(logger, r, ctx.Err())
		}
		logger.Error("synthesis failed", "error", err)
		return s.fail(r, ReasonSynthesisFailed, synthesisFailureAnswer(used)), nil
	}

	// 5. 結果の確定
	s.transition(logger, r, StateCompleted)
	r.result.Answer = answer
	r.result.Status = StatusSuccess
	if len(used) == 0 {
		r.result.Status = StatusDegraded
		r.result.Reason = ReasonNoMatch
	}

	res := r.finish(s.now())
	logger.Info("ask completed", "status", res.Status, "matches", len(res.Matches), "elapsed", res.Elapsed)
	return res, nil
}

func (s *AskService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(callCtx, query)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, llm.Wrap("embedder", "embed query", 0, fmt.Errorf("%w: %v", context.DeadlineExceeded, err))
		}
		return nil, err
	}
	return vector, nil
}

// synthesize は回答生成を行う。タイムアウトや一時的な障害は設定回数まで再試行する
func (s *AskService) synthesize(ctx context.Context, logger *slog.Logger, prompt string) (string, error) {
	req := llm.CompletionRequest{
		System:      synthesisSystemPrompt,
		Prompt:      prompt,
		Model:       s.cfg.SynthesisModel,
		Temperature: s.cfg.SynthesisTemperature,
		MaxTokens:   s.cfg.SynthesisMaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.SynthesisRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("retrying synthesis", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		answer, err := s.generateOnce(ctx, req)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !llm.Retryable(err) {
			break
		}
	}
	return "", lastErr
}

func (s *AskService) generateOnce(ctx context.Context, req llm.CompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SynthesisTimeout)
	defer cancel()

	resp, err := s.generator.GenerateCompletion(callCtx, req)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", llm.Wrap(s.generator.ModelName(), "synthesize", 0, fmt.Errorf("%w: %v", context.DeadlineExceeded, err))
		}
		return "", err
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", llm.Wrap(s.generator.ModelName(), "synthesize", 0, errors.New("empty completion"))
	}
	return answer, nil
}

func (s *AskService) transition(logger *slog.Logger, r *run, next State) {
	if err := r.to(next); err != nil {
		logger.Error("state transition rejected", "error", err)
	}
}

func (s *AskService) fail(r *run, reason Reason, message string) *AskResult {
	_ = r.to(StateFailed)
	r.result.Status = StatusFailed
	r.result.Reason = reason
	r.result.Answer = message
	return r.finish(s.now())
}

func (s *AskService) cancel(logger *slog.Logger, r *run, err error) (*AskResult, error) {
	logger.Info("ask abandoned", "state", r.state, "error", err)
	_ = r.to(StateFailed)
	r.result.Status = StatusFailed
	r.result.Reason = ReasonCanceled
	r.result.Answer = ""
	return nil, err
}

// record は実行記録を非同期に保存する。記録の失敗は応答に影響しない
func (s *AskService) record(ctx context.Context, r *run, topK int, filter search.Filter) {
	res := r.finish(s.now())
	rec := RunRecord{
		RunID:           res.RunID,
		StartedAt:       r.startedAt,
		Question:        res.Question,
		RewrittenQuery:  res.RewrittenQuery,
		RewriteFellBack: res.RewriteFellBack,
		TopK:            topK,
		Status:          res.Status,
		Reason:          res.Reason,
		ResultCount:     len(res.Matches),
		Elapsed:         res.Elapsed,
	}
	if filter.Kind != nil {
		rec.KindFilter = string(*filter.Kind)
	}
	if filter.DocumentType != nil {
		rec.LawTypeFilter = string(*filter.DocumentType)
	}
	if filter.DocumentName != nil {
		rec.LawNameFilter = *filter.DocumentName
	}
	for _, m := range res.Matches {
		rec.ChunkIDs = append(rec.ChunkIDs, m.ChunkID)
	}

	if err := s.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record run", "runID", res.RunID.String(), "error", err)
	}
}
