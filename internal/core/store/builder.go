package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/llm"
)

const (
	defaultBatchSize   = 100
	defaultConcurrency = 4
)

type buildOptions struct {
	concurrency int
	documents   []*corpus.Document
	progress    func(done, total int)
	logger      *slog.Logger
	now         func() time.Time
}

// BuildOption は Build のオプション設定
type BuildOption func(*buildOptions)

// WithConcurrency は同時に実行する埋め込みバッチ数を設定する
func WithConcurrency(n int) BuildOption {
	return func(o *buildOptions) {
		o.concurrency = n
	}
}

// WithDocuments はストアに保存する文書メタデータを設定する
func WithDocuments(docs []*corpus.Document) BuildOption {
	return func(o *buildOptions) {
		o.documents = docs
	}
}

// WithProgress は埋め込み済みチャンク数の通知先を設定する
func WithProgress(fn func(done, total int)) BuildOption {
	return func(o *buildOptions) {
		o.progress = fn
	}
}

// WithBuildLogger はロガーを設定する
func WithBuildLogger(logger *slog.Logger) BuildOption {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// Build はチャンクを埋め込み、新しい Store を作成する
// 埋め込みの失敗や次元の不一致が起きた時点で残りのバッチを打ち切る
func Build(ctx context.Context, chunks []*chunking.Chunk, embedder llm.Embedder, opts ...BuildOption) (*Store, error) {
	o := buildOptions{
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	batchSize := embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var expectedDim atomic.Int64
	if d := embedder.Dimension(); d > 0 {
		expectedDim.Store(int64(d))
	}

	vectors := make([][]float32, len(chunks))
	var done atomic.Int64
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.EmbeddingText())
			}

			vecs, err := embedder.BatchEmbed(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
			}

			for i, v := range vecs {
				if len(v) == 0 {
					return fmt.Errorf("%w: empty vector for chunk %s", ErrInconsistentDimension, chunks[start+i].ID)
				}
				expectedDim.CompareAndSwap(0, int64(len(v)))
				if want := expectedDim.Load(); int64(len(v)) != want {
					return fmt.Errorf("%w: chunk %s has %d dimensions, want %d", ErrInconsistentDimension, chunks[start+i].ID, len(v), want)
				}
				vectors[start+i] = v
			}

			n := done.Add(int64(len(vecs)))
			if o.progress != nil {
				progressMu.Lock()
				o.progress(int(n), len(chunks))
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{Chunk: c, Vector: vectors[i]}
	}

	meta := Metadata{
		BuildID:        uuid.NewString(),
		EmbeddingModel: embedder.ModelName(),
		Dimension:      int(expectedDim.Load()),
		BuiltAt:        o.now().UTC(),
		ChunkCount:     len(records),
	}

	s, err := New(meta, records, o.documents)
	if err != nil {
		// 重複IDなど入力側の問題
		return nil, fmt.Errorf("failed to assemble store: %w", err)
	}

	o.logger.Info("store built",
		"buildID", meta.BuildID,
		"model", meta.EmbeddingModel,
		"dimension", meta.Dimension,
		"chunks", meta.ChunkCount,
	)
	return s, nil
}
