package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/mevzuat-rag/internal/core/ask"
	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/llm"
	"github.com/jinford/mevzuat-rag/internal/core/rewrite"
	"github.com/jinford/mevzuat-rag/internal/core/search"
	"github.com/jinford/mevzuat-rag/internal/core/store"
	"github.com/jinford/mevzuat-rag/internal/infra/dataset"
	"github.com/jinford/mevzuat-rag/internal/infra/kafkapub"
	"github.com/jinford/mevzuat-rag/internal/infra/ollama"
	"github.com/jinford/mevzuat-rag/internal/infra/openai"
	"github.com/jinford/mevzuat-rag/internal/infra/postgres"
	"github.com/jinford/mevzuat-rag/internal/infra/rediscache"
	"github.com/jinford/mevzuat-rag/internal/infra/sqlite"
	"github.com/jinford/mevzuat-rag/internal/infra/throttle"
	"github.com/jinford/mevzuat-rag/internal/infra/tiktoken"
	"github.com/jinford/mevzuat-rag/internal/platform/config"
)

// ServiceContainer は各コマンドが必要とする依存関係を保持する。
// ネットワークを使う部品は Init* で段階的に初期化する。
type ServiceContainer struct {
	Config  *config.Config
	Rules   corpus.RuleTable
	Tokens  TokenCounter
	Loader  *dataset.Loader
	Chunker *chunking.Chunker

	// InitLLM 後に利用可能
	Embedder  llm.Embedder
	Rewriter  *rewrite.Rewriter
	Generator llm.Generator

	// InitRepository 後に利用可能
	Repository store.Repository

	// InitServing 後に利用可能
	Handle        *store.Handle
	SearchService *search.SearchService
	AskService    *ask.AskService

	logger   *slog.Logger
	options  containerOptions
	db       *postgres.DB
	recorder *ask.AsyncRecorder
	closers  []func() error
}

// TokenCounter はチャンク分割・書き換え・プロンプト組み立てで共有するトークン計数器
type TokenCounter interface {
	CountTokens(text string) int
	TrimToTokenLimit(text string, limit int) string
}

type containerOptions struct {
	logger    *slog.Logger
	tokens    TokenCounter
	embedder  llm.Embedder
	generator llm.Generator
	recorder  ask.RunRecorder
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokens = counter
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder llm.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerGenerator は書き換え・回答生成に使う LLM を差し替える
func WithContainerGenerator(generator llm.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// WithContainerRecorder は実行記録の保存先を差し替える
func WithContainerRecorder(recorder ask.RunRecorder) ContainerOption {
	return func(opts *containerOptions) {
		opts.recorder = recorder
	}
}

// NewContainer は設定からオフラインで使える部品を生成する。
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	rules := corpus.DefaultRuleTable()
	if cfg.RulesFile != "" {
		loaded, err := corpus.LoadRuleTable(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("分類ルールの読み込みに失敗しました: %w", err)
		}
		rules = loaded
	}

	tokens := options.tokens
	if tokens == nil {
		counter, err := tiktoken.NewCounter(tiktoken.DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("TokenCounter 初期化に失敗しました: %w", err)
		}
		tokens = counter
	}

	chunker, err := chunking.New(tokens, chunking.Config{
		MaxTokens:      cfg.Chunking.MaxTokens,
		ArticlePattern: cfg.Chunking.ArticlePattern,
	}, chunking.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("Chunker 初期化に失敗しました: %w", err)
	}

	return &ServiceContainer{
		Config:  cfg,
		Rules:   rules,
		Tokens:  tokens,
		Loader:  dataset.NewLoader(rules, logger),
		Chunker: chunker,
		logger:  logger,
		options: options,
	}, nil
}

// InitLLM は埋め込みと生成のクライアントを初期化する。
func (c *ServiceContainer) InitLLM(ctx context.Context) error {
	if c.Embedder != nil {
		return nil
	}
	cfg := c.Config

	embedder := c.options.embedder
	if embedder == nil {
		var err error
		embedder, err = c.newEmbedder()
		if err != nil {
			return fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
	}

	generator := c.options.generator
	if generator == nil {
		var err error
		generator, err = c.newGenerator()
		if err != nil {
			return fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
		}
	}

	if cfg.Provider == "openai" && cfg.OpenAI.RequestsPerMinute > 0 {
		limiter := throttle.NewLimiter(cfg.OpenAI.RequestsPerMinute)
		embedder = throttle.WrapEmbedder(embedder, limiter)
		generator = throttle.WrapGenerator(generator, limiter)
	}

	if cfg.Redis.Addr != "" {
		client, err := rediscache.Connect(ctx, rediscache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			// キャッシュが使えなくても処理は継続できる
			c.logger.Warn("embedding cache disabled", "error", err)
		} else {
			c.closers = append(c.closers, client.Close)
			embedder = rediscache.NewCachedEmbedder(embedder, client, cfg.Redis.TTL, c.logger)
		}
	}

	rewriteModel, synthesisModel := cfg.Rewrite.Model, cfg.Synthesis.Model
	if cfg.Provider == "ollama" {
		rewriteModel, synthesisModel = cfg.Ollama.Model, cfg.Ollama.Model
	}
	c.Embedder = embedder
	c.Generator = generator
	c.Rewriter = rewrite.New(generator, c.Tokens, rewrite.Config{
		Model:          rewriteModel,
		MaxTokens:      cfg.Rewrite.MaxTokens,
		MaxInputTokens: cfg.Rewrite.MaxInputTokens,
		Temperature:    cfg.Rewrite.Temperature,
		Timeout:        cfg.Rewrite.Timeout,
	}, rewrite.WithLogger(c.logger))
	c.Config.Synthesis.Model = synthesisModel
	return nil
}

func (c *ServiceContainer) newEmbedder() (llm.Embedder, error) {
	cfg := c.Config
	switch cfg.Provider {
	case "ollama":
		return ollama.NewEmbedder(ollama.Config{
			ServerURL: cfg.Ollama.ServerURL,
			Model:     cfg.Ollama.EmbeddingModel,
			Dimension: cfg.Ollama.EmbeddingDimension,
		})
	default:
		return openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithEmbeddingClientOptions(c.openAIClientOptions()...),
		)
	}
}

func (c *ServiceContainer) newGenerator() (llm.Generator, error) {
	cfg := c.Config
	switch cfg.Provider {
	case "ollama":
		return ollama.NewClient(ollama.Config{ServerURL: cfg.Ollama.ServerURL, Model: cfg.Ollama.Model})
	default:
		return openai.NewClient(cfg.OpenAI.APIKey, cfg.Synthesis.Model, c.openAIClientOptions()...)
	}
}

func (c *ServiceContainer) openAIClientOptions() []openai.ClientOption {
	var opts []openai.ClientOption
	if c.Config.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.Config.OpenAI.BaseURL))
	}
	if c.Config.OpenAI.Timeout > 0 {
		opts = append(opts, openai.WithTimeout(c.Config.OpenAI.Timeout))
	}
	return opts
}

// InitRepository はストアの保存先を初期化する。
func (c *ServiceContainer) InitRepository(ctx context.Context) error {
	if c.Repository != nil {
		return nil
	}
	cfg := c.Config

	switch cfg.Store.Backend {
	case "postgres":
		db, err := postgres.Connect(ctx, postgres.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, c.logger)
		if err != nil {
			return fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return fmt.Errorf("スキーマ作成に失敗しました: %w", err)
		}
		c.db = db
		c.closers = append(c.closers, func() error { db.Close(); return nil })
		c.Repository = postgres.NewStoreRepository(db, c.logger)
	default:
		c.Repository = sqlite.NewStoreRepository(cfg.Store.Dir, c.logger)
	}
	return nil
}

// LoadOptions はクエリ時の埋め込みモデルとの一致検証オプションを返す
func (c *ServiceContainer) LoadOptions() []store.LoadOption {
	if c.Embedder == nil {
		return nil
	}
	return []store.LoadOption{store.WithExpectedModel(c.Embedder.ModelName(), c.Embedder.Dimension())}
}

// InitServing は現行ストアを読み込み、検索と質問応答のサービスを組み立てる。
func (c *ServiceContainer) InitServing(ctx context.Context) error {
	if c.AskService != nil {
		return nil
	}
	if err := c.InitLLM(ctx); err != nil {
		return err
	}
	if err := c.InitRepository(ctx); err != nil {
		return err
	}
	cfg := c.Config

	s, err := store.Load(ctx, c.Repository, c.LoadOptions()...)
	if err != nil {
		return fmt.Errorf("ストアの読み込みに失敗しました: %w", err)
	}
	c.Handle = store.NewHandle(s, c.logger)

	var searcher search.Searcher = search.NewEngine(c.Handle)
	if cfg.Store.Searcher == "pgvector" {
		if c.db == nil {
			return errors.New("pgvector 検索には postgres バックエンドが必要です")
		}
		var opts []postgres.VectorSearcherOption
		if c.Embedder != nil {
			opts = append(opts, postgres.WithSearcherExpectedModel(c.Embedder.ModelName()))
		}
		searcher = postgres.NewVectorSearcher(c.db, opts...)
	}
	c.SearchService = search.NewSearchService(searcher, c.Embedder, search.WithSearchLogger(c.logger))

	recorder, err := c.newRecorder(ctx)
	if err != nil {
		return err
	}

	askCfg := ask.DefaultConfig()
	askCfg.TopK = cfg.Synthesis.TopK
	askCfg.DistinctDocuments = cfg.Synthesis.Distinct
	askCfg.MaxContextTokens = cfg.Synthesis.MaxContextTokens
	askCfg.SynthesisModel = cfg.Synthesis.Model
	askCfg.SynthesisMaxTokens = cfg.Synthesis.MaxTokens
	askCfg.SynthesisTemperature = cfg.Synthesis.Temperature
	askCfg.SynthesisTimeout = cfg.Synthesis.Timeout
	askCfg.SynthesisRetries = cfg.Synthesis.Retries
	askCfg.EmbedTimeout = cfg.Embedding.Timeout

	c.AskService = ask.NewAskService(
		c.Rewriter,
		c.Embedder,
		c.SearchService,
		c.Generator,
		c.Tokens,
		ask.WithAskLogger(c.logger),
		ask.WithRunRecorder(recorder),
		ask.WithConfig(askCfg),
	)
	return nil
}

func (c *ServiceContainer) newRecorder(ctx context.Context) (ask.RunRecorder, error) {
	cfg := c.Config

	next := c.options.recorder
	if next == nil {
		var recorders ask.MultiRecorder
		backend := cfg.RunLog.Backend
		if backend == "sqlite" || backend == "both" {
			runLog, err := sqlite.OpenRunLog(ctx, cfg.RunLog.Path)
			if err != nil {
				return nil, fmt.Errorf("実行記録の初期化に失敗しました: %w", err)
			}
			c.closers = append(c.closers, runLog.Close)
			recorders = append(recorders, runLog)
		}
		if backend == "kafka" || backend == "both" {
			pub, err := kafkapub.NewRunPublisher(kafkapub.Config{
				Brokers: cfg.RunLog.KafkaBrokers,
				Topic:   cfg.RunLog.KafkaTopic,
			})
			if err != nil {
				return nil, fmt.Errorf("実行記録の初期化に失敗しました: %w", err)
			}
			c.closers = append(c.closers, pub.Close)
			recorders = append(recorders, pub)
		}

		switch len(recorders) {
		case 0:
			return ask.NopRecorder{}, nil
		case 1:
			next = recorders[0]
		default:
			next = recorders
		}
	}

	c.recorder = ask.NewAsyncRecorder(next, cfg.RunLog.Buffer, c.logger)
	return c.recorder, nil
}

// WatchStore は sqlite バックエンドで新しいビルドの公開を監視し、Handle を差し替える。
// 監視できないバックエンドでは何もしない。
func (c *ServiceContainer) WatchStore(ctx context.Context) {
	repo, ok := c.Repository.(*sqlite.StoreRepository)
	if !ok || c.Handle == nil {
		return
	}
	w := sqlite.NewWatcher(repo, c.Handle, c.logger, c.LoadOptions()...)
	go func() {
		if err := w.Run(ctx); err != nil {
			c.logger.Warn("store watcher stopped", "error", err)
		}
	}()
}

// Close は内部リソースを解放する。
// 実行記録は書き込みを待ってから保存先を閉じる。
func (c *ServiceContainer) Close() error {
	if c.recorder != nil {
		c.recorder.Close()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Logger はコンテナのロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	return c.logger
}
