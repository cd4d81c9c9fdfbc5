package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// LLM プロバイダー ("openai" or "ollama")
	Provider string

	OpenAI    OpenAIConfig
	Ollama    OllamaConfig
	Rewrite   RewriteConfig
	Synthesis SynthesisConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Store     StoreConfig
	Database  DatabaseConfig
	RunLog    RunLogConfig
	Redis     RedisConfig
	Log       LogConfig

	// RulesFile は法令種別の分類ルール(YAML)。空なら既定のルール表
	RulesFile string
}

// OpenAIConfig はOpenAI API設定（Embeddings + LLM）
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	EmbeddingModel     string
	EmbeddingDimension int
	Timeout            time.Duration
	RequestsPerMinute  int // 0 なら制限なし
}

// OllamaConfig はローカル LLM 設定
type OllamaConfig struct {
	ServerURL          string
	Model              string
	EmbeddingModel     string
	EmbeddingDimension int
}

// RewriteConfig はクエリ書き換え設定
type RewriteConfig struct {
	Model          string
	MaxTokens      int
	MaxInputTokens int
	Temperature    float64
	Timeout        time.Duration
}

// SynthesisConfig は回答生成設定
type SynthesisConfig struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
	Retries          int
	MaxContextTokens int
	TopK             int
	Distinct         bool
}

// EmbeddingConfig は埋め込み処理の設定
type EmbeddingConfig struct {
	Timeout     time.Duration
	Concurrency int
}

// ChunkingConfig はチャンク分割設定
type ChunkingConfig struct {
	MaxTokens      int
	ArticlePattern string
}

// StoreConfig はベクトルストア設定
type StoreConfig struct {
	Backend string // "sqlite" or "postgres"
	Dir     string // sqlite バックエンドの保存先
	// Searcher は "memory" (読み込んだストアを線形走査) または "pgvector"
	Searcher string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RunLogConfig は実行記録の保存先設定
type RunLogConfig struct {
	Backend      string // "sqlite", "kafka" or "none"
	Path         string
	KafkaBrokers []string
	KafkaTopic   string
	Buffer       int
}

// RedisConfig は埋め込みキャッシュ設定。Addr が空なら無効
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Provider: strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			Timeout:            getEnvAsDuration("OPENAI_TIMEOUT", 120*time.Second),
			RequestsPerMinute:  getEnvAsInt("OPENAI_REQUESTS_PER_MINUTE", 0),
		},
		Ollama: OllamaConfig{
			ServerURL:          getEnv("OLLAMA_SERVER_URL", "http://localhost:11434"),
			Model:              getEnv("OLLAMA_MODEL", "llama3.1"),
			EmbeddingModel:     getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingDimension: getEnvAsInt("OLLAMA_EMBEDDING_DIMENSION", 768),
		},
		Rewrite: RewriteConfig{
			Model:          getEnv("REWRITE_MODEL", "gpt-4o-mini"),
			MaxTokens:      getEnvAsInt("REWRITE_MAX_TOKENS", 500),
			MaxInputTokens: getEnvAsInt("REWRITE_MAX_INPUT_TOKENS", 1000),
			Temperature:    getEnvAsFloat("REWRITE_TEMPERATURE", 0.3),
			Timeout:        getEnvAsDuration("REWRITE_TIMEOUT", 15*time.Second),
		},
		Synthesis: SynthesisConfig{
			Model:            getEnv("SYNTHESIS_MODEL", "gpt-4o"),
			MaxTokens:        getEnvAsInt("SYNTHESIS_MAX_TOKENS", 4000),
			Temperature:      getEnvAsFloat("SYNTHESIS_TEMPERATURE", 0.1),
			Timeout:          getEnvAsDuration("SYNTHESIS_TIMEOUT", 90*time.Second),
			Retries:          getEnvAsInt("SYNTHESIS_RETRIES", 2),
			MaxContextTokens: getEnvAsInt("SYNTHESIS_MAX_CONTEXT_TOKENS", 12000),
			TopK:             getEnvAsInt("SEARCH_TOP_K", 5),
			Distinct:         getEnvAsBool("SEARCH_DISTINCT_DOCUMENTS", true),
		},
		Embedding: EmbeddingConfig{
			Timeout:     getEnvAsDuration("EMBED_TIMEOUT", 20*time.Second),
			Concurrency: getEnvAsInt("EMBED_CONCURRENCY", 4),
		},
		Chunking: ChunkingConfig{
			MaxTokens:      getEnvAsInt("CHUNK_MAX_TOKENS", 7000),
			ArticlePattern: getEnv("CHUNK_ARTICLE_PATTERN", ""),
		},
		Store: StoreConfig{
			Backend:  strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
			Dir:      getEnv("STORE_DIR", "./data/store"),
			Searcher: strings.ToLower(getEnv("STORE_SEARCHER", "memory")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "mevzuat"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mevzuat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RunLog: RunLogConfig{
			Backend:      strings.ToLower(getEnv("RUN_LOG_BACKEND", "sqlite")),
			Path:         getEnv("RUN_LOG_PATH", "./data/runs.db"),
			KafkaBrokers: getEnvAsList("KAFKA_BROKERS", nil),
			KafkaTopic:   getEnv("KAFKA_RUN_TOPIC", "mevzuat-rag.runs"),
			Buffer:       getEnvAsInt("RUN_LOG_BUFFER", 256),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("REDIS_EMBEDDING_TTL", 7*24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		RulesFile: getEnv("CLASSIFY_RULES_FILE", ""),
	}

	return cfg, nil
}

// Validate は設定値の矛盾をまとめて返します
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai"))
		}
		if c.OpenAI.EmbeddingDimension <= 0 {
			errs = append(errs, errors.New("OPENAI_EMBEDDING_DIMENSION must be positive"))
		}
	case "ollama":
		if c.Ollama.ServerURL == "" {
			errs = append(errs, errors.New("OLLAMA_SERVER_URL is required when LLM_PROVIDER=ollama"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider))
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("STORE_DIR is required when STORE_BACKEND=sqlite"))
		}
		if c.Store.Searcher == "pgvector" {
			errs = append(errs, errors.New("STORE_SEARCHER=pgvector requires STORE_BACKEND=postgres"))
		}
	case "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	if c.Store.Searcher != "memory" && c.Store.Searcher != "pgvector" {
		errs = append(errs, fmt.Errorf("unknown STORE_SEARCHER %q", c.Store.Searcher))
	}

	switch c.RunLog.Backend {
	case "sqlite", "kafka", "both":
		if c.RunLog.Backend != "kafka" && c.RunLog.Path == "" {
			errs = append(errs, errors.New("RUN_LOG_PATH is required when RUN_LOG_BACKEND includes sqlite"))
		}
		if c.RunLog.Backend != "sqlite" && len(c.RunLog.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when RUN_LOG_BACKEND includes kafka"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown RUN_LOG_BACKEND %q", c.RunLog.Backend))
	}

	if c.Chunking.MaxTokens <= 0 {
		errs = append(errs, errors.New("CHUNK_MAX_TOKENS must be positive"))
	}
	if c.Synthesis.TopK <= 0 {
		errs = append(errs, errors.New("SEARCH_TOP_K must be positive"))
	}
	if c.Synthesis.MaxContextTokens <= 0 {
		errs = append(errs, errors.New("SYNTHESIS_MAX_CONTEXT_TOKENS must be positive"))
	}
	if c.Embedding.Concurrency <= 0 {
		errs = append(errs, errors.New("EMBED_CONCURRENCY must be positive"))
	}

	return errors.Join(errs...)
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数を取得します
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
