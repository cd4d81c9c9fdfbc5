package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, 1536, cfg.OpenAI.EmbeddingDimension)
	assert.Equal(t, "gpt-4o-mini", cfg.Rewrite.Model)
	assert.Equal(t, 15*time.Second, cfg.Rewrite.Timeout)
	assert.Equal(t, "gpt-4o", cfg.Synthesis.Model)
	assert.Equal(t, 5, cfg.Synthesis.TopK)
	assert.True(t, cfg.Synthesis.Distinct)
	assert.Equal(t, 7000, cfg.Chunking.MaxTokens)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "memory", cfg.Store.Searcher)
	assert.Equal(t, "sqlite", cfg.RunLog.Backend)
	assert.Empty(t, cfg.Redis.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "OPENAI_API_KEY=sk-file\nSYNTHESIS_TIMEOUT=45s\nSEARCH_DISTINCT_DOCUMENTS=false\nKAFKA_BROKERS=a:9092, b:9092\nRUN_LOG_BACKEND=kafka\nSEARCH_TOP_K=abc\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// godotenv は既存の環境変数を上書きしないため、t.Setenv で後片付けだけ登録する
	for _, k := range []string{"OPENAI_API_KEY", "SYNTHESIS_TIMEOUT", "SEARCH_DISTINCT_DOCUMENTS", "KAFKA_BROKERS", "RUN_LOG_BACKEND", "SEARCH_TOP_K"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Synthesis.Timeout)
	assert.False(t, cfg.Synthesis.Distinct)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.RunLog.KafkaBrokers)
	assert.Equal(t, 5, cfg.Synthesis.TopK, "invalid values fall back to the default")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:    "APIキー未設定",
			mutate:  func(c *Config) { c.OpenAI.APIKey = "" },
			wantErr: []string{"OPENAI_API_KEY"},
		},
		{
			name:    "ollama はAPIキー不要",
			mutate:  func(c *Config) { c.Provider = "ollama"; c.OpenAI.APIKey = "" },
			wantErr: nil,
		},
		{
			name: "複数エラーをまとめる",
			mutate: func(c *Config) {
				c.Store.Backend = "s3"
				c.RunLog.Backend = "kafka"
				c.Chunking.MaxTokens = 0
			},
			wantErr: []string{"STORE_BACKEND", "KAFKA_BROKERS", "CHUNK_MAX_TOKENS"},
		},
		{
			name: "both は両方の設定が必要",
			mutate: func(c *Config) {
				c.RunLog.Backend = "both"
				c.RunLog.Path = ""
			},
			wantErr: []string{"RUN_LOG_PATH", "KAFKA_BROKERS"},
		},
		{
			name:    "pgvector は postgres が必要",
			mutate:  func(c *Config) { c.Store.Searcher = "pgvector" },
			wantErr: []string{"STORE_SEARCHER=pgvector"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
