package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jinford/mevzuat-rag/internal/core/llm"
)

const keyPrefix = "mevzuat-rag:emb:"

// Config は Redis 接続設定
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Connect は Redis に接続し、疎通を確認する
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// cache はキャッシュ操作の最小インターフェース
type cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisCache struct {
	client *redis.Client
}

func (c redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (c redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedEmbedder はクエリ埋め込みを Redis にキャッシュする Embedder
// キャッシュは補助的なもので、Redis の障害時はそのまま下位の Embedder を呼ぶ
type CachedEmbedder struct {
	next   llm.Embedder
	cache  cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder は新しい CachedEmbedder を作成する
func NewCachedEmbedder(next llm.Embedder, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	return newCachedEmbedder(next, redisCache{client: client}, ttl, logger)
}

func newCachedEmbedder(next llm.Embedder, c cache, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{next: next, cache: c, ttl: ttl, logger: logger}
}

// Embed はキャッシュを参照し、なければ下位の Embedder で生成して保存する
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(e.next.ModelName(), e.next.Dimension(), text)

	b, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("embedding cache get failed", "error", err)
	} else if b != nil {
		if vec, ok := decodeVector(b); ok {
			return vec, nil
		}
		e.logger.Warn("embedding cache entry malformed", "key", key)
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, encodeVector(vec), e.ttl); err != nil {
		e.logger.Warn("embedding cache set failed", "error", err)
	}
	return vec, nil
}

// BatchEmbed はビルド時に使われるためキャッシュしない
func (e *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.BatchEmbed(ctx, texts)
}

func (e *CachedEmbedder) ModelName() string { return e.next.ModelName() }
func (e *CachedEmbedder) Dimension() int    { return e.next.Dimension() }
func (e *CachedEmbedder) MaxBatchSize() int { return e.next.MaxBatchSize() }

func cacheKey(model string, dimension int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%s:%d:%s", keyPrefix, model, dimension, hex.EncodeToString(sum[:]))
}

func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, true
}

var _ llm.Embedder = (*CachedEmbedder)(nil)
