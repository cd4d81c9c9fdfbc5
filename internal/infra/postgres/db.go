package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB はデータベース接続プールを保持します
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// ConnectionParams はデータベース接続パラメータ
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN は接続文字列を返す
func (p ConnectionParams) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host,
		p.Port,
		p.User,
		p.Password,
		p.DBName,
		p.SSLMode,
	)
}

// Connect は新しいデータベース接続を作成します
func Connect(ctx context.Context, params ConnectionParams, logger *slog.Logger) (*DB, error) {
	return ConnectDSN(ctx, params.DSN(), logger)
}

// ConnectDSN は接続文字列から接続を作成します
func ConnectDSN(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 接続テスト
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool, logger: logger}, nil
}

// Close はデータベース接続を閉じます
func (db *DB) Close() {
	db.Pool.Close()
}

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS store_builds (
	build_id        TEXT PRIMARY KEY,
	embedding_model TEXT NOT NULL,
	dimension       INTEGER NOT NULL,
	built_at        TIMESTAMPTZ NOT NULL,
	chunk_count     INTEGER NOT NULL,
	is_current      BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_store_builds_current ON store_builds (is_current) WHERE is_current;

CREATE TABLE IF NOT EXISTS store_documents (
	build_id        TEXT NOT NULL REFERENCES store_builds(build_id) ON DELETE CASCADE,
	document_id     TEXT NOT NULL,
	number          TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL,
	law_type        TEXT NOT NULL,
	full_text       TEXT NOT NULL,
	acceptance_date TEXT NOT NULL DEFAULT '',
	gazette_date    TEXT NOT NULL DEFAULT '',
	gazette_number  TEXT NOT NULL DEFAULT '',
	detail_url      TEXT NOT NULL DEFAULT '',
	article_count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (build_id, document_id)
);

CREATE TABLE IF NOT EXISTS store_chunks (
	build_id      TEXT NOT NULL REFERENCES store_builds(build_id) ON DELETE CASCADE,
	seq           INTEGER NOT NULL,
	chunk_id      TEXT NOT NULL,
	document_id   TEXT NOT NULL,
	document_name TEXT NOT NULL,
	law_type      TEXT NOT NULL,
	kind          TEXT NOT NULL,
	ordinal       INTEGER NOT NULL,
	header        TEXT NOT NULL DEFAULT '',
	text          TEXT NOT NULL,
	tokens        INTEGER NOT NULL DEFAULT 0,
	char_count    INTEGER NOT NULL DEFAULT 0,
	word_count    INTEGER NOT NULL DEFAULT 0,
	oversized     BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (build_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_store_chunks_seq ON store_chunks (build_id, seq);

CREATE TABLE IF NOT EXISTS store_vectors (
	build_id  TEXT NOT NULL REFERENCES store_builds(build_id) ON DELETE CASCADE,
	chunk_id  TEXT NOT NULL,
	embedding vector NOT NULL,
	PRIMARY KEY (build_id, chunk_id)
);
`

// Migrate はストア用のスキーマを作成します
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// transact はトランザクションを開始して fn を実行します
func transact[T any](ctx context.Context, db *DB, fn func(pgx.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
