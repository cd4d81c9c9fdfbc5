package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/store"
)

const insertBatchSize = 500

// StoreRepository は store.Repository を実装する PostgreSQL リポジトリです
// ビルドは build_id 単位で保存され、is_current で現行ビルドを指します
type StoreRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewStoreRepository は新しい StoreRepository を作成します
func NewStoreRepository(db *DB, logger *slog.Logger) *StoreRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRepository{db: db, logger: logger}
}

// コンパイル時の型チェック
var _ store.Repository = (*StoreRepository)(nil)

// Publish は新しいビルドを保存し、同じトランザクション内で現行ビルドを切り替えます
func (r *StoreRepository) Publish(ctx context.Context, s *store.Store) (string, error) {
	meta := s.Metadata()

	_, err := transact(ctx, r.db, func(tx pgx.Tx) (struct{}, error) {
		// 公開は同時に1つだけ
		if err := acquireXactLock(ctx, tx, publishLockID); err != nil {
			return struct{}{}, err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO store_builds (build_id, embedding_model, dimension, built_at, chunk_count, is_current)
			VALUES ($1, $2, $3, $4, $5, FALSE)`,
			meta.BuildID, meta.EmbeddingModel, meta.Dimension, TimeToPgtype(meta.BuiltAt), meta.ChunkCount,
		); err != nil {
			return struct{}{}, fmt.Errorf("failed to insert build: %w", err)
		}

		batch := &pgx.Batch{}
		for _, d := range s.Documents() {
			batch.Queue(`
				INSERT INTO store_documents (build_id, document_id, number, name, law_type, full_text,
					acceptance_date, gazette_date, gazette_number, detail_url, article_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				meta.BuildID, d.ID, d.Number, d.Name, string(d.Type), d.Text,
				d.AcceptanceDate, d.Gazette.Date, d.Gazette.Number, d.DetailURL, d.ArticleCount,
			)
			if err := flushIfFull(ctx, tx, &batch); err != nil {
				return struct{}{}, err
			}
		}

		for i, rec := range s.Records() {
			c := rec.Chunk
			batch.Queue(`
				INSERT INTO store_chunks (build_id, seq, chunk_id, document_id, document_name, law_type, kind,
					ordinal, header, text, tokens, char_count, word_count, oversized)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				meta.BuildID, i, c.ID, c.DocumentID, c.DocumentName, string(c.DocumentType), string(c.Kind),
				c.Ordinal, c.Header, c.Text, c.Tokens, c.Chars, c.Words, c.Oversized,
			)
			batch.Queue(`INSERT INTO store_vectors (build_id, chunk_id, embedding) VALUES ($1, $2, $3::vector)`,
				meta.BuildID, c.ID, pgvector.NewVector(rec.Vector),
			)
			if err := flushIfFull(ctx, tx, &batch); err != nil {
				return struct{}{}, err
			}
		}
		if err := flush(ctx, tx, batch); err != nil {
			return struct{}{}, err
		}

		if _, err := tx.Exec(ctx, `UPDATE store_builds SET is_current = FALSE WHERE is_current AND build_id <> $1`, meta.BuildID); err != nil {
			return struct{}{}, fmt.Errorf("failed to clear current build: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE store_builds SET is_current = TRUE WHERE build_id = $1`, meta.BuildID); err != nil {
			return struct{}{}, fmt.Errorf("failed to mark current build: %w", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return "", err
	}

	r.logger.Info("store published", "buildID", meta.BuildID, "chunks", meta.ChunkCount)
	return "postgres:" + meta.BuildID, nil
}

func flushIfFull(ctx context.Context, tx pgx.Tx, batch **pgx.Batch) error {
	if (*batch).Len() < insertBatchSize {
		return nil
	}
	if err := flush(ctx, tx, *batch); err != nil {
		return err
	}
	*batch = &pgx.Batch{}
	return nil
}

func flush(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// LoadCurrent は現行ビルドを読み込みます
func (r *StoreRepository) LoadCurrent(ctx context.Context) (*store.Store, error) {
	meta, err := currentBuild(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var orphanChunks, orphanVectors int
	if err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM store_chunks c
				LEFT JOIN store_vectors v ON v.build_id = c.build_id AND v.chunk_id = c.chunk_id
				WHERE c.build_id = $1 AND v.chunk_id IS NULL),
			(SELECT COUNT(*) FROM store_vectors v
				LEFT JOIN store_chunks c ON c.build_id = v.build_id AND c.chunk_id = v.chunk_id
				WHERE v.build_id = $1 AND c.chunk_id IS NULL)`,
		meta.BuildID,
	).Scan(&orphanChunks, &orphanVectors); err != nil {
		return nil, fmt.Errorf("failed to check integrity: %w", err)
	}
	if orphanChunks > 0 || orphanVectors > 0 {
		return nil, fmt.Errorf("%w: %d chunks without vectors, %d vectors without chunks", store.ErrCorruptStore, orphanChunks, orphanVectors)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.chunk_id, c.document_id, c.document_name, c.law_type, c.kind, c.ordinal,
			c.header, c.text, c.tokens, c.char_count, c.word_count, c.oversized, v.embedding::real[]
		FROM store_chunks c
		JOIN store_vectors v ON v.build_id = c.build_id AND v.chunk_id = c.chunk_id
		WHERE c.build_id = $1
		ORDER BY c.seq`, meta.BuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	records := make([]store.Record, 0, meta.ChunkCount)
	for rows.Next() {
		c, vec, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, store.Record{Chunk: c, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	docs, err := r.documents(ctx, meta.BuildID)
	if err != nil {
		return nil, err
	}

	s, err := store.New(meta, records, docs)
	if err != nil {
		return nil, err
	}
	r.logger.Info("store loaded", "buildID", meta.BuildID, "chunks", s.Len())
	return s, nil
}

func (r *StoreRepository) documents(ctx context.Context, buildID string) ([]*corpus.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT document_id, number, name, law_type, full_text, acceptance_date,
			gazette_date, gazette_number, detail_url, article_count
		FROM store_documents
		WHERE build_id = $1
		ORDER BY document_id`, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*corpus.Document
	for rows.Next() {
		var (
			d       corpus.Document
			lawType string
		)
		if err := rows.Scan(&d.ID, &d.Number, &d.Name, &lawType, &d.Text, &d.AcceptanceDate,
			&d.Gazette.Date, &d.Gazette.Number, &d.DetailURL, &d.ArticleCount); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Type = corpus.ParseLawType(lawType)
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func currentBuild(ctx context.Context, db *DB) (store.Metadata, error) {
	var (
		meta    store.Metadata
		builtAt pgtype.Timestamptz
	)
	err := db.Pool.QueryRow(ctx, `
		SELECT build_id, embedding_model, dimension, built_at, chunk_count
		FROM store_builds
		WHERE is_current`,
	).Scan(&meta.BuildID, &meta.EmbeddingModel, &meta.Dimension, &builtAt, &meta.ChunkCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Metadata{}, fmt.Errorf("%w: no current build", store.ErrNotFound)
		}
		return store.Metadata{}, fmt.Errorf("failed to get current build: %w", err)
	}
	meta.BuiltAt = PgtypeToTime(builtAt)
	return meta, nil
}

func scanChunk(row pgx.Row, extra ...any) (*chunking.Chunk, []float32, error) {
	var (
		c       chunking.Chunk
		lawType string
		kind    string
		vec     []float32
	)
	dest := []any{&c.ID, &c.DocumentID, &c.DocumentName, &lawType, &kind, &c.Ordinal,
		&c.Header, &c.Text, &c.Tokens, &c.Chars, &c.Words, &c.Oversized, &vec}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	c.DocumentType = corpus.ParseLawType(lawType)
	c.Kind = chunking.Kind(kind)
	return &c, vec, nil
}
