package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/store"
)

const (
	// CurrentFile は現行ビルドのファイル名を保持するポインタファイル
	CurrentFile = "CURRENT"
	buildsDir   = "builds"
)

// StoreRepository はビルドごとに1つの SQLite ファイルへストアを保存する
// 書き込みは単一プロセスを前提とし、公開は CURRENT の差し替えで行う
type StoreRepository struct {
	dir    string
	logger *slog.Logger
}

// NewStoreRepository は新しい StoreRepository を作成する
func NewStoreRepository(dir string, logger *slog.Logger) *StoreRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRepository{dir: dir, logger: logger}
}

// Dir はストアのルートディレクトリを返す
func (r *StoreRepository) Dir() string {
	return r.dir
}

// Publish は新しいファイルにストアを書き込み、CURRENT を原子的に切り替える
func (r *StoreRepository) Publish(ctx context.Context, s *store.Store) (string, error) {
	if err := os.MkdirAll(filepath.Join(r.dir, buildsDir), 0o755); err != nil {
		return "", fmt.Errorf("creating store directory: %w", err)
	}

	name := s.Metadata().BuildID + ".db"
	path := filepath.Join(r.dir, buildsDir, name)
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := r.write(ctx, tmp, s); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalizing store file: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(r.dir, CurrentFile), []byte(name+"\n")); err != nil {
		return "", fmt.Errorf("updating current pointer: %w", err)
	}

	r.logger.Info("store published", "buildID", s.Metadata().BuildID, "path", path)
	return path, nil
}

func (r *StoreRepository) write(ctx context.Context, path string, s *store.Store) error {
	db, err := open("file:" + path + "?_pragma=busy_timeout(5000)")
	if err != nil {
		return err
	}
	defer db.Close()

	if err := applySchema(ctx, db, storeSchema); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := s.Metadata()
	for k, v := range map[string]string{
		"build_id":        meta.BuildID,
		"embedding_model": meta.EmbeddingModel,
		"dimension":       strconv.Itoa(meta.Dimension),
		"built_at":        meta.BuiltAt.UTC().Format(time.RFC3339Nano),
		"chunk_count":     strconv.Itoa(meta.ChunkCount),
	} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO store_metadata (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("inserting metadata %s: %w", k, err)
		}
	}

	for _, d := range s.Documents() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (document_id, number, name, law_type, full_text, acceptance_date,
				gazette_date, gazette_number, detail_url, article_count, character_count, word_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Number, d.Name, string(d.Type), d.Text, d.AcceptanceDate,
			d.Gazette.Date, d.Gazette.Number, d.DetailURL, d.ArticleCount,
			utf8.RuneCountInString(d.Text), len(strings.Fields(d.Text)),
		); err != nil {
			return fmt.Errorf("inserting document %s: %w", d.ID, err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (seq, chunk_id, document_id, document_name, law_type, kind, ordinal,
			header, text, tokens, char_count, word_count, oversized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	vectorStmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors (chunk_id, embedding) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing vector insert: %w", err)
	}
	defer vectorStmt.Close()

	for i, rec := range s.Records() {
		c := rec.Chunk
		if _, err := chunkStmt.ExecContext(ctx,
			i, c.ID, c.DocumentID, c.DocumentName, string(c.DocumentType), string(c.Kind), c.Ordinal,
			c.Header, c.Text, c.Tokens, c.Chars, c.Words, c.Oversized,
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
		if _, err := vectorStmt.ExecContext(ctx, c.ID, encodeVector(rec.Vector)); err != nil {
			return fmt.Errorf("inserting vector %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing store: %w", err)
	}
	return nil
}

// LoadCurrent は CURRENT が指すビルドを読み込む
func (r *StoreRepository) LoadCurrent(ctx context.Context) (*store.Store, error) {
	b, err := os.ReadFile(filepath.Join(r.dir, CurrentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no %s in %s", store.ErrNotFound, CurrentFile, r.dir)
		}
		return nil, fmt.Errorf("reading current pointer: %w", err)
	}

	name := strings.TrimSpace(string(b))
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: invalid current pointer %q", store.ErrCorruptStore, name)
	}
	return r.LoadFile(ctx, filepath.Join(r.dir, buildsDir, name))
}

// LoadFile は指定したビルドファイルを読み取り専用で開いて検証する
func (r *StoreRepository) LoadFile(ctx context.Context, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCorruptStore, err)
	}

	db, err := open("file:" + path + "?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	s, err := readStore(ctx, db)
	if err != nil {
		if errors.Is(err, store.ErrCorruptStore) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", store.ErrCorruptStore, err)
	}

	r.logger.Info("store loaded", "buildID", s.Metadata().BuildID, "chunks", s.Len(), "path", path)
	return s, nil
}

func readStore(ctx context.Context, db *sql.DB) (*store.Store, error) {
	meta, err := readMetadata(ctx, db)
	if err != nil {
		return nil, err
	}

	// チャンクとベクトルのキー集合が一致することを確認する
	var orphanChunks, orphanVectors int
	if err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks c LEFT JOIN vectors v ON v.chunk_id = c.chunk_id WHERE v.chunk_id IS NULL),
			(SELECT COUNT(*) FROM vectors v LEFT JOIN chunks c ON c.chunk_id = v.chunk_id WHERE c.chunk_id IS NULL)`,
	).Scan(&orphanChunks, &orphanVectors); err != nil {
		return nil, fmt.Errorf("checking integrity: %w", err)
	}
	if orphanChunks > 0 || orphanVectors > 0 {
		return nil, fmt.Errorf("%w: %d chunks without vectors, %d vectors without chunks", store.ErrCorruptStore, orphanChunks, orphanVectors)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.chunk_id, c.document_id, c.document_name, c.law_type, c.kind, c.ordinal,
			c.header, c.text, c.tokens, c.char_count, c.word_count, c.oversized, v.embedding
		FROM chunks c
		JOIN vectors v ON v.chunk_id = c.chunk_id
		ORDER BY c.seq`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	records := make([]store.Record, 0, meta.ChunkCount)
	for rows.Next() {
		var (
			c       chunking.Chunk
			lawType string
			kind    string
			blob    []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.DocumentName, &lawType, &kind, &c.Ordinal,
			&c.Header, &c.Text, &c.Tokens, &c.Chars, &c.Words, &c.Oversized, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if len(blob)%4 != 0 {
			return nil, fmt.Errorf("%w: chunk %s has malformed vector", store.ErrCorruptStore, c.ID)
		}
		c.DocumentType = corpus.ParseLawType(lawType)
		c.Kind = chunking.Kind(kind)
		records = append(records, store.Record{Chunk: &c, Vector: decodeVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	docs, err := readDocuments(ctx, db)
	if err != nil {
		return nil, err
	}

	return store.New(meta, records, docs)
}

func readMetadata(ctx context.Context, db *sql.DB) (store.Metadata, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM store_metadata`)
	if err != nil {
		return store.Metadata{}, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return store.Metadata{}, fmt.Errorf("scanning metadata: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return store.Metadata{}, fmt.Errorf("iterating metadata: %w", err)
	}

	for _, k := range []string{"build_id", "embedding_model", "dimension", "built_at", "chunk_count"} {
		if _, ok := kv[k]; !ok {
			return store.Metadata{}, fmt.Errorf("%w: metadata %s missing", store.ErrCorruptStore, k)
		}
	}

	dim, err := strconv.Atoi(kv["dimension"])
	if err != nil {
		return store.Metadata{}, fmt.Errorf("%w: dimension: %v", store.ErrCorruptStore, err)
	}
	count, err := strconv.Atoi(kv["chunk_count"])
	if err != nil {
		return store.Metadata{}, fmt.Errorf("%w: chunk_count: %v", store.ErrCorruptStore, err)
	}
	builtAt, err := time.Parse(time.RFC3339Nano, kv["built_at"])
	if err != nil {
		return store.Metadata{}, fmt.Errorf("%w: built_at: %v", store.ErrCorruptStore, err)
	}

	return store.Metadata{
		BuildID:        kv["build_id"],
		EmbeddingModel: kv["embedding_model"],
		Dimension:      dim,
		BuiltAt:        builtAt,
		ChunkCount:     count,
	}, nil
}

func readDocuments(ctx context.Context, db *sql.DB) ([]*corpus.Document, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT document_id, number, name, law_type, full_text, acceptance_date,
			gazette_date, gazette_number, detail_url, article_count
		FROM documents
		ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
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
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Type = corpus.ParseLawType(lawType)
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// writeFileAtomic は一時ファイルに書き込んでからリネームする
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ store.Repository = (*StoreRepository)(nil)
