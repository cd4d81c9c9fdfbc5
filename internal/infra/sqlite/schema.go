package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // SQLite driver
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS store_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	document_id     TEXT PRIMARY KEY,
	number          TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL,
	law_type        TEXT NOT NULL,
	full_text       TEXT NOT NULL,
	acceptance_date TEXT NOT NULL DEFAULT '',
	gazette_date    TEXT NOT NULL DEFAULT '',
	gazette_number  TEXT NOT NULL DEFAULT '',
	detail_url      TEXT NOT NULL DEFAULT '',
	article_count   INTEGER NOT NULL DEFAULT 0,
	character_count INTEGER NOT NULL DEFAULT 0,
	word_count      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chunks (
	seq           INTEGER PRIMARY KEY,
	chunk_id      TEXT NOT NULL UNIQUE,
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
	oversized     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_chunks_law_type ON chunks(law_type);
CREATE INDEX IF NOT EXISTS idx_chunks_kind ON chunks(kind);

CREATE TABLE IF NOT EXISTS vectors (
	chunk_id  TEXT PRIMARY KEY,
	embedding BLOB NOT NULL
);
`

const runLogSchema = `
CREATE TABLE IF NOT EXISTS search_logs (
	run_id            TEXT PRIMARY KEY,
	started_at        TEXT NOT NULL,
	question          TEXT NOT NULL,
	rewritten_query   TEXT NOT NULL,
	rewrite_fell_back INTEGER NOT NULL,
	top_k             INTEGER NOT NULL,
	kind_filter       TEXT NOT NULL DEFAULT '',
	law_type_filter   TEXT NOT NULL DEFAULT '',
	law_name_filter   TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	results_count     INTEGER NOT NULL,
	chunk_ids         TEXT NOT NULL DEFAULT '',
	elapsed_ms        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_logs_started_at ON search_logs(started_at);
`

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func applySchema(ctx context.Context, db *sql.DB, schema string) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec
}
