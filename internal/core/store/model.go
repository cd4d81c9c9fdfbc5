package store

import (
	"time"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

// Metadata はビルドごとのストア情報
type Metadata struct {
	BuildID        string
	EmbeddingModel string
	Dimension      int
	BuiltAt        time.Time
	ChunkCount     int
}

// Record はチャンクとその埋め込みベクトルの組
type Record struct {
	Chunk  *chunking.Chunk
	Vector []float32
}

// Stats はストアの集計情報
type Stats struct {
	Metadata
	TotalDocuments int
	ByLawType      map[corpus.LawType]int
	ByKind         map[chunking.Kind]int
	Oversized      int
}
