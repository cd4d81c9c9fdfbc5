package store

import (
	"fmt"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

// Store は1ビルド分の不変なチャンク・ベクトル集合
// 生成後は変更されないため、複数のゴルーチンから同時に読み取ってよい
type Store struct {
	meta      Metadata
	records   []Record
	index     map[string]int
	documents []*corpus.Document
}

// New はメタデータとレコードから Store を組み立て、整合性を検証する
func New(meta Metadata, records []Record, documents []*corpus.Document) (*Store, error) {
	if meta.Dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrCorruptStore, meta.Dimension)
	}
	if meta.ChunkCount != len(records) {
		return nil, fmt.Errorf("%w: metadata declares %d chunks but %d records present", ErrCorruptStore, meta.ChunkCount, len(records))
	}

	index := make(map[string]int, len(records))
	for i, r := range records {
		if r.Chunk == nil {
			return nil, fmt.Errorf("%w: record %d has no chunk", ErrCorruptStore, i)
		}
		if len(r.Vector) != meta.Dimension {
			return nil, fmt.Errorf("%w: chunk %s has vector of length %d, want %d", ErrCorruptStore, r.Chunk.ID, len(r.Vector), meta.Dimension)
		}
		if _, dup := index[r.Chunk.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %s", ErrCorruptStore, r.Chunk.ID)
		}
		index[r.Chunk.ID] = i
	}

	return &Store{
		meta:      meta,
		records:   records,
		index:     index,
		documents: documents,
	}, nil
}

// Metadata はビルド情報を返す
func (s *Store) Metadata() Metadata {
	return s.meta
}

// Len はチャンク数を返す
func (s *Store) Len() int {
	return len(s.records)
}

// Records は挿入順のレコードを返す。返却値を変更してはならない
func (s *Store) Records() []Record {
	return s.records
}

// Get はIDでレコードを取得する
func (s *Store) Get(id string) (Record, bool) {
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// AllChunks は挿入順で全チャンクを返す
func (s *Store) AllChunks() []*chunking.Chunk {
	out := make([]*chunking.Chunk, len(s.records))
	for i, r := range s.records {
		out[i] = r.Chunk
	}
	return out
}

// Documents はビルド時に登録された文書メタデータを返す
func (s *Store) Documents() []*corpus.Document {
	return s.documents
}

// Stats はストアの集計情報を返す
func (s *Store) Stats() Stats {
	st := Stats{
		Metadata:  s.meta,
		ByLawType: make(map[corpus.LawType]int),
		ByKind:    make(map[chunking.Kind]int),
	}

	docs := make(map[string]struct{})
	for _, r := range s.records {
		docs[r.Chunk.DocumentID] = struct{}{}
		st.ByLawType[r.Chunk.DocumentType]++
		st.ByKind[r.Chunk.Kind]++
		if r.Chunk.Oversized {
			st.Oversized++
		}
	}
	st.TotalDocuments = len(docs)
	return st
}
