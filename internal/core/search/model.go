package search

import (
	"errors"
	"fmt"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

var (
	// ErrDimensionMismatch はクエリベクトルとストアの次元が一致しない
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidTopK は top_k が正でない
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrNoStore は検索対象のストアが読み込まれていない
	ErrNoStore = errors.New("no store loaded")
)

// DimensionMismatchError はクエリとストアの次元を保持する
type DimensionMismatchError struct {
	Query int
	Store int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: query has %d dimensions, store has %d", ErrDimensionMismatch, e.Query, e.Store)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

// Filter は検索時の完全一致フィルタ。設定された条件はすべて満たす必要がある
type Filter struct {
	Kind         *chunking.Kind
	DocumentType *corpus.LawType
	DocumentName *string
}

// Match はチャンクがフィルタ条件を満たすかを返す
func (f Filter) Match(c *chunking.Chunk) bool {
	if f.Kind != nil && c.Kind != *f.Kind {
		return false
	}
	if f.DocumentType != nil && c.DocumentType != *f.DocumentType {
		return false
	}
	if f.DocumentName != nil && c.DocumentName != *f.DocumentName {
		return false
	}
	return true
}

// IsZero は条件が1つも設定されていない場合に true を返す
func (f Filter) IsZero() bool {
	return f.Kind == nil && f.DocumentType == nil && f.DocumentName == nil
}

// Result は検索結果1件
type Result struct {
	Chunk *chunking.Chunk
	Score float64
	Rank  int // 1始まり
}
