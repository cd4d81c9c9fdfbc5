package chunking

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig は設定が不正な場合に返されます
	ErrInvalidConfig = errors.New("invalid chunker config")

	// ErrIngestSkipped は抽出可能なテキストがなく文書をスキップした場合に返されます
	ErrIngestSkipped = errors.New("ingest skipped: no extractable text")
)

// ChunkerError はChunker固有のエラーを表します
type ChunkerError struct {
	Op         string
	DocumentID string
	Err        error
}

func (e *ChunkerError) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("chunking: %s: %s (document=%s)", e.Op, e.Err, e.DocumentID)
	}
	return fmt.Sprintf("chunking: %s: %s", e.Op, e.Err)
}

func (e *ChunkerError) Unwrap() error {
	return e.Err
}

func newChunkerError(op, documentID string, err error) *ChunkerError {
	return &ChunkerError{Op: op, DocumentID: documentID, Err: err}
}
