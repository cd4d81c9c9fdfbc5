package ask

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/search"
)

// Status は応答の結果区分
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Reason は degraded / failed の原因コード
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoMatch           Reason = "no_match"
	ReasonInvalidQuestion   Reason = "invalid_question"
	ReasonInvalidTopK       Reason = "invalid_top_k"
	ReasonEmbeddingFailed   Reason = "embedding_failed"
	ReasonDimensionMismatch Reason = "dimension_mismatch"
	ReasonModelMismatch     Reason = "model_mismatch"
	ReasonSearchFailed      Reason = "search_failed"
	ReasonSynthesisFailed   Reason = "synthesis_failed"
	ReasonCanceled          Reason = "canceled"
)

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	Question string                   // ユーザーの質問文
	TopK     mo.Option[int]           // 取得件数（未指定なら設定値）
	Filter   mo.Option[search.Filter] // メタデータフィルタ
}

// Match は回答の根拠として使われたチャンク
type Match struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	DocumentType corpus.LawType
	Kind         chunking.Kind
	Ordinal      int
	Score        float64
	Rank         int
}

// AskResult は質問応答の結果を表す
// 失敗時も Status と利用者向けの Answer を必ず持つ
type AskResult struct {
	RunID           uuid.UUID
	Status          Status
	State           State
	Reason          Reason
	Question        string
	RewrittenQuery  string
	RewriteFellBack bool
	Matches         []Match
	Answer          string
	Elapsed         time.Duration
	Trail           []State
}

func toMatches(results []search.Result) []Match {
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ChunkID:      r.Chunk.ID,
			DocumentID:   r.Chunk.DocumentID,
			DocumentName: r.Chunk.DocumentName,
			DocumentType: r.Chunk.DocumentType,
			Kind:         r.Chunk.Kind,
			Ordinal:      r.Chunk.Ordinal,
			Score:        r.Score,
			Rank:         r.Rank,
		})
	}
	return matches
}
