package chunking

import (
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

// Kind はチャンクの種類
type Kind string

const (
	// KindArticle は「MADDE n」マーカーで区切られた条文チャンク
	KindArticle Kind = "article"
	// KindSection はマーカーを持たない本文や前文から作られたチャンク
	KindSection Kind = "section"
)

// ParseKind は文字列を Kind に変換する
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindArticle, KindSection:
		return Kind(s), true
	default:
		return "", false
	}
}

// Chunk は埋め込み単位となる文書断片
type Chunk struct {
	ID           string
	DocumentID   string
	DocumentName string
	DocumentType corpus.LawType
	Kind         Kind
	Ordinal      int
	// Header は分割された条文の継続チャンクに付与される見出し（例: "MADDE 5 (devamı)"）
	Header string
	Text   string
	Tokens int
	Chars  int
	Words  int
	// Oversized は単一文がトークン上限を超えたため上限を守れなかったことを示す
	Oversized bool
}

// EmbeddingText は埋め込みおよびプロンプトに使うテキストを返す
func (c *Chunk) EmbeddingText() string {
	return withHeader(c.Header, c.Text)
}

func withHeader(header, text string) string {
	if header == "" {
		return text
	}
	return header + "\n" + text
}

// CorpusReport はコーパス全体のチャンク化結果の集計
type CorpusReport struct {
	Documents int
	Chunks    int
	Skipped   []string
	Oversized int
	ByKind    map[Kind]int
}
