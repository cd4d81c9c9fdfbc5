package chunking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

const (
	// DefaultMaxTokens は1チャンクあたりのトークン上限
	DefaultMaxTokens = 7000

	// DefaultArticlePattern は条文マーカー（MADDE n / EK MADDE n / GEÇİCİ MADDE n）
	DefaultArticlePattern = `\b(?:(?:EK|GEÇİCİ)\s+)?MADDE\s+\d+`

	continuationSuffix = " (devamı)"
)

// TokenCounter はトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// Config はChunkerの設定
type Config struct {
	MaxTokens      int
	ArticlePattern string
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		MaxTokens:      DefaultMaxTokens,
		ArticlePattern: DefaultArticlePattern,
	}
}

// Chunker は法令テキストを条文単位のチャンクに分割する
type Chunker struct {
	maxTokens int
	article   *regexp.Regexp
	counter   TokenCounter
	logger    *slog.Logger
}

type Option func(*Chunker)

// WithLogger は Chunker にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) {
		c.logger = logger
	}
}

// New は新しいChunkerを作成する
func New(counter TokenCounter, cfg Config, opts ...Option) (*Chunker, error) {
	if counter == nil {
		return nil, newChunkerError("new", "", fmt.Errorf("%w: token counter is nil", ErrInvalidConfig))
	}
	if cfg.MaxTokens <= 0 {
		return nil, newChunkerError("new", "", fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, cfg.MaxTokens))
	}
	if cfg.ArticlePattern == "" {
		cfg.ArticlePattern = DefaultArticlePattern
	}
	article, err := regexp.Compile(cfg.ArticlePattern)
	if err != nil {
		return nil, newChunkerError("new", "", fmt.Errorf("%w: article pattern: %v", ErrInvalidConfig, err))
	}

	c := &Chunker{
		maxTokens: cfg.MaxTokens,
		article:   article,
		counter:   counter,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// MaxTokens はトークン上限を返す
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// CountArticles はテキスト中の条文マーカー数を返す
func (c *Chunker) CountArticles(text string) int {
	return len(c.article.FindAllStringIndex(text, -1))
}

type segment struct {
	kind   Kind
	marker string
	text   string
}

type piece struct {
	header string
	text   string
}

// Chunk は1文書をチャンクに分割する
// 空白のみの文書は ErrIngestSkipped を返す
func (c *Chunker) Chunk(ctx context.Context, doc *corpus.Document) ([]*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, newChunkerError("chunk", "", errors.New("document is nil"))
	}
	if doc.IsEmpty() {
		return nil, newChunkerError("chunk", doc.ID, ErrIngestSkipped)
	}

	var chunks []*Chunk
	for _, seg := range c.segments(doc.Text) {
		body := strings.TrimSpace(seg.text)
		if body == "" {
			continue
		}

		pieces := []piece{{text: body}}
		if c.counter.CountTokens(body) > c.maxTokens {
			pieces = c.pack(body, seg.marker)
		}

		for _, p := range pieces {
			chunk := &Chunk{
				ID:           fmt.Sprintf("%s_%d", doc.ID, len(chunks)),
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				DocumentType: doc.Type,
				Kind:         seg.kind,
				Ordinal:      len(chunks),
				Header:       p.header,
				Text:         p.text,
				Chars:        utf8.RuneCountInString(p.text),
				Words:        len(strings.Fields(p.text)),
			}
			chunk.Tokens = c.counter.CountTokens(chunk.EmbeddingText())
			chunk.Oversized = c.counter.CountTokens(p.text) > c.maxTokens
			if chunk.Oversized {
				c.logger.Warn("chunk exceeds token budget",
					"documentID", doc.ID,
					"chunkID", chunk.ID,
					"tokens", chunk.Tokens,
					"maxTokens", c.maxTokens,
				)
			}
			chunks = append(chunks, chunk)
		}
	}

	return chunks, nil
}

// segments は条文マーカーでテキストを区切る。マーカーがなければ全体を1セクションとする
func (c *Chunker) segments(text string) []segment {
	locs := c.article.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []segment{{kind: KindSection, text: text}}
	}

	segs := make([]segment, 0, len(locs)+1)
	if pre := text[:locs[0][0]]; strings.TrimSpace(pre) != "" {
		segs = append(segs, segment{kind: KindSection, text: pre})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segs = append(segs, segment{
			kind:   KindArticle,
			marker: text[loc[0]:loc[1]],
			text:   text[loc[0]:end],
		})
	}
	return segs
}

// pack は上限を超えたテキストを文単位で貪欲に詰め直す
// 2つ目以降の断片には親条文の見出しを付け、見出しを含めて上限内に収める
func (c *Chunker) pack(body, marker string) []piece {
	sentences := splitSentences(body)

	continuation := ""
	if marker != "" {
		continuation = marker + continuationSuffix
	}

	var pieces []piece
	header := ""
	start, end := -1, -1

	flush := func() {
		if start < 0 {
			return
		}
		text := strings.TrimSpace(body[start:end])
		if text != "" {
			h := header
			// 見出しを付けると上限を超える単文は見出しなしで出力する
			if h != "" && c.counter.CountTokens(withHeader(h, text)) > c.maxTokens && c.counter.CountTokens(text) <= c.maxTokens {
				h = ""
			}
			pieces = append(pieces, piece{header: h, text: text})
			header = continuation
		}
		start, end = -1, -1
	}

	for _, s := range sentences {
		if start >= 0 {
			candidate := strings.TrimSpace(body[start:s.end])
			if c.counter.CountTokens(withHeader(header, candidate)) > c.maxTokens {
				flush()
			}
		}
		if start < 0 {
			start = s.start
		}
		end = s.end
	}
	flush()

	return pieces
}

// ChunkCorpus は複数文書をチャンク化する
// スキップ対象の文書は記録して処理を継続し、それ以外のエラーで中断する
func (c *Chunker) ChunkCorpus(ctx context.Context, docs []*corpus.Document) ([]*Chunk, *CorpusReport, error) {
	report := &CorpusReport{ByKind: make(map[Kind]int)}
	var all []*Chunk

	for _, doc := range docs {
		chunks, err := c.Chunk(ctx, doc)
		if err != nil {
			if errors.Is(err, ErrIngestSkipped) {
				c.logger.Warn("document skipped", "documentID", doc.ID, "name", doc.Name, "reason", err.Error())
				report.Skipped = append(report.Skipped, doc.ID)
				continue
			}
			return nil, nil, fmt.Errorf("failed to chunk document %s: %w", doc.ID, err)
		}

		doc.ArticleCount = c.CountArticles(doc.Text)
		report.Documents++
		for _, ch := range chunks {
			report.ByKind[ch.Kind]++
			if ch.Oversized {
				report.Oversized++
			}
		}
		all = append(all, chunks...)
	}
	report.Chunks = len(all)

	c.logger.Info("corpus chunked",
		"documents", report.Documents,
		"chunks", report.Chunks,
		"skipped", len(report.Skipped),
		"oversized", report.Oversized,
	)
	return all, report, nil
}
