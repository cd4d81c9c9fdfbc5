// Package dataset は法令データセット(JSON Lines または JSON 配列)を読み込む
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

// record はデータセット1行分の形式
type record struct {
	ID             string          `json:"law_id"`
	Number         json.RawMessage `json:"law_number"`
	Name           string          `json:"law_name"`
	Type           string          `json:"law_type"`
	FullText       string          `json:"full_text"`
	Text           string          `json:"text"`
	AcceptanceDate string          `json:"acceptance_date"`
	GazetteDate    string          `json:"gazette_date"`
	GazetteNumber  json.RawMessage `json:"gazette_number"`
	DetailURL      string          `json:"detail_url"`
	ArticleCount   int             `json:"article_count"`
}

// Loader はデータセットを Document に変換する
type Loader struct {
	rules  corpus.RuleTable
	logger *slog.Logger
	now    func() time.Time
}

// NewLoader は新しい Loader を作成する
func NewLoader(rules corpus.RuleTable, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{rules: rules, logger: logger, now: time.Now}
}

// LoadFile はファイルからデータセットを読み込む
func (l *Loader) LoadFile(path string) ([]*corpus.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	docs, err := l.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// Load は JSON Lines または JSON 配列を読み込む
// 種別が空の文書はルール表で分類される
func (l *Loader) Load(r io.Reader) ([]*corpus.Document, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	dec := json.NewDecoder(br)
	array := first == '['
	if array {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("reading array start: %w", err)
		}
	}

	var (
		docs []*corpus.Document
		seen = make(map[string]int)
	)
	ingestedAt := l.now().UTC()
	for n := 1; ; n++ {
		if array && !dec.More() {
			break
		}
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if !array && errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("record %d: %w", n, err)
		}

		doc := l.toDocument(rec, n)
		doc.IngestedAt = ingestedAt
		if prev, dup := seen[doc.ID]; dup {
			l.logger.Warn("duplicate document id, suffixing", "id", doc.ID, "record", n, "first", prev)
			doc.ID = doc.ID + "-" + strconv.Itoa(n)
		}
		seen[doc.ID] = n
		docs = append(docs, doc)
	}

	l.logger.Info("dataset loaded", "documents", len(docs))
	return docs, nil
}

func (l *Loader) toDocument(rec record, n int) *corpus.Document {
	text := rec.FullText
	if text == "" {
		text = rec.Text
	}

	doc := &corpus.Document{
		ID:             strings.TrimSpace(rec.ID),
		Number:         rawString(rec.Number),
		Name:           strings.TrimSpace(rec.Name),
		Text:           text,
		AcceptanceDate: rec.AcceptanceDate,
		Gazette: corpus.Gazette{
			Date:   rec.GazetteDate,
			Number: rawString(rec.GazetteNumber),
		},
		DetailURL:    rec.DetailURL,
		ArticleCount: rec.ArticleCount,
	}
	if rec.Type != "" {
		doc.Type = corpus.ParseLawType(rec.Type)
	}
	l.rules.Normalize(doc)

	if doc.ID == "" {
		doc.ID = doc.Number
	}
	if doc.ID == "" {
		doc.ID = "doc-" + strconv.Itoa(n)
	}
	return doc
}

// rawString は文字列・数値どちらの JSON 値も文字列にする
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF:
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
