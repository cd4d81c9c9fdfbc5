package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/mevzuat-rag/internal/core/ask"
	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/search"
	"github.com/jinford/mevzuat-rag/internal/core/store"
	"github.com/jinford/mevzuat-rag/internal/infra/sqlite"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		lawType string
		law     string
		check   func(t *testing.T, f search.Filter)
		wantErr bool
	}{
		{
			name:  "未指定",
			check: func(t *testing.T, f search.Filter) { assert.True(t, f.IsZero()) },
		},
		{
			name:    "全条件",
			kind:    "Article",
			lawType: "yonetmelik",
			law:     " İş Kanunu ",
			check: func(t *testing.T, f search.Filter) {
				require.NotNil(t, f.Kind)
				assert.Equal(t, chunking.KindArticle, *f.Kind)
				require.NotNil(t, f.DocumentType)
				assert.Equal(t, corpus.LawTypeYonetmelik, *f.DocumentType)
				require.NotNil(t, f.DocumentName)
				assert.Equal(t, "İş Kanunu", *f.DocumentName)
			},
		},
		{
			name:    "未分類は指定できる",
			lawType: "uncategorized",
			check: func(t *testing.T, f search.Filter) {
				assert.Equal(t, corpus.LawTypeUncategorized, *f.DocumentType)
			},
		},
		{name: "不明な種別", kind: "paragraph", wantErr: true},
		{name: "不明な法令種別", lawType: "genelge", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := parseFilter(tt.kind, tt.lawType, tt.law)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

func TestOptionalTopK(t *testing.T) {
	assert.True(t, optionalTopK(0).IsAbsent())
	assert.Equal(t, 3, optionalTopK(3).MustGet())
}

func TestDisplayAnswer(t *testing.T) {
	res := &ask.AskResult{
		Status:          ask.StatusDegraded,
		Reason:          ask.ReasonNoMatch,
		Answer:          ask.NoMatchMarker,
		RewriteFellBack: true,
		Matches: []ask.Match{
			{ChunkID: "4857_3", DocumentName: "İş Kanunu", Score: 0.91, Rank: 1},
		},
	}

	var buf bytes.Buffer
	displayAnswer(&buf, res, true)
	out := buf.String()

	assert.Contains(t, out, "degraded: no_match")
	assert.Contains(t, out, ask.NoMatchMarker)
	assert.Contains(t, out, "[1] İş Kanunu (4857_3) スコア: 0.9100")
	assert.Contains(t, out, "クエリ書き換えに失敗")

	buf.Reset()
	displayAnswer(&buf, res, false)
	assert.NotContains(t, buf.String(), "参照条文")
}

func TestDisplayTables(t *testing.T) {
	var buf bytes.Buffer

	assert.NotPanics(t, func() {
		displayCorpusReport(&buf, &chunking.CorpusReport{
			Documents: 2,
			Chunks:    5,
			Skipped:   []string{"empty-1"},
			Oversized: 1,
			ByKind:    map[chunking.Kind]int{chunking.KindArticle: 4, chunking.KindSection: 1},
		})
	})
	assert.Contains(t, buf.String(), "empty-1")

	buf.Reset()
	assert.NotPanics(t, func() {
		displayStoreStats(&buf, store.Stats{
			Metadata:       store.Metadata{BuildID: "b1", EmbeddingModel: "text-embedding-3-small", Dimension: 1536, ChunkCount: 5},
			TotalDocuments: 2,
			ByLawType:      map[corpus.LawType]int{corpus.LawTypeKanun: 5},
		})
	})
	assert.Contains(t, buf.String(), "text-embedding-3-small")

	buf.Reset()
	assert.NotPanics(t, func() {
		displaySearchResults(&buf, "kıdem", true, nil)
	})
	assert.Contains(t, buf.String(), "見つかりませんでした")

	buf.Reset()
	assert.NotPanics(t, func() {
		displayRunSummary(&buf, &sqlite.RunSummary{
			Total:        1,
			ByStatus:     map[ask.Status]int{ask.StatusSuccess: 1},
			ByReason:     map[ask.Reason]int{},
			AvgElapsed:   time.Second,
			FallbackRate: 0,
		}, []ask.RunRecord{{RunID: uuid.New(), StartedAt: time.Now(), Question: "Kira artışı?", Status: ask.StatusSuccess}})
	})
	assert.Contains(t, buf.String(), "Kira artışı?")
}

func TestAskLoop_ExitsWithoutAsking(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("\n   \nexit\nthis is never asked\n")

	err := askLoop(t.Context(), nil, ask.AskParams{}, false, in, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out.String(), "Soru: "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate(" abc ", 5))
	assert.Equal(t, "çağ…", truncate("çağdaş", 3))
}

func lawsStore(t *testing.T) *store.Store {
	t.Helper()
	doc := &corpus.Document{ID: "4857", Name: "İş Kanunu", Type: corpus.LawTypeKanun, AcceptanceDate: "22/05/2003", ArticleCount: 1}
	records := []store.Record{{
		Chunk: &chunking.Chunk{
			ID: "4857_0", DocumentID: doc.ID, DocumentName: doc.Name, DocumentType: doc.Type,
			Kind: chunking.KindArticle, Text: "MADDE 1 - Amaç.", Chars: 15, Words: 4,
		},
		Vector: []float32{1},
	}}
	s, err := store.New(store.Metadata{BuildID: "b1", EmbeddingModel: "stub", Dimension: 1, BuiltAt: time.Now(), ChunkCount: 1}, records, []*corpus.Document{doc})
	require.NoError(t, err)
	return s
}

func TestLaws(t *testing.T) {
	s := lawsStore(t)
	var buf bytes.Buffer

	require.NoError(t, listLaws(&buf, s, ""))
	assert.Contains(t, buf.String(), "İş Kanunu")
	assert.Contains(t, buf.String(), "法令種別: kanun")

	buf.Reset()
	require.NoError(t, listLaws(&buf, s, "yonetmelik"))
	assert.Contains(t, buf.String(), "該当する法令はありません")

	assert.Error(t, listLaws(&buf, s, "genelge"))

	buf.Reset()
	require.NoError(t, showLawInfo(&buf, s, "İş Kanunu"))
	assert.Contains(t, buf.String(), "22/05/2003")

	assert.Error(t, showLawInfo(&buf, s, "Medeni Kanun"))

	buf.Reset()
	article := chunking.KindArticle
	displayBrowse(&buf, search.Browse(s, search.Filter{Kind: &article}, DefaultBrowseLimit))
	assert.Contains(t, buf.String(), "4857_0")

	buf.Reset()
	section := chunking.KindSection
	displayBrowse(&buf, search.Browse(s, search.Filter{Kind: &section}, DefaultBrowseLimit))
	assert.Contains(t, buf.String(), "該当するチャンクはありません")
}
