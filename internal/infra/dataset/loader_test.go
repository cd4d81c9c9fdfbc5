package dataset

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

func newTestLoader() *Loader {
	l := NewLoader(corpus.DefaultRuleTable(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return l
}

func TestLoader_JSONLines(t *testing.T) {
	input := `{"law_id":"4857","law_number":4857,"law_name":"İş Kanunu","full_text":"MADDE 1 - Amaç.","gazette_number":"25134"}
{"law_number":"5237","law_name":"Türk Ceza Kanunu","law_type":"kanun","text":"MADDE 1 - Ceza kanununun amacı."}

{"law_name":"Çalışma Süreleri Yönetmeliği","full_text":"MADDE 1 - Kapsam."}
`
	docs, err := newTestLoader().Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "4857", docs[0].ID)
	assert.Equal(t, "4857", docs[0].Number)
	assert.Equal(t, corpus.LawTypeKanun, docs[0].Type)
	assert.Equal(t, "25134", docs[0].Gazette.Number)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), docs[0].IngestedAt)

	assert.Equal(t, "5237", docs[1].ID)
	assert.Equal(t, "MADDE 1 - Ceza kanununun amacı.", docs[1].Text)

	assert.Equal(t, "doc-3", docs[2].ID)
	assert.Equal(t, corpus.LawTypeYonetmelik, docs[2].Type)
}

func TestLoader_JSONArray(t *testing.T) {
	input := `[
		{"law_id":"a","law_name":"Bazı Kanun Hükmünde Kararname","full_text":"x"},
		{"law_id":"a","law_name":"Gümrük Tebliği","full_text":"y"}
	]`
	docs, err := newTestLoader().Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, corpus.LawTypeKanunHukmundeKararname, docs[0].Type)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "a-2", docs[1].ID)
	assert.Equal(t, corpus.LawTypeTeblig, docs[1].Type)
}

func TestLoader_Errors(t *testing.T) {
	l := newTestLoader()

	docs, err := l.Load(strings.NewReader("   \n"))
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = l.Load(strings.NewReader(`{"law_id":"a"}` + "\n{broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")

	_, err = l.LoadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"law_id":"1","law_name":"Adli Yargı Tüzüğü","full_text":"MADDE 1"}`+"\n"), 0o644))

	docs, err := newTestLoader().LoadFile(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, corpus.LawTypeTuzuk, docs[0].Type)
}
