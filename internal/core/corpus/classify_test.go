package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want LawType
	}{
		{name: "kanun", in: "İş Kanunu", want: LawTypeKanun},
		{name: "小文字のトルコ語", in: "türk borçlar kanunu", want: LawTypeKanun},
		{name: "KHK は KANUN より優先", in: "Sağlık Hizmetleri Hakkında Kanun Hükmünde Kararname", want: LawTypeKanunHukmundeKararname},
		{name: "cumhurbaşkanlığı kararnamesi", in: "1 Sayılı Cumhurbaşkanlığı Kararnamesi", want: LawTypeCumhurbaskanligiKararnamesi},
		{name: "yönetmelik", in: "İş Sağlığı ve Güvenliği Yönetmeliği", want: LawTypeYonetmelik},
		{name: "tebliğ", in: "Katma Değer Vergisi Genel Uygulama Tebliği", want: LawTypeTeblig},
		{name: "一致なし", in: "Genelge 2020/1", want: LawTypeUncategorized},
		{name: "空文字", in: "   ", want: LawTypeUncategorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestRuleTable_Normalize(t *testing.T) {
	doc := &Document{Name: "Bilinmeyen Metin"}
	DefaultRuleTable().Normalize(doc)
	assert.Equal(t, LawTypeUncategorized, doc.Type)

	doc = &Document{Name: "İş Kanunu", Type: LawTypeTeblig}
	DefaultRuleTable().Normalize(doc)
	assert.Equal(t, LawTypeTeblig, doc.Type, "既に設定済みの種別は上書きしない")
}

func TestLoadRuleTable(t *testing.T) {
	dir := t.TempDir()

	t.Run("正常系", func(t *testing.T) {
		path := filepath.Join(dir, "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - type: yonerge
    keywords: ["genelge"]
  - type: kanun
    keywords: ["kanun"]
`), 0o644))

		table, err := LoadRuleTable(path)
		require.NoError(t, err)
		assert.Equal(t, LawTypeYonerge, table.Classify("Genelge 2020/1"))
		assert.Equal(t, LawTypeKanun, table.Classify("İş Kanunu"))
	})

	t.Run("未知の種別", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rules:\n  - type: foo\n    keywords: [x]\n"), 0o644))

		_, err := LoadRuleTable(path)
		require.Error(t, err)
	})
}

func TestParseLawType(t *testing.T) {
	assert.Equal(t, LawTypeYonetmelik, ParseLawType(" Yonetmelik "))
	assert.Equal(t, LawTypeUncategorized, ParseLawType("genelge"))
}
