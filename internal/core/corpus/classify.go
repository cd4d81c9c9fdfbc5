package corpus

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Rule は法令名に対する分類ルール1件
// Keywords のいずれかが大文字化した名称に含まれれば一致とみなす
type Rule struct {
	Type     LawType  `yaml:"type"`
	Keywords []string `yaml:"keywords"`
}

// RuleTable は上から順に評価される分類ルール表
type RuleTable struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRuleTable は既定の分類ルール表を返す
// 「KANUN HÜKMÜNDE KARARNAME」は「KANUN」より先に評価する必要がある
func DefaultRuleTable() RuleTable {
	return RuleTable{
		Rules: []Rule{
			{Type: LawTypeKanunHukmundeKararname, Keywords: []string{"KANUN HÜKMÜNDE KARARNAME", "KHK"}},
			{Type: LawTypeCumhurbaskanligiKararnamesi, Keywords: []string{"CUMHURBAŞKANLIĞI KARARNAMESİ", "CUMHURBAŞKANLIĞI KARARNAME"}},
			{Type: LawTypeYonetmelik, Keywords: []string{"YÖNETMELİK", "YÖNETMELİĞİ"}},
			{Type: LawTypeTuzuk, Keywords: []string{"TÜZÜK", "TÜZÜĞÜ"}},
			{Type: LawTypeTeblig, Keywords: []string{"TEBLİĞ", "TEBLİĞİ"}},
			{Type: LawTypeYonerge, Keywords: []string{"YÖNERGE", "YÖNERGESİ"}},
			{Type: LawTypeKanun, Keywords: []string{"KANUN", "KANUNU"}},
		},
	}
}

// LoadRuleTable は YAML ファイルから分類ルール表を読み込む
func LoadRuleTable(path string) (RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleTable{}, fmt.Errorf("failed to read rule table: %w", err)
	}

	var table RuleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return RuleTable{}, fmt.Errorf("failed to parse rule table: %w", err)
	}

	if err := table.Validate(); err != nil {
		return RuleTable{}, err
	}
	return table, nil
}

// Validate はルール表の整合性を検証する
func (t RuleTable) Validate() error {
	if len(t.Rules) == 0 {
		return fmt.Errorf("rule table has no rules")
	}
	for i, r := range t.Rules {
		if ParseLawType(string(r.Type)) != r.Type {
			return fmt.Errorf("rule %d: unknown law type %q", i, r.Type)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("rule %d: no keywords", i)
		}
	}
	return nil
}

// Classify は法令名から種別を決定する。どのルールにも一致しなければ Uncategorized
func (t RuleTable) Classify(name string) LawType {
	upper := turkishUpper(name)
	if upper == "" {
		return LawTypeUncategorized
	}

	for _, r := range t.Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(upper, turkishUpper(kw)) {
				return r.Type
			}
		}
	}
	return LawTypeUncategorized
}

// Classify は既定のルール表で分類する
func Classify(name string) LawType {
	return DefaultRuleTable().Classify(name)
}

// Normalize は種別が未設定の文書をルール表で分類する
func (t RuleTable) Normalize(doc *Document) {
	if doc.Type == "" {
		doc.Type = t.Classify(doc.Name)
	}
}

func turkishUpper(s string) string {
	return strings.ToUpperSpecial(unicode.TurkishCase, strings.TrimSpace(s))
}
