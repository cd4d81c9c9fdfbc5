package corpus

import (
	"strings"
	"time"
)

// LawType は法令の種別を表す
type LawType string

const (
	LawTypeKanun                       LawType = "kanun"
	LawTypeKanunHukmundeKararname      LawType = "kanun_hukmunde_kararname"
	LawTypeCumhurbaskanligiKararnamesi LawType = "cumhurbaskanligi_kararnamesi"
	LawTypeYonetmelik                  LawType = "yonetmelik"
	LawTypeTuzuk                       LawType = "tuzuk"
	LawTypeTeblig                      LawType = "teblig"
	LawTypeYonerge                     LawType = "yonerge"
	// LawTypeUncategorized はどのルールにも一致しなかった文書の種別
	LawTypeUncategorized LawType = "uncategorized"
)

var allLawTypes = []LawType{
	LawTypeKanun,
	LawTypeKanunHukmundeKararname,
	LawTypeCumhurbaskanligiKararnamesi,
	LawTypeYonetmelik,
	LawTypeTuzuk,
	LawTypeTeblig,
	LawTypeYonerge,
	LawTypeUncategorized,
}

// AllLawTypes は既知の種別を定義順に返す
func AllLawTypes() []LawType {
	out := make([]LawType, len(allLawTypes))
	copy(out, allLawTypes)
	return out
}

// ParseLawType は文字列を LawType に変換する。未知の値は Uncategorized になる
func ParseLawType(s string) LawType {
	v := LawType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range allLawTypes {
		if t == v {
			return t
		}
	}
	return LawTypeUncategorized
}

func (t LawType) String() string {
	return string(t)
}

// Gazette は官報掲載情報
type Gazette struct {
	Date   string
	Number string
}

// Document は取り込まれた法令テキスト1件を表す
type Document struct {
	ID             string
	Number         string // mevzuat numarası
	Name           string
	Type           LawType
	Text           string
	AcceptanceDate string
	Gazette        Gazette
	DetailURL      string
	ArticleCount   int
	IngestedAt     time.Time
}

// IsEmpty は抽出可能なテキストを持たない場合に true を返す
func (d *Document) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}
