package store

import (
	"sort"

	"github.com/samber/mo"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
)

// LawSummary は法令ごとの一覧表示用の情報
type LawSummary struct {
	Name   string
	Type   corpus.LawType
	Chunks int
}

// LawInfo は1法令の詳細情報
type LawInfo struct {
	DocumentID     string
	Number         string
	Name           string
	Type           corpus.LawType
	AcceptanceDate string
	Gazette        corpus.Gazette
	DetailURL      string
	ArticleCount   int
	ChunkCount     int
	Chars          int
	Words          int
	Oversized      int
	ByKind         map[chunking.Kind]int
}

// LawTypes はストアに含まれる種別を定義順に返す
func (s *Store) LawTypes() []corpus.LawType {
	present := make(map[corpus.LawType]bool)
	for _, r := range s.records {
		present[r.Chunk.DocumentType] = true
	}

	var out []corpus.LawType
	for _, t := range corpus.AllLawTypes() {
		if present[t] {
			out = append(out, t)
		}
	}
	return out
}

// Laws は法令名の一覧を名前順で返す。種別を指定した場合はその種別のみ
func (s *Store) Laws(lawType mo.Option[corpus.LawType]) []LawSummary {
	byName := make(map[string]*LawSummary)
	for _, c := range s.AllChunks() {
		if t, ok := lawType.Get(); ok && c.DocumentType != t {
			continue
		}
		sum, ok := byName[c.DocumentName]
		if !ok {
			sum = &LawSummary{Name: c.DocumentName, Type: c.DocumentType}
			byName[c.DocumentName] = sum
		}
		sum.Chunks++
	}

	out := make([]LawSummary, 0, len(byName))
	for _, sum := range byName {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// LawInfo は法令名で詳細情報を返す。該当するチャンクがなければ None
// 文書メタデータが保存されていないビルドではチャンクから分かる項目のみ埋める
func (s *Store) LawInfo(name string) mo.Option[LawInfo] {
	info := LawInfo{Name: name, ByKind: make(map[chunking.Kind]int)}
	for _, c := range s.AllChunks() {
		if c.DocumentName != name {
			continue
		}
		if info.ChunkCount == 0 {
			info.DocumentID = c.DocumentID
			info.Type = c.DocumentType
		}
		info.ChunkCount++
		info.Chars += c.Chars
		info.Words += c.Words
		info.ByKind[c.Kind]++
		if c.Oversized {
			info.Oversized++
		}
	}
	if info.ChunkCount == 0 {
		return mo.None[LawInfo]()
	}

	for _, d := range s.documents {
		if d.ID != info.DocumentID {
			continue
		}
		info.Number = d.Number
		info.AcceptanceDate = d.AcceptanceDate
		info.Gazette = d.Gazette
		info.DetailURL = d.DetailURL
		info.ArticleCount = d.ArticleCount
		break
	}
	return mo.Some(info)
}
