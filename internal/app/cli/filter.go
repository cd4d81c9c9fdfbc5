package cli

import (
	"fmt"
	"strings"

	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/search"
)

// FilterFlags は検索系コマンドで共通のフィルタフラグ
func FilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "top-k",
			Usage: "取得件数（省略時は設定値）",
		},
		&cli.StringFlag{
			Name:  "kind",
			Usage: "チャンク種別で絞り込み (article | section)",
		},
		&cli.StringFlag{
			Name:  "type",
			Usage: "法令種別で絞り込み (kanun, yonetmelik, teblig など)",
		},
		&cli.StringFlag{
			Name:  "law",
			Usage: "法令名で絞り込み（完全一致）",
		},
	}
}

// parseFilter はフラグ値から検索フィルタを組み立てる
func parseFilter(kind, lawType, law string) (search.Filter, error) {
	var f search.Filter

	if kind = strings.TrimSpace(kind); kind != "" {
		k, ok := chunking.ParseKind(strings.ToLower(kind))
		if !ok {
			return search.Filter{}, fmt.Errorf("不明なチャンク種別です: %s", kind)
		}
		f.Kind = &k
	}

	if lawType = strings.TrimSpace(lawType); lawType != "" {
		t := corpus.ParseLawType(lawType)
		if t == corpus.LawTypeUncategorized && !strings.EqualFold(lawType, string(corpus.LawTypeUncategorized)) {
			return search.Filter{}, fmt.Errorf("不明な法令種別です: %s", lawType)
		}
		f.DocumentType = &t
	}

	if law = strings.TrimSpace(law); law != "" {
		f.DocumentName = &law
	}
	return f, nil
}

// optionalTopK は 0 を未指定として扱う
func optionalTopK(n int) mo.Option[int] {
	if n == 0 {
		return mo.None[int]()
	}
	return mo.Some(n)
}

func filterFromCommand(cmd *cli.Command) (search.Filter, error) {
	return parseFilter(cmd.String("kind"), cmd.String("type"), cmd.String("law"))
}
