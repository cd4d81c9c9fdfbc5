package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/mevzuat-rag/internal/app/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    "法令データセット (JSON Lines または JSON 配列)",
		Required: true,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "mevzuat-rag",
		Usage: "トルコ法令テキスト向け RAG 検索・質問応答システム",
		Commands: []*cli.Command{
			{
				Name:  "corpus",
				Usage: "データセット操作コマンド",
				Commands: []*cli.Command{
					{
						Name:  "chunk",
						Usage: "チャンク分割結果を確認（埋め込みは行わない）",
						Flags: []cli.Flag{
							envFlag(),
							inputFlag(),
							&cli.IntFlag{
								Name:  "show",
								Usage: "先頭から表示するチャンク数",
							},
						},
						Action: appcli.CorpusChunkAction,
					},
				},
			},
			{
				Name:  "store",
				Usage: "ベクトルストア管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "build",
						Usage: "チャンク分割・埋め込みを行い、新しいビルドを公開",
						Flags: []cli.Flag{
							envFlag(),
							inputFlag(),
						},
						Action: appcli.StoreBuildAction,
					},
					{
						Name:   "stats",
						Usage:  "現行ビルドの統計を表示",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.StoreStatsAction,
					},
					{
						Name:  "laws",
						Usage: "現行ビルドに含まれる法令の参照",
						Commands: []*cli.Command{
							{
								Name:  "list",
								Usage: "法令名の一覧を表示",
								Flags: []cli.Flag{
									envFlag(),
									&cli.StringFlag{
										Name:  "type",
										Usage: "法令種別で絞り込み (kanun, yonetmelik, teblig など)",
									},
								},
								Action: appcli.StoreLawsListAction,
							},
							{
								Name:      "info",
								Usage:     "法令の詳細を表示",
								ArgsUsage: "<法令名>",
								Flags:     []cli.Flag{envFlag()},
								Action:    appcli.StoreLawsInfoAction,
							},
							{
								Name:  "browse",
								Usage: "類似検索を行わずに条件に一致するチャンクを表示",
								Flags: []cli.Flag{
									envFlag(),
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
									&cli.IntFlag{
										Name:  "limit",
										Value: appcli.DefaultBrowseLimit,
										Usage: "表示件数（0で全件）",
									},
								},
								Action: appcli.StoreLawsBrowseAction,
							},
						},
					},
				},
			},
			{
				Name:      "search",
				Usage:     "条文を類似検索",
				ArgsUsage: "<クエリ>",
				Flags: append([]cli.Flag{
					envFlag(),
					&cli.BoolFlag{
						Name:  "rewrite",
						Usage: "検索前にクエリを書き換える",
					},
					&cli.BoolFlag{
						Name:  "distinct",
						Usage: "同じ法令のチャンクを1件にまとめる",
					},
				}, appcli.FilterFlags()...),
				Action: appcli.SearchAction,
			},
			{
				Name:      "ask",
				Usage:     "質問に回答（質問を省略すると対話モード）",
				ArgsUsage: "[質問]",
				Flags: append([]cli.Flag{
					envFlag(),
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照した条文を表示",
					},
				}, appcli.FilterFlags()...),
				Action: appcli.AskAction,
			},
			{
				Name:  "runs",
				Usage: "実行記録コマンド",
				Commands: []*cli.Command{
					{
						Name:  "stats",
						Usage: "実行記録の集計を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "recent",
								Usage: "表示する直近の実行数",
								Value: 10,
							},
						},
						Action: appcli.RunsStatsAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
