package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/jinford/mevzuat-rag/internal/core/store"
)

// StoreBuildAction はデータセットから新しいストアを構築し、現行ビルドとして公開する
func StoreBuildAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	input := cmd.String("input")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.RequireBuild(ctx); err != nil {
		return err
	}
	c := appCtx.Container

	docs, err := c.Loader.LoadFile(input)
	if err != nil {
		return fmt.Errorf("データセットの読み込みに失敗: %w", err)
	}

	chunks, report, err := c.Chunker.ChunkCorpus(ctx, docs)
	if err != nil {
		return fmt.Errorf("チャンク分割に失敗: %w", err)
	}
	displayCorpusReport(os.Stdout, report)

	bar := getProgressBar(len(chunks), "埋め込み生成中")
	s, err := store.Build(ctx, chunks, c.Embedder,
		store.WithDocuments(docs),
		store.WithConcurrency(appCtx.Config.Embedding.Concurrency),
		store.WithProgress(func(done, _ int) { _ = bar.Set(done) }),
		store.WithBuildLogger(appCtx.Logger()),
	)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("ストアの構築に失敗: %w", err)
	}

	location, err := c.Repository.Publish(ctx, s)
	if err != nil {
		return fmt.Errorf("ストアの公開に失敗: %w", err)
	}

	color.Green("\n✓ ビルド %s を公開しました (%d チャンク)\n", s.Metadata().BuildID, s.Len())
	fmt.Printf("保存先: %s\n", location)
	return nil
}

// StoreStatsAction は現行ストアの集計を表示する
func StoreStatsAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := loadCurrentStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	displayStoreStats(os.Stdout, s.Stats())
	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
