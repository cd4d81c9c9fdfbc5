package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

// CorpusChunkAction はデータセットをチャンク分割し、集計を表示する（埋め込みは行わない）
func CorpusChunkAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	input := cmd.String("input")
	show := int(cmd.Int("show"))

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Container.Loader.LoadFile(input)
	if err != nil {
		return fmt.Errorf("データセットの読み込みに失敗: %w", err)
	}

	chunks, report, err := appCtx.Container.Chunker.ChunkCorpus(ctx, docs)
	if err != nil {
		return fmt.Errorf("チャンク分割に失敗: %w", err)
	}

	slog.Info("corpus chunked", "documents", report.Documents, "chunks", report.Chunks)
	displayCorpusReport(os.Stdout, report)
	if show > 0 {
		displayChunkPreview(os.Stdout, chunks, show)
	}
	return nil
}
