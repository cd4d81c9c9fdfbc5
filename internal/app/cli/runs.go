package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/mevzuat-rag/internal/infra/sqlite"
)

// RunsStatsAction は実行記録の集計を表示する
func RunsStatsAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	limit := int(cmd.Int("recent"))

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if b := appCtx.Config.RunLog.Backend; b != "sqlite" && b != "both" {
		return fmt.Errorf("実行記録の集計は RUN_LOG_BACKEND が sqlite または both の場合のみ利用できます")
	}

	runLog, err := sqlite.OpenRunLog(ctx, appCtx.Config.RunLog.Path)
	if err != nil {
		return fmt.Errorf("実行記録を開けません: %w", err)
	}
	defer runLog.Close()

	sum, err := runLog.Summary(ctx)
	if err != nil {
		return fmt.Errorf("集計に失敗: %w", err)
	}
	recent, err := runLog.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("実行記録の取得に失敗: %w", err)
	}

	displayRunSummary(os.Stdout, sum, recent)
	return nil
}
