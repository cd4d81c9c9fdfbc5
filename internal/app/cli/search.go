package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/mevzuat-rag/internal/core/search"
)

// SearchAction は条文検索コマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	useRewrite := cmd.Bool("rewrite")

	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("検索クエリを指定してください")
	}

	filter, err := filterFromCommand(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.RequireServing(ctx); err != nil {
		return err
	}
	c := appCtx.Container

	if useRewrite {
		rw := c.Rewriter.Rewrite(ctx, query)
		query = rw.Query
	}

	topK := optionalTopK(int(cmd.Int("top-k"))).OrElse(appCtx.Config.Synthesis.TopK)
	results, err := c.SearchService.Search(ctx, search.SearchParams{
		Query:             query,
		TopK:              topK,
		Filter:            filter,
		DistinctDocuments: cmd.Bool("distinct"),
	})
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}

	displaySearchResults(os.Stdout, query, useRewrite, results)
	return nil
}
