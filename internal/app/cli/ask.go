package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	coreask "github.com/jinford/mevzuat-rag/internal/core/ask"
)

// AskAction は質問応答コマンドのアクション
// 質問文を省略すると対話モードで起動し、新しいビルドの公開を自動で取り込む
func AskAction(ctx context.Context, cmd *cli.Command) error {
	showSources := cmd.Bool("show-sources")
	envFile := cmd.String("env")
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))

	filter, err := filterFromCommand(cmd)
	if err != nil {
		return err
	}
	params := coreask.AskParams{
		TopK: optionalTopK(int(cmd.Int("top-k"))),
	}
	if !filter.IsZero() {
		params.Filter = mo.Some(filter)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.RequireServing(ctx); err != nil {
		return err
	}

	if question != "" {
		params.Question = question
		return askOnce(ctx, appCtx, params, showSources, os.Stdout)
	}

	appCtx.Container.WatchStore(ctx)
	return askLoop(ctx, appCtx, params, showSources, os.Stdin, os.Stdout)
}

func askOnce(ctx context.Context, appCtx *AppContext, params coreask.AskParams, showSources bool, w io.Writer) error {
	slog.Debug("質問応答を開始", "question", params.Question)

	result, err := appCtx.Container.AskService.Ask(ctx, params)
	if err != nil {
		return fmt.Errorf("質問応答が中断されました: %w", err)
	}

	displayAnswer(w, result, showSources)
	return nil
}

// askLoop は標準入力から質問を読み取り、1件ずつ回答する
func askLoop(ctx context.Context, appCtx *AppContext, params coreask.AskParams, showSources bool, r io.Reader, w io.Writer) error {
	color.New(color.FgCyan).Fprintln(w, "\nMevzuat asistanı ('exit' ile çıkış)")
	prompt := color.New(color.FgGreen).FprintfFunc()

	scanner := bufio.NewScanner(r)
	for {
		prompt(w, "\nSoru: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "çıkış":
			return nil
		}

		p := params
		p.Question = line
		if err := askOnce(ctx, appCtx, p, showSources, w); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			color.New(color.FgRed).Fprintf(w, "%v\n", err)
		}
	}
}
