package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jinford/mevzuat-rag/internal/platform/config"
	"github.com/jinford/mevzuat-rag/internal/platform/container"
	"github.com/jinford/mevzuat-rag/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、AppContext を作成する
// 外部サービスへの接続は各コマンドが必要になった時点で行う
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	cont, err := container.NewContainer(cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// RequireServing は設定を検証し、ストアの読み込みと検索・質問応答の準備を行う
func (ac *AppContext) RequireServing(ctx context.Context) error {
	if err := ac.Config.Validate(); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}
	return ac.Container.InitServing(ctx)
}

// RequireBuild は設定を検証し、埋め込みとストア保存先の準備を行う
func (ac *AppContext) RequireBuild(ctx context.Context) error {
	if err := ac.Config.Validate(); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}
	if err := ac.Container.InitLLM(ctx); err != nil {
		return err
	}
	return ac.Container.InitRepository(ctx)
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		if err := ac.Container.Close(); err != nil {
			ac.Logger().Warn("failed to release resources", "error", err)
		}
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}
