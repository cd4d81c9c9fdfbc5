package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/search"
	"github.com/jinford/mevzuat-rag/internal/core/store"
)

// DefaultBrowseLimit は laws browse の既定表示件数
const DefaultBrowseLimit = 10

// StoreLawsListAction は現行ビルドに含まれる法令の一覧を表示する
func StoreLawsListAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := loadCurrentStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	return listLaws(os.Stdout, s, cmd.String("type"))
}

// StoreLawsInfoAction は法令名を指定して詳細を表示する
func StoreLawsInfoAction(ctx context.Context, cmd *cli.Command) error {
	name := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if name == "" {
		return fmt.Errorf("法令名を指定してください")
	}

	s, closeFn, err := loadCurrentStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	return showLawInfo(os.Stdout, s, name)
}

// StoreLawsBrowseAction は類似検索を行わずにフィルタに一致するチャンクを表示する
func StoreLawsBrowseAction(ctx context.Context, cmd *cli.Command) error {
	filter, err := filterFromCommand(cmd)
	if err != nil {
		return err
	}
	limit := int(cmd.Int("limit"))
	if limit < 0 {
		return fmt.Errorf("--limit は0以上で指定してください")
	}

	s, closeFn, err := loadCurrentStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	displayBrowse(os.Stdout, search.Browse(s, filter, limit))
	return nil
}

// loadCurrentStore は埋め込みモデルを使わずに現行ビルドを読み込む
func loadCurrentStore(ctx context.Context, envFile string) (*store.Store, func(), error) {
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return nil, nil, err
	}

	if err := appCtx.Container.InitRepository(ctx); err != nil {
		appCtx.Close()
		return nil, nil, err
	}

	s, err := store.Load(ctx, appCtx.Container.Repository)
	if err != nil {
		appCtx.Close()
		return nil, nil, fmt.Errorf("ストアの読み込みに失敗: %w", err)
	}
	return s, appCtx.Close, nil
}

func listLaws(w io.Writer, s *store.Store, typeArg string) error {
	lawType := mo.None[corpus.LawType]()
	if typeArg = strings.TrimSpace(typeArg); typeArg != "" {
		f, err := parseFilter("", typeArg, "")
		if err != nil {
			return err
		}
		lawType = mo.Some(*f.DocumentType)
	}

	displayLaws(w, s.LawTypes(), s.Laws(lawType))
	return nil
}

func showLawInfo(w io.Writer, s *store.Store, name string) error {
	info, ok := s.LawInfo(name).Get()
	if !ok {
		return fmt.Errorf("法令が見つかりません: %s", name)
	}
	displayLawInfo(w, info)
	return nil
}
