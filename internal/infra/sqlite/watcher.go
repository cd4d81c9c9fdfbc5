package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jinford/mevzuat-rag/internal/core/store"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher は CURRENT の更新を検知して Handle を再読み込みする
type Watcher struct {
	repo     *StoreRepository
	handle   *store.Handle
	opts     []store.LoadOption
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher は新しい Watcher を作成する
func NewWatcher(repo *StoreRepository, handle *store.Handle, logger *slog.Logger, opts ...store.LoadOption) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		repo:     repo,
		handle:   handle,
		opts:     opts,
		logger:   logger,
		debounce: defaultDebounce,
	}
}

// Run は ctx がキャンセルされるまでディレクトリを監視する
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.repo.Dir()); err != nil {
		return fmt.Errorf("watching %s: %w", w.repo.Dir(), err)
	}
	w.logger.Info("watching store for new builds", "dir", w.repo.Dir())

	// リネームは複数イベントになるため、まとめてから再読み込みする
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != CurrentFile {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("store watcher error", "error", err)
		case <-timer.C:
			if err := w.handle.Reload(ctx, w.repo, w.opts...); err != nil {
				w.logger.Warn("keeping current store", "error", err)
			}
		}
	}
}
