package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Repository はストアの永続化を担う
// Publish は新しい保存先に書き込んでから現行ビルドの参照を原子的に切り替える
type Repository interface {
	Publish(ctx context.Context, s *Store) (location string, err error)
	LoadCurrent(ctx context.Context) (*Store, error)
}

type loadOptions struct {
	expectedModel     string
	expectedDimension int
}

// LoadOption は Load のオプション設定
type LoadOption func(*loadOptions)

// WithExpectedModel はクエリ時に使う埋め込みモデルとの一致を検証する
func WithExpectedModel(model string, dimension int) LoadOption {
	return func(o *loadOptions) {
		o.expectedModel = model
		o.expectedDimension = dimension
	}
}

// Load は現行ビルドを読み込み、検証する
func Load(ctx context.Context, repo Repository, opts ...LoadOption) (*Store, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	s, err := repo.LoadCurrent(ctx)
	if err != nil {
		return nil, err
	}

	meta := s.Metadata()
	if o.expectedModel != "" && meta.EmbeddingModel != o.expectedModel {
		return nil, fmt.Errorf("%w: store built with %q, configured %q", ErrModelMismatch, meta.EmbeddingModel, o.expectedModel)
	}
	if o.expectedDimension > 0 && meta.Dimension != o.expectedDimension {
		return nil, fmt.Errorf("%w: store dimension %d, configured %d", ErrModelMismatch, meta.Dimension, o.expectedDimension)
	}
	return s, nil
}

// Handle は現在配信中の Store への参照
// 再ビルド後は Swap で差し替え、実行中のリクエストは古い Store を使い続ける
type Handle struct {
	current atomic.Pointer[Store]
	logger  *slog.Logger
}

// NewHandle は新しい Handle を作成する
func NewHandle(s *Store, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handle{logger: logger}
	h.current.Store(s)
	return h
}

// Current は現在の Store を返す。未設定なら nil
func (h *Handle) Current() *Store {
	return h.current.Load()
}

// Swap は Store を差し替え、以前の Store を返す
// nil は差し替えずに無視し、nil を返す
func (h *Handle) Swap(s *Store) *Store {
	if s == nil {
		h.logger.Warn("store swap ignored: nil store")
		return nil
	}
	old := h.current.Swap(s)
	if old != nil {
		h.logger.Info("store swapped", "from", old.Metadata().BuildID, "to", s.Metadata().BuildID)
	}
	return old
}

// Reload は Repository から現行ビルドを読み込み直して差し替える
// 検証に失敗した場合は差し替えず、現在の Store を維持する
func (h *Handle) Reload(ctx context.Context, repo Repository, opts ...LoadOption) error {
	s, err := Load(ctx, repo, opts...)
	if err != nil {
		h.logger.Error("store reload rejected", "error", err)
		return err
	}
	if cur := h.Current(); cur != nil && cur.Metadata().BuildID == s.Metadata().BuildID {
		return nil
	}
	h.Swap(s)
	return nil
}
