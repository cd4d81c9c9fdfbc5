package store

import "errors"

var (
	// ErrCorruptStore は永続化されたストアの整合性検証に失敗した
	ErrCorruptStore = errors.New("corrupt store")

	// ErrInconsistentDimension はビルド中にベクトル次元が揃わなかった
	ErrInconsistentDimension = errors.New("inconsistent embedding dimension")

	// ErrModelMismatch はストアのビルドに使われたモデルが現在の設定と異なる
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrNoChunks は空のチャンク集合でビルドしようとした
	ErrNoChunks = errors.New("no chunks to build")

	// ErrNotFound は公開済みのビルドが存在しない
	ErrNotFound = errors.New("store not found")
)
