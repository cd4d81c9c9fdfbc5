package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/mevzuat-rag/internal/core/store"
)

func TestWatcher_ReloadsOnPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := NewStoreRepository(t.TempDir(), discardLogger())
	_, err := repo.Publish(ctx, newTestStore(t, "build-1", []float32{1, 0}))
	require.NoError(t, err)

	s, err := repo.LoadCurrent(ctx)
	require.NoError(t, err)
	handle := store.NewHandle(s, discardLogger())

	w := NewWatcher(repo, handle, discardLogger())
	w.debounce = 10 * time.Millisecond
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// 監視開始を待つ
	time.Sleep(100 * time.Millisecond)

	_, err = repo.Publish(ctx, newTestStore(t, "build-2", []float32{0, 1}))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return handle.Current().Metadata().BuildID == "build-2"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_KeepsStoreOnCorruptBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := NewStoreRepository(t.TempDir(), discardLogger())
	_, err := repo.Publish(ctx, newTestStore(t, "build-1", []float32{1, 0}))
	require.NoError(t, err)
	s, err := repo.LoadCurrent(ctx)
	require.NoError(t, err)
	handle := store.NewHandle(s, discardLogger())

	w := NewWatcher(repo, handle, discardLogger())
	w.debounce = 10 * time.Millisecond
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, writeFileAtomic(filepath.Join(repo.Dir(), CurrentFile), []byte("nope.db\n")))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, "build-1", handle.Current().Metadata().BuildID)
}
