package ask

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type blockingRecorder struct {
	release chan struct{}
	got     chan RunRecord
}

func (r *blockingRecorder) Record(ctx context.Context, rec RunRecord) error {
	<-r.release
	r.got <- rec
	return nil
}

func TestAsyncRecorder_NeverBlocksAndDropsWhenFull(t *testing.T) {
	next := &blockingRecorder{release: make(chan struct{}), got: make(chan RunRecord, 10)}
	rec := NewAsyncRecorder(next, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() {
		for range 5 {
			_ = rec.Record(context.Background(), RunRecord{RunID: uuid.New()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked")
	}

	close(next.release)
	rec.Close()
	close(next.got)

	var n int
	for range next.got {
		n++
	}
	// 書き込み中の1件とバッファの1件のみが残る
	assert.LessOrEqual(t, n, 2)
	assert.GreaterOrEqual(t, n, 1)

	// Close 後の Record は無視される
	assert.NoError(t, rec.Record(context.Background(), RunRecord{}))
}

type failingRecorder struct{ err error }

func (r failingRecorder) Record(context.Context, RunRecord) error { return r.err }

func TestMultiRecorder(t *testing.T) {
	boom := errors.New("boom")
	capture := &captureRecorder{}

	err := MultiRecorder{failingRecorder{err: boom}, capture}.Record(context.Background(), RunRecord{Question: "q"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, capture.records, 1)
}
