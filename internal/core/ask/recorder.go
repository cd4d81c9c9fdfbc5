package ask

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunRecord は1回のパイプライン実行の記録
type RunRecord struct {
	RunID           uuid.UUID     `json:"runID"`
	StartedAt       time.Time     `json:"startedAt"`
	Question        string        `json:"question"`
	RewrittenQuery  string        `json:"rewrittenQuery"`
	RewriteFellBack bool          `json:"rewriteFellBack"`
	TopK            int           `json:"topK"`
	KindFilter      string        `json:"kindFilter,omitempty"`
	LawTypeFilter   string        `json:"lawTypeFilter,omitempty"`
	LawNameFilter   string        `json:"lawNameFilter,omitempty"`
	Status          Status        `json:"status"`
	Reason          Reason        `json:"reason,omitempty"`
	ResultCount     int           `json:"resultCount"`
	ChunkIDs        []string      `json:"chunkIDs"`
	Elapsed         time.Duration `json:"elapsed"`
}

// RunRecorder は実行記録を保存する
type RunRecorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

// NopRecorder は何も記録しない
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, RunRecord) error { return nil }

const defaultRecorderBuffer = 256

// AsyncRecorder は記録をバックグラウンドで書き込む
// バッファが一杯の場合は記録を破棄し、呼び出し元を待たせない
type AsyncRecorder struct {
	next    RunRecorder
	queue   chan RunRecord
	logger  *slog.Logger
	timeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncRecorder は新しい AsyncRecorder を作成し、書き込みゴルーチンを起動する
func NewAsyncRecorder(next RunRecorder, buffer int, logger *slog.Logger) *AsyncRecorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &AsyncRecorder{
		next:    next,
		queue:   make(chan RunRecord, buffer),
		logger:  logger,
		timeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Record は記録をキューに積む。常に即座に戻る
func (r *AsyncRecorder) Record(_ context.Context, rec RunRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}

	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("run record dropped", "runID", rec.RunID.String())
	}
	return nil
}

func (r *AsyncRecorder) loop() {
	defer r.wg.Done()
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.next.Record(ctx, rec); err != nil {
			r.logger.Warn("failed to record run", "runID", rec.RunID.String(), "error", err)
		}
		cancel()
	}
}

// Close はキューに残った記録を書き込んでから終了する
func (r *AsyncRecorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		r.wg.Wait()
	})
}

// MultiRecorder は複数の RunRecorder に順に書き込む
type MultiRecorder []RunRecorder

func (m MultiRecorder) Record(ctx context.Context, rec RunRecord) error {
	var firstErr error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ RunRecorder = NopRecorder{}
	_ RunRecorder = (*AsyncRecorder)(nil)
	_ RunRecorder = MultiRecorder(nil)
)
