package ask

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State はパイプライン実行の状態
type State string

const (
	StateReceived     State = "received"
	StateRewriting    State = "rewriting"
	StateRetrieving   State = "retrieving"
	StateSynthesizing State = "synthesizing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

var transitions = map[State][]State{
	StateReceived:     {StateRewriting, StateFailed},
	StateRewriting:    {StateRetrieving, StateFailed},
	StateRetrieving:   {StateSynthesizing, StateFailed},
	StateSynthesizing: {StateCompleted, StateFailed},
}

// CanTransition は from から to への遷移が許されるかを返す
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal は終端状態かどうかを返す
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// run は1リクエスト分の実行状態を保持する。ゴルーチン間で共有しない
type run struct {
	id        uuid.UUID
	startedAt time.Time
	state     State
	trail     []State
	result    AskResult
}

func newRun(question string, now time.Time) *run {
	id := uuid.New()
	return &run{
		id:        id,
		startedAt: now,
		state:     StateReceived,
		trail:     []State{StateReceived},
		result: AskResult{
			RunID:    id,
			Question: question,
		},
	}
}

func (r *run) to(next State) error {
	if !CanTransition(r.state, next) {
		return fmt.Errorf("invalid state transition %s -> %s", r.state, next)
	}
	r.state = next
	r.trail = append(r.trail, next)
	return nil
}

func (r *run) finish(now time.Time) *AskResult {
	res := r.result
	res.State = r.state
	res.Trail = append([]State(nil), r.trail...)
	res.Elapsed = now.Sub(r.startedAt)
	return &res
}
