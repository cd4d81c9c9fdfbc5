package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/mevzuat-rag/internal/core/ask"
)

// RunLog は実行記録を SQLite に保存する
// ストア本体とは別ファイルで、書き込みは WAL で直列化される
type RunLog struct {
	db *sql.DB
}

// RunSummary は実行記録の集計
type RunSummary struct {
	Total        int
	ByStatus     map[ask.Status]int
	ByReason     map[ask.Reason]int
	AvgElapsed   time.Duration
	FallbackRate float64
}

// OpenRunLog は実行記録データベースを開き、スキーマを適用する
func OpenRunLog(ctx context.Context, path string) (*RunLog, error) {
	db, err := open("file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := applySchema(ctx, db, runLogSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &RunLog{db: db}, nil
}

// Record は実行記録を1件保存する
func (l *RunLog) Record(ctx context.Context, rec ask.RunRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO search_logs (run_id, started_at, question, rewritten_query, rewrite_fell_back, top_k,
			kind_filter, law_type_filter, law_name_filter, status, reason, results_count, chunk_ids, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID.String(), rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.Question, rec.RewrittenQuery,
		rec.RewriteFellBack, rec.TopK, rec.KindFilter, rec.LawTypeFilter, rec.LawNameFilter,
		string(rec.Status), string(rec.Reason), rec.ResultCount, strings.Join(rec.ChunkIDs, ","),
		rec.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", rec.RunID, err)
	}
	return nil
}

// Summary は全実行記録を集計する
func (l *RunLog) Summary(ctx context.Context) (*RunSummary, error) {
	sum := &RunSummary{
		ByStatus: make(map[ask.Status]int),
		ByReason: make(map[ask.Reason]int),
	}

	var (
		avg      sql.NullFloat64
		fallback sql.NullInt64
	)
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(elapsed_ms), SUM(rewrite_fell_back) FROM search_logs`,
	).Scan(&sum.Total, &avg, &fallback); err != nil {
		return nil, fmt.Errorf("summarizing runs: %w", err)
	}
	if sum.Total == 0 {
		return sum, nil
	}
	sum.AvgElapsed = time.Duration(avg.Float64 * float64(time.Millisecond))
	sum.FallbackRate = float64(fallback.Int64) / float64(sum.Total)

	rows, err := l.db.QueryContext(ctx, `SELECT status, reason, COUNT(*) FROM search_logs GROUP BY status, reason`)
	if err != nil {
		return nil, fmt.Errorf("grouping runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status, reason string
			n              int
		)
		if err := rows.Scan(&status, &reason, &n); err != nil {
			return nil, fmt.Errorf("scanning run group: %w", err)
		}
		sum.ByStatus[ask.Status(status)] += n
		if reason != "" {
			sum.ByReason[ask.Reason(reason)] += n
		}
	}
	return sum, rows.Err()
}

// Recent は新しい順に実行記録を返す
func (l *RunLog) Recent(ctx context.Context, limit int) ([]ask.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, started_at, question, rewritten_query, rewrite_fell_back, top_k,
			kind_filter, law_type_filter, law_name_filter, status, reason, results_count, chunk_ids, elapsed_ms
		FROM search_logs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []ask.RunRecord
	for rows.Next() {
		var (
			rec                        ask.RunRecord
			runID, startedAt, chunkIDs string
			status, reason             string
			elapsedMS                  int64
		)
		if err := rows.Scan(&runID, &startedAt, &rec.Question, &rec.RewrittenQuery, &rec.RewriteFellBack, &rec.TopK,
			&rec.KindFilter, &rec.LawTypeFilter, &rec.LawNameFilter, &status, &reason, &rec.ResultCount,
			&chunkIDs, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if rec.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("parsing run id: %w", err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parsing run time: %w", err)
		}
		if chunkIDs != "" {
			rec.ChunkIDs = strings.Split(chunkIDs, ",")
		}
		rec.Status = ask.Status(status)
		rec.Reason = ask.Reason(reason)
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close はデータベースを閉じる
func (l *RunLog) Close() error {
	return l.db.Close()
}

var _ ask.RunRecorder = (*RunLog)(nil)
