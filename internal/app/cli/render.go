package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/jinford/mevzuat-rag/internal/core/ask"
	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/search"
	"github.com/jinford/mevzuat-rag/internal/core/store"
	"github.com/jinford/mevzuat-rag/internal/infra/sqlite"
)

// displayCorpusReport はチャンク分割結果の集計を表示する
func displayCorpusReport(w io.Writer, report *chunking.CorpusReport) {
	table := tablewriter.NewWriter(w)
	table.Header("項目", "値")
	table.Append("文書数", fmt.Sprintf("%d", report.Documents))
	table.Append("チャンク数", fmt.Sprintf("%d", report.Chunks))
	table.Append("スキップ", fmt.Sprintf("%d", len(report.Skipped)))
	table.Append("上限超過", fmt.Sprintf("%d", report.Oversized))
	for _, kind := range sortedKeys(report.ByKind) {
		table.Append("種別: "+string(kind), fmt.Sprintf("%d", report.ByKind[kind]))
	}
	table.Render()

	if len(report.Skipped) > 0 {
		color.New(color.FgYellow).Fprintf(w, "\nテキストが空のためスキップ: %s\n", strings.Join(report.Skipped, ", "))
	}
}

// displayChunkPreview は先頭のチャンクを表示する
func displayChunkPreview(w io.Writer, chunks []*chunking.Chunk, limit int) {
	header := color.New(color.FgCyan, color.Bold)
	for i, c := range chunks {
		if i >= limit {
			fmt.Fprintf(w, "... 残り %d 件\n", len(chunks)-limit)
			break
		}
		header.Fprintf(w, "\n[%s] %s / %s (%s, %d tokens)", c.ID, c.DocumentName, c.Header, c.Kind, c.Tokens)
		if c.Oversized {
			color.New(color.FgRed).Fprint(w, " 上限超過")
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, truncate(c.Text, 300))
	}
}

// displayStoreStats はストアの集計情報を表示する
func displayStoreStats(w io.Writer, st store.Stats) {
	table := tablewriter.NewWriter(w)
	table.Header("項目", "値")
	table.Append("ビルドID", st.BuildID)
	table.Append("埋め込みモデル", st.EmbeddingModel)
	table.Append("次元数", fmt.Sprintf("%d", st.Dimension))
	table.Append("作成日時", st.BuiltAt.Format("2006-01-02 15:04:05"))
	table.Append("文書数", fmt.Sprintf("%d", st.TotalDocuments))
	table.Append("チャンク数", fmt.Sprintf("%d", st.ChunkCount))
	table.Append("上限超過", fmt.Sprintf("%d", st.Oversized))
	table.Render()

	if len(st.ByLawType) > 0 {
		byType := tablewriter.NewWriter(w)
		byType.Header("法令種別", "チャンク数")
		for _, t := range sortedKeys(st.ByLawType) {
			byType.Append(string(t), fmt.Sprintf("%d", st.ByLawType[t]))
		}
		byType.Render()
	}
}

// displayLaws は法令の一覧を表示する
func displayLaws(w io.Writer, types []corpus.LawType, laws []store.LawSummary) {
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		color.New(color.FgBlue).Fprintf(w, "法令種別: %s\n", strings.Join(names, ", "))
	}
	if len(laws) == 0 {
		color.New(color.FgYellow).Fprintln(w, "該当する法令はありません")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("法令", "種別", "チャンク数")
	for _, l := range laws {
		table.Append(l.Name, string(l.Type), fmt.Sprintf("%d", l.Chunks))
	}
	table.Render()
}

// displayLawInfo は1法令の詳細を表示する
func displayLawInfo(w io.Writer, info store.LawInfo) {
	table := tablewriter.NewWriter(w)
	table.Header("項目", "値")
	table.Append("法令", info.Name)
	table.Append("文書ID", info.DocumentID)
	table.Append("種別", string(info.Type))
	if info.Number != "" {
		table.Append("法令番号", info.Number)
	}
	if info.AcceptanceDate != "" {
		table.Append("制定日", info.AcceptanceDate)
	}
	if info.Gazette.Date != "" || info.Gazette.Number != "" {
		table.Append("官報", strings.TrimSpace(info.Gazette.Date+" "+info.Gazette.Number))
	}
	if info.DetailURL != "" {
		table.Append("URL", info.DetailURL)
	}
	table.Append("条文数", fmt.Sprintf("%d", info.ArticleCount))
	table.Append("チャンク数", fmt.Sprintf("%d", info.ChunkCount))
	table.Append("文字数", fmt.Sprintf("%d", info.Chars))
	table.Append("単語数", fmt.Sprintf("%d", info.Words))
	table.Append("上限超過", fmt.Sprintf("%d", info.Oversized))
	for _, kind := range sortedKeys(info.ByKind) {
		table.Append("種別: "+string(kind), fmt.Sprintf("%d", info.ByKind[kind]))
	}
	table.Render()
}

// displayBrowse はフィルタに一致したチャンクを表示する
func displayBrowse(w io.Writer, chunks []*chunking.Chunk) {
	if len(chunks) == 0 {
		color.New(color.FgYellow).Fprintln(w, "該当するチャンクはありません")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "法令", "種別", "順序", "本文")
	for _, c := range chunks {
		table.Append(c.ID, c.DocumentName, string(c.Kind), fmt.Sprintf("%d", c.Ordinal), truncate(c.Text, 80))
	}
	table.Render()
}

// displaySearchResults は検索結果を表示する
func displaySearchResults(w io.Writer, query string, rewritten bool, results []search.Result) {
	if rewritten {
		color.New(color.FgBlue).Fprintf(w, "検索クエリ: %s\n", query)
	}
	if len(results) == 0 {
		color.New(color.FgYellow).Fprintln(w, "該当する条文は見つかりませんでした")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("順位", "スコア", "法令", "条文", "種別")
	for _, r := range results {
		table.Append(
			fmt.Sprintf("%d", r.Rank),
			fmt.Sprintf("%.4f", r.Score),
			r.Chunk.DocumentName,
			r.Chunk.Header,
			string(r.Chunk.DocumentType),
		)
	}
	table.Render()
}

// displayAnswer は質問応答の結果を表示する
func displayAnswer(w io.Writer, res *ask.AskResult, showSources bool) {
	switch res.Status {
	case ask.StatusFailed:
		color.New(color.FgRed).Fprintf(w, "[%s: %s]\n", res.Status, res.Reason)
	case ask.StatusDegraded:
		color.New(color.FgYellow).Fprintf(w, "[%s: %s]\n", res.Status, res.Reason)
	}

	fmt.Fprintln(w, res.Answer)

	if showSources && len(res.Matches) > 0 {
		fmt.Fprintln(w, "\n--- 参照条文 ---")
		for _, m := range res.Matches {
			fmt.Fprintf(w, "[%d] %s (%s) スコア: %.4f\n", m.Rank, m.DocumentName, m.ChunkID, m.Score)
		}
		if res.RewriteFellBack {
			color.New(color.FgYellow).Fprintln(w, "※ クエリ書き換えに失敗したため元の質問で検索しました")
		}
	}
}

// displayRunSummary は実行記録の集計を表示する
func displayRunSummary(w io.Writer, sum *sqlite.RunSummary, recent []ask.RunRecord) {
	table := tablewriter.NewWriter(w)
	table.Header("メトリクス", "値")
	table.Append("総実行数", fmt.Sprintf("%d", sum.Total))
	for _, s := range sortedKeys(sum.ByStatus) {
		table.Append("状態: "+string(s), fmt.Sprintf("%d", sum.ByStatus[s]))
	}
	for _, r := range sortedKeys(sum.ByReason) {
		table.Append("理由: "+string(r), fmt.Sprintf("%d", sum.ByReason[r]))
	}
	if sum.Total > 0 {
		table.Append("平均処理時間", sum.AvgElapsed.String())
		table.Append("書き換えフォールバック率", fmt.Sprintf("%.1f%%", sum.FallbackRate*100))
	}
	table.Render()

	if len(recent) == 0 {
		return
	}
	recentTable := tablewriter.NewWriter(w)
	recentTable.Header("日時", "状態", "件数", "質問")
	for _, rec := range recent {
		recentTable.Append(
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(rec.Status),
			fmt.Sprintf("%d", rec.ResultCount),
			truncate(rec.Question, 60),
		)
	}
	recentTable.Render()
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
