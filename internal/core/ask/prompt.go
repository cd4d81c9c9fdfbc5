package ask

import (
	"fmt"
	"strings"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/search"
)

const (
	// NoMatchMarker は検索結果が空のときにコンテキストの代わりに渡す明示マーカー
	NoMatchMarker = "[İLGİLİ MEVZUAT BULUNAMADI]"

	// TruncationMarker はコンテキストを切り詰めたことを示す
	TruncationMarker = "[Metin kısaltıldı]"
)

// 利用者に返す固定メッセージ。内部エラーの詳細は含めない
const (
	MessageInvalidQuestion = "Lütfen geçerli bir hukuki soru girin."

	MessageInvalidTopK = "Sonuç sayısı (top_k) pozitif bir tam sayı olmalıdır."

	MessageRetrievalFailed = "🏛️ **Hukuki Değerlendirme**\n\n" +
		"Üzgünüm, şu anda mevzuat veritabanında arama yapılamıyor. " +
		"Lütfen birkaç dakika sonra tekrar deneyin."

	MessageSynthesisFailed = "🏛️ **Hukuki Değerlendirme**\n\n" +
		"Üzgünüm, şu anda teknik bir sorun nedeniyle detaylı hukuki analiz yapamıyorum. " +
		"Lütfen sorunuzu daha sonra tekrar sorun veya bir hukuk uzmanına danışın."

	disclaimer = "⚖️ Bu değerlendirme genel bilgilendirme amaçlıdır ve hukuki danışmanlık yerine geçmez."
)

// synthesisSystemPrompt は回答生成モデルへの固定指示
const synthesisSystemPrompt = `Sen Türk mevzuatı konusunda uzman bir hukuk analistisin.
Sana bir kullanıcı sorusu ve mevzuat veritabanından bulunan ilgili metinler verilecek.

Kurallar:
- Yalnızca verilen mevzuat metinlerine dayanarak cevap ver; metinlerde olmayan bilgiyi uydurma.
- Dayandığın kanun adını ve madde numarasını açıkça belirt.
- Bağlamda "` + NoMatchMarker + `" ifadesi varsa, ilgili mevzuat bulunamadığını açıkça söyle ve kullanıcıyı bir hukuk uzmanına yönlendir.
- Cevabını "🏛️ **Hukuki Değerlendirme**" başlığıyla başlat ve sade bir Türkçe kullan.
- Cevabın sonunda bunun hukuki danışmanlık olmadığını hatırlat.`

// TokenCounter はトークン数の計測と切り詰めを行う
type TokenCounter interface {
	CountTokens(text string) int
	TrimToTokenLimit(text string, limit int) string
}

// PromptInput はプロンプト構築の入力
type PromptInput struct {
	Question         string
	RewrittenQuery   string
	Results          []search.Result
	MaxContextTokens int
}

// BuildPrompt は回答生成用のプロンプトを構築し、実際にコンテキストへ含めた結果を返す
// 結果は順位順に詰め、上限を超える分は含めない。先頭の1件だけで上限を超える場合は切り詰める
func BuildPrompt(in PromptInput, tokens TokenCounter) (string, []search.Result) {
	var sb strings.Builder

	sb.WriteString("KULLANICI SORUSU:\n")
	sb.WriteString(in.Question)
	sb.WriteString("\n\n")
	if in.RewrittenQuery != "" && in.RewrittenQuery != in.Question {
		sb.WriteString("OPTİMİZE EDİLMİŞ ARAMA:\n")
		sb.WriteString(in.RewrittenQuery)
		sb.WriteString("\n\n")
	}

	sb.WriteString("İLGİLİ MEVZUAT:\n")
	if len(in.Results) == 0 {
		sb.WriteString(NoMatchMarker)
		sb.WriteString("\n")
		return sb.String(), nil
	}

	used := make([]search.Result, 0, len(in.Results))
	remaining := in.MaxContextTokens
	for _, r := range in.Results {
		block := formatBlock(len(used)+1, r)
		n := tokens.CountTokens(block)

		if in.MaxContextTokens > 0 && n > remaining {
			if len(used) == 0 {
				limit := max(remaining-tokens.CountTokens(TruncationMarker)-1, 0)
				sb.WriteString(tokens.TrimToTokenLimit(block, limit))
				sb.WriteString("\n")
				sb.WriteString(TruncationMarker)
				sb.WriteString("\n")
				used = append(used, r)
			}
			break
		}

		sb.WriteString(block)
		remaining -= n
		used = append(used, r)
	}

	return sb.String(), used
}

func formatBlock(n int, r search.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s (%s)", n, r.Chunk.DocumentName, r.Chunk.DocumentType)
	if r.Chunk.Kind == chunking.KindArticle {
		sb.WriteString(" - madde metni")
	}
	fmt.Fprintf(&sb, " - Alaka: %.3f\n", r.Score)
	sb.WriteString(r.Chunk.EmbeddingText())
	sb.WriteString("\n\n")
	return sb.String()
}

// synthesisFailureAnswer は回答生成に失敗した場合の代替回答を作る
// 検索で見つかった法令名だけは利用者に示す
func synthesisFailureAnswer(used []search.Result) string {
	if len(used) == 0 {
		return MessageSynthesisFailed
	}

	var sb strings.Builder
	sb.WriteString(MessageSynthesisFailed)
	sb.WriteString("\n\nSorunuzla ilgili olabilecek mevzuat:\n")
	seen := make(map[string]struct{}, len(used))
	for _, r := range used {
		if _, ok := seen[r.Chunk.DocumentName]; ok {
			continue
		}
		seen[r.Chunk.DocumentName] = struct{}{}
		fmt.Fprintf(&sb, "- %s\n", r.Chunk.DocumentName)
	}
	sb.WriteString("\n")
	sb.WriteString(disclaimer)
	return sb.String()
}
