package ask

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jinford/mevzuat-rag/internal/core/chunking"
	"github.com/jinford/mevzuat-rag/internal/core/corpus"
	"github.com/jinford/mevzuat-rag/internal/core/search"
)

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func (wordCounter) TrimToTokenLimit(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ")
}

func result(id, name, text string, rank int) search.Result {
	return search.Result{
		Chunk: &chunking.Chunk{
			ID:           id,
			DocumentID:   id,
			DocumentName: name,
			DocumentType: corpus.LawTypeKanun,
			Kind:         chunking.KindArticle,
			Text:         text,
		},
		Score: 0.9,
		Rank:  rank,
	}
}

func TestBuildPrompt_NoMatchMarker(t *testing.T) {
	prompt, used := BuildPrompt(PromptInput{Question: "soru", RewrittenQuery: "soru"}, wordCounter{})

	assert.Empty(t, used)
	assert.Contains(t, prompt, NoMatchMarker)
	assert.NotContains(t, prompt, "OPTİMİZE EDİLMİŞ ARAMA")
}

func TestBuildPrompt_PacksWithinBudget(t *testing.T) {
	results := []search.Result{
		result("a", "İş Kanunu", "MADDE 17 - bildirim süreleri", 1),
		result("b", "Türk Borçlar Kanunu", "MADDE 438 - hizmet sözleşmesi", 2),
		result("c", "Sendikalar Kanunu", strings.Repeat("uzun ", 50), 3),
	}
	block0 := wordCounter{}.CountTokens(formatBlock(1, results[0]))
	block1 := wordCounter{}.CountTokens(formatBlock(2, results[1]))

	prompt, used := BuildPrompt(PromptInput{
		Question:         "ihbar süresi",
		RewrittenQuery:   "iş sözleşmesi fesih bildirim süresi",
		Results:          results,
		MaxContextTokens: block0 + block1 + 5,
	}, wordCounter{})

	assert.Len(t, used, 2)
	assert.Contains(t, prompt, "İş Kanunu")
	assert.Contains(t, prompt, "Türk Borçlar Kanunu")
	assert.NotContains(t, prompt, "Sendikalar Kanunu")
	assert.Contains(t, prompt, "OPTİMİZE EDİLMİŞ ARAMA")
	assert.NotContains(t, prompt, NoMatchMarker)
}

func TestBuildPrompt_TruncatesSingleOversizedResult(t *testing.T) {
	results := []search.Result{result("a", "İş Kanunu", strings.Repeat("kelime ", 100), 1)}

	prompt, used := BuildPrompt(PromptInput{Question: "soru", Results: results, MaxContextTokens: 20}, wordCounter{})

	assert.Len(t, used, 1)
	assert.Contains(t, prompt, TruncationMarker)
	assert.Less(t, strings.Count(prompt, "kelime"), 100)
}

func TestSynthesisFailureAnswer(t *testing.T) {
	assert.Equal(t, MessageSynthesisFailed, synthesisFailureAnswer(nil))

	answer := synthesisFailureAnswer([]search.Result{
		result("a", "İş Kanunu", "x", 1),
		result("b", "İş Kanunu", "y", 2),
	})
	assert.True(t, strings.HasPrefix(answer, MessageSynthesisFailed))
	assert.Equal(t, 1, strings.Count(answer, "- İş Kanunu"))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateReceived, StateRewriting))
	assert.True(t, CanTransition(StateSynthesizing, StateCompleted))
	assert.True(t, CanTransition(StateRetrieving, StateFailed))
	assert.False(t, CanTransition(StateReceived, StateSynthesizing))
	assert.False(t, CanTransition(StateCompleted, StateFailed))
	assert.True(t, StateFailed.IsTerminal())
}
