package ollama

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/jinford/mevzuat-rag/internal/core/llm"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	vecs     [][]float32
	err      error
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, o := range options {
		o(&m.opts)
	}
	return m.resp, m.err
}

func (m *fakeModel) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return m.vecs, m.err
}

func TestClient_GenerateCompletion(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: " kira tahliye \n"}}}}
	c := &Client{llm: fake, model: "llama3.1"}

	resp, err := c.GenerateCompletion(context.Background(), llm.CompletionRequest{
		System:      "sistem",
		Prompt:      "soru",
		Temperature: 0.3,
		MaxTokens:   500,
	})
	require.NoError(t, err)

	assert.Equal(t, "kira tahliye", resp.Content)
	assert.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, 500, fake.opts.MaxTokens)
	assert.Equal(t, "llama3.1", fake.opts.Model)
}

func TestClient_GenerateCompletionErrors(t *testing.T) {
	c := &Client{llm: &fakeModel{err: errors.New("connection refused")}, model: "m"}
	_, err := c.GenerateCompletion(context.Background(), llm.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, llm.ErrCollaboratorUnavailable)

	c = &Client{llm: &fakeModel{resp: &llms.ContentResponse{}}, model: "m"}
	_, err = c.GenerateCompletion(context.Background(), llm.CompletionRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestEmbedder_BatchEmbed(t *testing.T) {
	e := &Embedder{llm: &fakeModel{vecs: [][]float32{{1, 2}}}, model: "nomic"}

	vec, err := e.Embed(context.Background(), "MADDE 1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)

	_, err = e.BatchEmbed(context.Background(), []string{"a", "b"})
	assert.Error(t, err, "件数不一致はエラー")

	_, err = e.BatchEmbed(context.Background(), nil)
	assert.ErrorIs(t, err, llm.ErrInvalidInput)
}
