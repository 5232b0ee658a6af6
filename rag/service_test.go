package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mfalcone/study-assistant/vectorstore"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

type stubLLM struct {
	answer     string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubLLM) Generate(_ context.Context, systemPrompt, userMessage string) (string, error) {
	s.lastSystem = systemPrompt
	s.lastUser = userMessage
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type failingStore struct {
	vectorstore.Store
}

func (failingStore) Query(context.Context, []float32, int64, []int64, int) ([]vectorstore.Result, error) {
	return nil, &vectorstore.IndexError{Op: "query", Err: errors.New("index down")}
}

func seededStore(t *testing.T) *vectorstore.MemoryStore {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	err := store.Upsert(context.Background(), []vectorstore.Record{
		{OwnerID: 1, DocumentID: 10, Title: "Cell Biology", ChunkIndex: 0, Text: "Mitosis is how somatic cells divide."},
		{OwnerID: 1, DocumentID: 20, Title: "Roman History", ChunkIndex: 0, Text: "The western empire fell in 476."},
	}, [][]float32{
		{1, 0},
		{0, 1},
	})
	require.NoError(t, err)
	return store
}

func newTestService(store vectorstore.Store, embedder *stubEmbedder, client *stubLLM) *Service {
	return NewService(store, embedder, client, nil, 5, zap.NewNop())
}

func TestAnswerReturnsSourcesInRetrievalOrder(t *testing.T) {
	client := &stubLLM{answer: "Cells divide through mitosis."}
	svc := newTestService(seededStore(t), &stubEmbedder{vectors: [][]float32{{1, 0}}}, client)

	resp, err := svc.Answer(context.Background(), "How do cells divide?", 1, nil, 5)
	require.NoError(t, err)

	assert.Equal(t, "Cells divide through mitosis.", resp.Answer)
	assert.True(t, resp.ContextUsed)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, int64(10), resp.Sources[0].DocumentID)
	assert.Equal(t, "Cell Biology", resp.Sources[0].Title)
	assert.True(t, strings.HasSuffix(resp.Sources[0].Preview, "..."))
	assert.GreaterOrEqual(t, resp.Sources[0].RelevanceScore, resp.Sources[1].RelevanceScore)
}

func TestAnswerContextFormat(t *testing.T) {
	client := &stubLLM{answer: "ok"}
	svc := newTestService(seededStore(t), &stubEmbedder{vectors: [][]float32{{1, 0}}}, client)

	_, err := svc.Answer(context.Background(), "question", 1, nil, 5)
	require.NoError(t, err)

	assert.Contains(t, client.lastSystem, "Context from study materials:")
	assert.Contains(t, client.lastSystem, "Source: Cell Biology\nContent: Mitosis is how somatic cells divide.\n")
	assert.Contains(t, client.lastSystem, "\n---\n")
	assert.Equal(t, "question", client.lastUser)
}

func TestAnswerWithoutMatchesStillGenerates(t *testing.T) {
	client := &stubLLM{answer: "I don't have material on that, but here is what I know."}
	svc := newTestService(vectorstore.NewMemoryStore(), &stubEmbedder{vectors: [][]float32{{1, 0}}}, client)

	resp, err := svc.Answer(context.Background(), "Anything?", 1, nil, 5)
	require.NoError(t, err)

	assert.False(t, resp.ContextUsed)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.Answer)
	assert.NotContains(t, client.lastSystem, "Context from study materials:")
}

func TestAnswerDocumentScope(t *testing.T) {
	client := &stubLLM{answer: "scoped"}
	svc := newTestService(seededStore(t), &stubEmbedder{vectors: [][]float32{{0.5, 0.5}}}, client)

	resp, err := svc.Answer(context.Background(), "What happened?", 1, []int64{10}, 5)
	require.NoError(t, err)

	require.NotEmpty(t, resp.Sources)
	for _, src := range resp.Sources {
		assert.Equal(t, int64(10), src.DocumentID)
	}
}

func TestAnswerOwnerIsolation(t *testing.T) {
	client := &stubLLM{answer: "nothing"}
	svc := newTestService(seededStore(t), &stubEmbedder{vectors: [][]float32{{1, 0}}}, client)

	resp, err := svc.Answer(context.Background(), "How do cells divide?", 99, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.False(t, resp.ContextUsed)
}

func TestAnswerWrapsFailures(t *testing.T) {
	var genErr *GenerationError

	// Empty query.
	svc := newTestService(seededStore(t), &stubEmbedder{vectors: [][]float32{{1, 0}}}, &stubLLM{})
	_, err := svc.Answer(context.Background(), "   ", 1, nil, 5)
	require.ErrorAs(t, err, &genErr)

	// Embedding failure.
	svc = newTestService(seededStore(t), &stubEmbedder{err: errors.New("model offline")}, &stubLLM{})
	_, err = svc.Answer(context.Background(), "q", 1, nil, 5)
	require.ErrorAs(t, err, &genErr)

	// Index failure.
	svc = newTestService(failingStore{}, &stubEmbedder{vectors: [][]float32{{1, 0}}}, &stubLLM{})
	_, err = svc.Answer(context.Background(), "q", 1, nil, 5)
	require.ErrorAs(t, err, &genErr)
	var idxErr *vectorstore.IndexError
	assert.ErrorAs(t, err, &idxErr, "cause must stay reachable for logs")

	// Generation failure.
	svc = newTestService(seededStore(t), &stubEmbedder{vectors: [][]float32{{1, 0}}}, &stubLLM{err: errors.New("llm down")})
	_, err = svc.Answer(context.Background(), "q", 1, nil, 5)
	require.ErrorAs(t, err, &genErr)
}

func TestPreviewTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.Equal(t, strings.Repeat("x", 200)+"...", preview(long))
	assert.Equal(t, "short...", preview("short"))
}
