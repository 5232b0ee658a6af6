package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfalcone/study-assistant/chunker"
	"github.com/mfalcone/study-assistant/store"
	"github.com/mfalcone/study-assistant/vectorstore"
)

type stubDocs struct {
	statuses     map[int64]store.Status
	completed    map[int64][]chunker.Chunk
	content      map[int64]string
	summary      map[int64]string
	completeFail error
}

func newStubDocs() *stubDocs {
	return &stubDocs{
		statuses:  make(map[int64]store.Status),
		completed: make(map[int64][]chunker.Chunk),
		content:   make(map[int64]string),
		summary:   make(map[int64]string),
	}
}

func (s *stubDocs) SetStatus(_ context.Context, id int64, status store.Status) error {
	s.statuses[id] = status
	return nil
}

func (s *stubDocs) CompleteIngestion(_ context.Context, id int64, content, summary string, chunks []chunker.Chunk) error {
	if s.completeFail != nil {
		return s.completeFail
	}
	s.statuses[id] = store.StatusCompleted
	s.completed[id] = chunks
	s.content[id] = content
	s.summary[id] = summary
	return nil
}

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1, 0}
	}
	return vectors, nil
}

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Generate(_ context.Context, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type failingVectors struct {
	vectorstore.Store
}

func (f *failingVectors) Upsert(context.Context, []vectorstore.Record, [][]float32) error {
	return &vectorstore.IndexError{Op: "upsert", Err: errors.New("connection refused")}
}

type stubGraph struct {
	synced []GraphDocument
	err    error
}

func (s *stubGraph) SyncDocument(_ context.Context, doc GraphDocument) error {
	if s.err != nil {
		return s.err
	}
	s.synced = append(s.synced, doc)
	return nil
}

func TestIngestEmptyContentFails(t *testing.T) {
	docs := newStubDocs()
	p := NewPipeline(docs, vectorstore.NewMemoryStore(), &stubEmbedder{}, nil, nil, 1000, 200, nil)

	err := p.Ingest(context.Background(), 1, 7, "   \n\t  ", "Blank")

	require.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, store.StatusFailed, docs.statuses[1])
}

func TestIngestSuccess(t *testing.T) {
	docs := newStubDocs()
	vectors := vectorstore.NewMemoryStore()
	graph := &stubGraph{}
	p := NewPipeline(docs, vectors, &stubEmbedder{}, &stubLLM{reply: " A short summary. "}, graph, 40, 10, nil)

	text := "# Photosynthesis\n\nPlants convert light. Chlorophyll absorbs photons. Sugar is produced. Oxygen escapes."
	err := p.Ingest(context.Background(), 42, 7, text, "Biology Notes")

	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, docs.statuses[42])
	assert.Equal(t, "A short summary.", docs.summary[42])

	chunks := docs.completed[42]
	require.NotEmpty(t, chunks)
	assert.Equal(t, len(chunks), vectors.Len())

	require.Len(t, graph.synced, 1)
	assert.Equal(t, int64(42), graph.synced[0].ID)
	assert.Equal(t, int64(7), graph.synced[0].OwnerID)
	assert.Equal(t, len(chunks), graph.synced[0].ChunkCount)
	assert.Equal(t, []string{"Photosynthesis"}, graph.synced[0].Topics)
}

func TestIngestEmbeddingFailureMarksFailed(t *testing.T) {
	docs := newStubDocs()
	p := NewPipeline(docs, vectorstore.NewMemoryStore(), &stubEmbedder{err: errors.New("model not loaded")}, nil, nil, 1000, 200, nil)

	err := p.Ingest(context.Background(), 3, 7, "Some real content here.", "Notes")

	require.Error(t, err)
	assert.Equal(t, store.StatusFailed, docs.statuses[3])
	assert.Empty(t, docs.completed)
}

func TestIngestIndexFailureMarksFailed(t *testing.T) {
	docs := newStubDocs()
	p := NewPipeline(docs, &failingVectors{}, &stubEmbedder{}, nil, nil, 1000, 200, nil)

	err := p.Ingest(context.Background(), 4, 7, "Some real content here.", "Notes")

	require.Error(t, err)
	var indexErr *vectorstore.IndexError
	assert.ErrorAs(t, err, &indexErr)
	assert.Equal(t, store.StatusFailed, docs.statuses[4])
	assert.Empty(t, docs.completed)
}

func TestIngestCompleteFailureMarksFailed(t *testing.T) {
	docs := newStubDocs()
	docs.completeFail = errors.New("tx aborted")
	p := NewPipeline(docs, vectorstore.NewMemoryStore(), &stubEmbedder{}, nil, nil, 1000, 200, nil)

	err := p.Ingest(context.Background(), 5, 7, "Some real content here.", "Notes")

	require.Error(t, err)
	assert.Equal(t, store.StatusFailed, docs.statuses[5])
}

func TestIngestIsIdempotent(t *testing.T) {
	docs := newStubDocs()
	vectors := vectorstore.NewMemoryStore()
	p := NewPipeline(docs, vectors, &stubEmbedder{}, nil, nil, 40, 10, nil)

	text := "First sentence here. Second sentence here. Third sentence here."
	require.NoError(t, p.Ingest(context.Background(), 9, 7, text, "Notes"))
	first := vectors.Len()
	require.NoError(t, p.Ingest(context.Background(), 9, 7, text, "Notes"))

	assert.Equal(t, first, vectors.Len())
	assert.Equal(t, store.StatusCompleted, docs.statuses[9])
}

func TestIngestSummaryFailureIsNonFatal(t *testing.T) {
	docs := newStubDocs()
	p := NewPipeline(docs, vectorstore.NewMemoryStore(), &stubEmbedder{}, &stubLLM{err: errors.New("timeout")}, nil, 1000, 200, nil)

	err := p.Ingest(context.Background(), 6, 7, "Some real content here.", "Notes")

	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, docs.statuses[6])
	assert.Equal(t, "", docs.summary[6])
}

func TestIngestGraphFailureIsNonFatal(t *testing.T) {
	docs := newStubDocs()
	p := NewPipeline(docs, vectorstore.NewMemoryStore(), &stubEmbedder{}, nil, &stubGraph{err: errors.New("neo4j down")}, 1000, 200, nil)

	err := p.Ingest(context.Background(), 8, 7, "Some real content here.", "Notes")

	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, docs.statuses[8])
}

func TestExtractTopicsDedupes(t *testing.T) {
	text := "# Intro\nbody\n## Details\nbody\n# Intro\n### Deep Dive\n"
	assert.Equal(t, []string{"Intro", "Details", "Deep Dive"}, extractTopics(text))
}

func TestDetectFileType(t *testing.T) {
	assert.Equal(t, ".pdf", DetectFileType("/tmp/x/notes.PDF"))
	assert.Equal(t, ".md", DetectFileType("readme.md"))
	assert.Equal(t, "", DetectFileType("archive"))
}
