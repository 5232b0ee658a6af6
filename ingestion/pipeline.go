package ingestion

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mfalcone/study-assistant/chunker"
	"github.com/mfalcone/study-assistant/embeddings"
	"github.com/mfalcone/study-assistant/llm"
	"github.com/mfalcone/study-assistant/store"
	"github.com/mfalcone/study-assistant/vectorstore"
)

// ErrEmptyContent reports that a document's extracted text is empty after
// normalization.
var ErrEmptyContent = errors.New("document has no extractable content")

// DocumentStore is the relational surface the pipeline writes through.
type DocumentStore interface {
	SetStatus(ctx context.Context, id int64, status store.Status) error
	CompleteIngestion(ctx context.Context, id int64, content, summary string, chunks []chunker.Chunk) error
}

// GraphSyncer mirrors document metadata into the knowledge graph.
type GraphSyncer interface {
	SyncDocument(ctx context.Context, doc GraphDocument) error
}

// GraphDocument is the metadata handed to a GraphSyncer.
type GraphDocument struct {
	ID         int64
	OwnerID    int64
	Title      string
	ChunkCount int
	Topics     []string
}

// Pipeline turns raw document text into indexed, queryable chunks. A failed
// run records status failed and leaves no chunk rows behind.
type Pipeline struct {
	docs         DocumentStore
	vectors      vectorstore.Store
	embedder     embeddings.Embedder
	llm          llm.Client
	graph        GraphSyncer
	chunkSize    int
	chunkOverlap int
	logger       *zap.Logger
}

func NewPipeline(docs DocumentStore, vectors vectorstore.Store, embedder embeddings.Embedder, llmClient llm.Client, graph GraphSyncer, chunkSize, chunkOverlap int, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		docs:         docs,
		vectors:      vectors,
		embedder:     embedder,
		llm:          llmClient,
		graph:        graph,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// ProcessDocument extracts a stored file and ingests it. Any failure is
// reflected in the document's status before it is returned.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc store.Document) error {
	if err := p.docs.SetStatus(ctx, doc.ID, store.StatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	text, err := ExtractFile(doc.FilePath, doc.FileType)
	if err != nil {
		if statusErr := p.docs.SetStatus(ctx, doc.ID, store.StatusFailed); statusErr != nil {
			p.logger.Error("record failed status", zap.Int64("document_id", doc.ID), zap.Error(statusErr))
		}
		return fmt.Errorf("extract %s: %w", doc.Filename, err)
	}

	return p.Ingest(ctx, doc.ID, doc.OwnerID, text, doc.Title)
}

// Ingest chunks, embeds, and indexes rawText for a document. The status is
// written to failed before any error propagates, so callers never observe a
// document stuck in processing.
func (p *Pipeline) Ingest(ctx context.Context, documentID, ownerID int64, rawText, title string) (err error) {
	defer func() {
		if err == nil {
			return
		}
		if statusErr := p.docs.SetStatus(ctx, documentID, store.StatusFailed); statusErr != nil {
			p.logger.Error("record failed status", zap.Int64("document_id", documentID), zap.Error(statusErr))
		}
	}()

	content := chunker.Normalize(rawText)
	if content == "" {
		return ErrEmptyContent
	}

	chunks, err := chunker.Split(content, p.chunkSize, p.chunkOverlap)
	if err != nil {
		return fmt.Errorf("chunk document %d: %w", documentID, err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed document %d: %w", documentID, err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			OwnerID:    ownerID,
			DocumentID: documentID,
			Title:      title,
			ChunkIndex: c.Index,
			Text:       c.Text,
		}
	}
	if err := p.vectors.Upsert(ctx, records, vectors); err != nil {
		return fmt.Errorf("index document %d: %w", documentID, err)
	}

	summary := p.summarize(ctx, content)

	if err := p.docs.CompleteIngestion(ctx, documentID, content, summary, chunks); err != nil {
		return fmt.Errorf("complete ingestion of document %d: %w", documentID, err)
	}

	p.syncGraph(ctx, GraphDocument{
		ID:         documentID,
		OwnerID:    ownerID,
		Title:      title,
		ChunkCount: len(chunks),
		Topics:     extractTopics(rawText),
	})

	p.logger.Info("document ingested",
		zap.Int64("document_id", documentID),
		zap.Int64("owner_id", ownerID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// summarize is best effort; ingestion succeeds without a summary.
func (p *Pipeline) summarize(ctx context.Context, content string) string {
	if p.llm == nil {
		return ""
	}
	excerpt := content
	if len(excerpt) > 4000 {
		excerpt = excerpt[:4000]
	}
	summary, err := p.llm.Generate(ctx,
		"You are a helpful assistant that writes concise summaries of study material.",
		"Summarize the following document in 2-3 sentences:\n\n"+excerpt)
	if err != nil {
		p.logger.Warn("summary generation failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(summary)
}

// syncGraph is best effort; a graph outage never fails an ingest.
func (p *Pipeline) syncGraph(ctx context.Context, doc GraphDocument) {
	if p.graph == nil {
		return
	}
	if err := p.graph.SyncDocument(ctx, doc); err != nil {
		p.logger.Warn("graph sync failed", zap.Int64("document_id", doc.ID), zap.Error(err))
	}
}

var headingPattern = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)

// extractTopics pulls markdown headings out of the raw (pre-normalization)
// text to use as graph topics.
func extractTopics(rawText string) []string {
	matches := headingPattern.FindAllStringSubmatch(rawText, 10)
	topics := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		topic := strings.TrimSpace(strings.Trim(m[1], "# "))
		if topic == "" {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}
