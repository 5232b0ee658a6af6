// Package rag orchestrates retrieval-augmented generation: owner-scoped
// vector retrieval, context assembly, generation, and source attribution.
package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mfalcone/study-assistant/embeddings"
	"github.com/mfalcone/study-assistant/llm"
	"github.com/mfalcone/study-assistant/vectorstore"
)

const (
	defaultMaxSources = 5
	previewLength     = 200

	systemPrompt = "You are a helpful study assistant. You help students learn by " +
		"answering questions based on their study materials. When provided with " +
		"context from documents, use that information to give accurate and helpful " +
		"answers. If the context doesn't contain relevant information, say so " +
		"clearly. Always be encouraging and supportive in your responses."
)

// GenerationError is the umbrella error for any failure inside the RAG
// pipeline. It is treated as client-correctable: the user may retry or
// rephrase. The underlying cause is preserved for logs.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate RAG response: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// InsightProvider enriches sources with knowledge-graph context. It is
// optional; retrieval works without one.
type InsightProvider interface {
	DocumentInsights(ctx context.Context, ownerID int64, documentIDs []int64) (map[int64]Insight, error)
}

// Service answers queries grounded in the owner's indexed documents. It
// holds no mutable state and is safe for concurrent use as long as its
// ports are.
type Service struct {
	vectors    vectorstore.Store
	embedder   embeddings.Embedder
	llm        llm.Client
	insights   InsightProvider
	maxSources int
	logger     *zap.Logger
}

func NewService(
	vectors vectorstore.Store,
	embedder embeddings.Embedder,
	llmClient llm.Client,
	insights InsightProvider,
	maxSources int,
	logger *zap.Logger,
) *Service {
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		vectors:    vectors,
		embedder:   embedder,
		llm:        llmClient,
		insights:   insights,
		maxSources: maxSources,
		logger:     logger,
	}
}

// Answer runs the full pipeline for one query. documentScope restricts
// retrieval to the given document ids when non-empty; maxSources <= 0 falls
// back to the configured default. No retries happen here; callers own
// timeout and retry policy via ctx.
func (s *Service) Answer(ctx context.Context, query string, ownerID int64, documentScope []int64, maxSources int) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, &GenerationError{Err: fmt.Errorf("query cannot be empty")}
	}
	if s.embedder == nil || s.vectors == nil || s.llm == nil {
		return Response{}, &GenerationError{Err: fmt.Errorf("service ports not configured")}
	}
	if maxSources <= 0 {
		maxSources = s.maxSources
	}

	queryVectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Response{}, &GenerationError{Err: fmt.Errorf("embed query: %w", err)}
	}
	if len(queryVectors) == 0 {
		return Response{}, &GenerationError{Err: fmt.Errorf("embedder returned no vectors")}
	}

	hits, err := s.vectors.Query(ctx, queryVectors[0], ownerID, documentScope, maxSources)
	if err != nil {
		return Response{}, &GenerationError{Err: fmt.Errorf("vector search: %w", err)}
	}

	contextText := buildContext(hits)
	if contextText == "" {
		s.logger.Debug("no retrieval context for query, generation runs without it",
			zap.Int64("owner_id", ownerID))
	}

	prompt := systemPrompt
	if contextText != "" {
		prompt += "\n\nContext from study materials:\n" + contextText
	}

	answer, err := s.llm.Generate(ctx, prompt, query)
	if err != nil {
		return Response{}, &GenerationError{Err: fmt.Errorf("llm generate: %w", err)}
	}

	sources := buildSources(hits)
	s.attachInsights(ctx, ownerID, sources)

	return Response{
		Answer:      strings.TrimSpace(answer),
		Sources:     sources,
		ContextUsed: len(hits) > 0,
	}, nil
}

// buildContext renders retrieved chunks in ranked order as
// "Source: {title}\nContent: {content}\n" blocks joined by "\n---\n".
func buildContext(hits []vectorstore.Result) string {
	if len(hits) == 0 {
		return ""
	}
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, fmt.Sprintf("Source: %s\nContent: %s\n", hit.Title, hit.Text))
	}
	return strings.Join(parts, "\n---\n")
}

func buildSources(hits []vectorstore.Result) []Source {
	sources := make([]Source, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, Source{
			DocumentID:     hit.DocumentID,
			Title:          hit.Title,
			RelevanceScore: hit.Score,
			Preview:        preview(hit.Text),
		})
	}
	return sources
}

// attachInsights is best-effort: a graph failure degrades the response, it
// never fails it.
func (s *Service) attachInsights(ctx context.Context, ownerID int64, sources []Source) {
	if s.insights == nil || len(sources) == 0 {
		return
	}

	seen := make(map[int64]struct{}, len(sources))
	ids := make([]int64, 0, len(sources))
	for _, src := range sources {
		if _, ok := seen[src.DocumentID]; ok {
			continue
		}
		seen[src.DocumentID] = struct{}{}
		ids = append(ids, src.DocumentID)
	}

	insights, err := s.insights.DocumentInsights(ctx, ownerID, ids)
	if err != nil {
		s.logger.Warn("document insights unavailable", zap.Error(err))
		return
	}
	for i := range sources {
		if insight, ok := insights[sources[i].DocumentID]; ok {
			copied := insight
			sources[i].Insight = &copied
		}
	}
}

func preview(text string) string {
	if len(text) <= previewLength {
		return text + "..."
	}
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
