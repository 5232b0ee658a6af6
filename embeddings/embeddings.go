// Package embeddings turns text into vectors via a configurable provider.
package embeddings

import (
	"context"
	"fmt"

	"github.com/mfalcone/study-assistant/config"
)

// Embedder is the embedding capability the pipeline and the RAG core consume.
// Embed must be deterministic for identical input and model version; query
// and corpus vectors have to come from the same Embedder instance.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder selects a provider implementation from configuration.
func NewEmbedder(cfg config.Config) (Embedder, error) {
	switch cfg.Embeddings.Provider {
	case config.ProviderOllama:
		return newOllamaEmbedder(cfg.OllamaHost, cfg.Embeddings.Model, cfg.Embeddings.Dimension), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai embeddings selected but OPENAI_API_KEY not set")
		}
		return newOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Embeddings.Model, cfg.Embeddings.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.Embeddings.Provider)
	}
}

func checkDimension(want, got int) error {
	if want > 0 && got != want {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", want, got)
	}
	return nil
}
