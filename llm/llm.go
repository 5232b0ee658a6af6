// Package llm wraps language-model providers behind a plain-text generation
// interface.
package llm

import (
	"context"
	"fmt"

	"github.com/mfalcone/study-assistant/config"
)

const (
	roleSystem = "system"
	roleUser   = "user"
)

// Client is the generation capability the RAG core and the summarizer
// consume. Generate returns plain text; callers needing structured output
// parse the returned string themselves.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// NewClient selects a provider implementation from configuration.
func NewClient(cfg config.Config) (Client, error) {
	switch cfg.LLM.Provider {
	case config.ProviderOllama:
		return newOllamaClient(cfg.OllamaHost, cfg.LLM.Model), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai llm selected but OPENAI_API_KEY not set")
		}
		return newOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}
}
