package llm

import (
	"context"
	"fmt"

	"github.com/redteam-monitor/backend/pkg/config"
)

// TextGenerator is the single capability the enrichment engine needs from a
// model provider: one prompt in, raw text out. Provider envelope differences
// stay behind the implementations.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New selects a provider implementation once at startup.
func New(cfg config.LLMConfig) (TextGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIGenerator(cfg), nil
	case "anthropic":
		return NewAnthropicGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
