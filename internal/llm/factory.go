package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyonlabs/consilium/internal/config"
)

// NewClient builds the structured-invocation client for the configured
// provider. The Transcriber is nil when the provider has no speech endpoint.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Invoker, Transcriber, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.TranscriptionModel, cfg.BaseURL)
		return c, c, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil

	case "claude":
		c := NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
		return c, nil, nil

	case "ollama":
		// Ollama speaks the OpenAI-compatible API; routing through the
		// OpenAI client keeps tool calls and usage tracking working.
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama" // required by the client, ignored by Ollama
		}
		c := NewOpenAIClient(apiKey, cfg.Model, cfg.TranscriptionModel, baseURL)
		return c, c, nil

	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
