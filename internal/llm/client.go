package llm

import (
	"context"
	"encoding/json"
)

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Invoker runs a structured call: the provider is asked to answer with a
// JSON document conforming to the given schema. Providers with native
// tool-calling use it; others fall back to schema-in-prompt.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, schema json.RawMessage) (json.RawMessage, error)
}

type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcriber converts raw PCM samples into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (Transcript, error)
}
