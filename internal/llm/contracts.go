package llm

import (
	"context"
	"errors"
)

// Structurer is the AI capability: it turns document text into a JSON document
// following the lab report shape described by the system prompt.
type Structurer interface {
	Structure(ctx context.Context, systemPrompt, documentText string) (string, error)
	// Name identifies the provider and model in logs, e.g. "openai:gpt-4o-mini".
	Name() string
}

var (
	ErrRateLimited     = errors.New("llm rate limited")
	ErrEmptyResponse   = errors.New("llm returned no content")
	ErrInvalidResponse = errors.New("llm response is not a valid lab report")
)

// Options are the generation settings shared by providers.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}
