package domain

import "context"

// Provider is the generative-text capability the pipeline depends on.
// Implementations wrap a concrete LLM API behind a single completion call.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
	Healthy(ctx context.Context) error
}

// CompletionRequest is one prompt pair with its token/temperature budget.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}
