// Package llm is the only place that knows about the remote completion
// provider. It exposes a one-call contract (prompt in, completion with token
// usage out), classifies provider failures into retryable and fatal kinds,
// and carries the centralized model rate table used for cost accounting.
package llm

import "context"

// CompletionRequest is one templated call to the provider. The deadline
// travels on the context.
type CompletionRequest struct {
	System    string
	User      string
	Model     string
	MaxTokens int
}

// Completion is the provider's answer plus its token accounting.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input + output tokens.
func (c *Completion) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// CompletionProvider adapts an external LLM. Implementations classify
// failures as *ProviderError; any other error is infrastructure.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
