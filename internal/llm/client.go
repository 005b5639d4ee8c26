package llm

import "context"

// Client is the backend-neutral interface to a text-completion and
// embedding provider. Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a single system+user exchange and returns the
	// generated text.
	Complete(ctx context.Context, systemPrompt, userInput string) (string, error)
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float64, error)
}
