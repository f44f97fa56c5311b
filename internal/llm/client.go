package llm

import "context"

// Client is the interface all chat model providers implement. The
// orchestrator depends on this rather than a concrete provider so
// tests can drive the loop with a scripted double.
type Client interface {
	// Chat sends a chat completion request with the declared tool
	// schemas and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
