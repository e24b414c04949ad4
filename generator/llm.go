package generator

import "context"

// LLMClient is a chat completion backend.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Streamer is implemented by clients that can deliver a reply incrementally.
// onDelta is called for every text fragment in arrival order; the full reply
// is returned once the stream ends.
type Streamer interface {
	Stream(ctx context.Context, prompt Prompt, onDelta func(string)) (string, error)
}

// LLMSettings is the provider configuration shared by the client constructors.
type LLMSettings struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}
