package providers

import "context"

type Turn struct {
	Role string
	Text string
}

type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	History      []Turn
	MaxTokens    int
	Temperature  float64
}

// Provider streams incremental model output. emit is called once per chunk,
// in upstream order, from a single goroutine; if emit returns an error the
// stream is abandoned and that error is returned.
type Provider interface {
	ChatStream(ctx context.Context, req ChatRequest, emit func(chunk string) error) error
}
