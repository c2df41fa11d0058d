package llm

import (
	"context"
	"errors"
)

// ErrUpstream is returned after the retry budget for a provider call is
// exhausted.
var ErrUpstream = errors.New("llm: upstream request failed")

// Message is one role-tagged chat message. Roles: system, user, assistant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a single valid JSON value. If the
	// provider returns invalid JSON anyway, the raw string is passed
	// through and the caller applies its own fallback.
	JSONMode bool
}

// ChatClient issues chat completions.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// EmbeddingsClient produces one vector per input text, order-preserving.
type EmbeddingsClient interface {
	EmbedTexts(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Hook receives telemetry events. OnResult fires once per successful
// call, OnError once per failed attempt. A panicking hook is contained
// and must never break the request path.
type Hook func(event string, payload map[string]any)

func emit(h Hook, event string, payload map[string]any) {
	if h == nil {
		return
	}
	defer func() { _ = recover() }()
	h(event, payload)
}
