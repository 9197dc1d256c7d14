package llm

import "context"

// Message is one role-tagged turn sent to the backend
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Backend is a chat completion service
type Backend interface {
	// Chat sends messages and returns the full response content
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// ChatStream sends messages and returns the response as a lazily decoded stream.
	// The stream stops when ctx is cancelled; the caller must Close it.
	ChatStream(ctx context.Context, model string, messages []Message) (*Stream, error)
}
