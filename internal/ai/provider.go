package ai

import (
	"context"
	"errors"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

type Message struct {
	Role    string
	Content string
}

// Provider is a chat-completion backend. Implementations must be safe for
// concurrent use across jobs.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
