package document

import (
	"context"
	"errors"
)

var (
	// ErrUnreadable means the file could not be opened or parsed at all.
	ErrUnreadable = errors.New("document unreadable")
	// ErrEmpty means the file parsed but contained no extractable text.
	ErrEmpty = errors.New("document has no readable content")
)

// Reader extracts plain text from an uploaded document.
// Implementations must be safe for concurrent use.
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
}
