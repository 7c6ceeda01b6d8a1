package analysis

import "errors"

var (
	// ErrInvalidInput means the submission was rejected before a job was
	// created. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means no job exists for the given ID.
	ErrNotFound = errors.New("job not found")
)
