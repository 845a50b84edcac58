package queue

import "errors"

// Sentinel errors for backlog operations.
var (
	ErrFull   = errors.New("backlog full")
	ErrClosed = errors.New("backlog closed")
)
