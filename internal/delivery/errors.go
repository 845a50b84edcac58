package delivery

import "errors"

// Sentinel errors for delivery operations.
var (
	ErrAckTimeout      = errors.New("acknowledgement timed out")
	ErrBatchAckTimeout = errors.New("batch acknowledgement timed out")
	ErrNoBatchPoster   = errors.New("bulk endpoint not configured")
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrEmptyBatch      = errors.New("empty batch")
)
