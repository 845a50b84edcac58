package model

import "time"

// Reasons a transaction ends up in the backlog.
const (
	ReasonOffline     = "offline"
	ReasonUnconfirmed = "unconfirmed"
	ReasonOrphaned    = "orphaned"
)

// QueueEntry is a transaction awaiting delivery.
type QueueEntry struct {
	ID          string      `json:"id"`
	Transaction Transaction `json:"transaction"`
	EnqueuedAt  time.Time   `json:"enqueuedAt"`
	Reason      string      `json:"reason"`
}
