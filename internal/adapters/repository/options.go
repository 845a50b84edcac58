package repository

import (
	"time"

	"github.com/okian/gmscan/pkg/logger"
)

// Option applies a configuration option to the TransactionStore.
type Option func(*TransactionStore)

// WithBacklogCapacity bounds the owned backlog.
func WithBacklogCapacity(capacity int) Option {
	return func(s *TransactionStore) {
		if capacity > 0 {
			s.backlogCapacity = capacity
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *TransactionStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for ID-less timestamps and adjustments.
func WithClock(now func() time.Time) Option {
	return func(s *TransactionStore) {
		if now != nil {
			s.now = now
		}
	}
}
