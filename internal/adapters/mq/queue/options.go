package queue

import "github.com/okian/gmscan/pkg/logger"

// Option applies a configuration option to the Backlog.
type Option func(*Backlog)

// WithCapacity sets the maximum number of pending entries.
func WithCapacity(capacity int) Option {
	return func(b *Backlog) {
		if capacity > 0 {
			b.capacity = capacity
		}
	}
}

// WithLogger sets the logger used for load warnings.
func WithLogger(l logger.Logger) Option {
	return func(b *Backlog) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithKeys overrides the main and orphan storage keys.
func WithKeys(main, orphaned string) Option {
	return func(b *Backlog) {
		if main != "" {
			b.key = main
		}
		if orphaned != "" {
			b.orphanKey = orphaned
		}
	}
}
