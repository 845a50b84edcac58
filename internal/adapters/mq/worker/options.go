package worker

import (
	"time"

	"github.com/okian/gmscan/pkg/logger"
)

// Option applies a configuration option to the FlushWorker.
type Option func(*FlushWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *FlushWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *FlushWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRetryInterval sets how often a non-empty backlog is retried while
// connected. Zero disables periodic retries.
func WithRetryInterval(d time.Duration) Option {
	return func(w *FlushWorker) {
		if d >= 0 {
			w.retryInterval = d
		}
	}
}
