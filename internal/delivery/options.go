package delivery

import (
	"time"

	"github.com/okian/gmscan/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithAckTimeout bounds the wait for a transaction:result.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

// WithBatchAckTimeout bounds the wait for a batch:ack.
func WithBatchAckTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.batchAckTimeout = d
		}
	}
}

// WithBatchPoster enables the bulk protocol.
func WithBatchPoster(p BatchPoster) Option {
	return func(c *Coordinator) {
		c.poster = p
	}
}

// WithDeviceID sets the prefix of generated batch IDs.
func WithDeviceID(id string) Option {
	return func(c *Coordinator) {
		if id != "" {
			c.deviceID = id
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}
