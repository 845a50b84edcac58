// Package worker drives backlog replay from connection-state changes.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/gmscan/internal/delivery"
	"github.com/okian/gmscan/pkg/logger"
)

const defaultRetryInterval = 30 * time.Second

// Flusher replays the backlog.
type Flusher interface {
	Flush(ctx context.Context) (delivery.FlushReport, error)
}

// Connection reports live channel state.
type Connection interface {
	Connected() bool
	States() <-chan bool
}

// Pending reports how much is waiting in the backlog.
type Pending interface {
	Len() int
}

// Worker runs until its context ends or it is shut down.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker, waiting for an in-progress flush.
	Shutdown(ctx context.Context) error
}

// FlushWorker flushes on every reconnect, and periodically while connected
// and the backlog is not empty.
type FlushWorker struct {
	conn          Connection
	flusher       Flusher
	pending       Pending
	name          string
	retryInterval time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewFlushWorker creates a worker with configuration options.
func NewFlushWorker(conn Connection, flusher Flusher, pending Pending, opts ...Option) *FlushWorker {
	w := &FlushWorker{
		conn:          conn,
		flusher:       flusher,
		pending:       pending,
		name:          "flush-worker",
		retryInterval: defaultRetryInterval,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *FlushWorker) Run(ctx context.Context) {
	defer close(w.done)

	var tick <-chan time.Time
	if w.retryInterval > 0 {
		ticker := time.NewTicker(w.retryInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// A connection may already be up before the worker starts.
	if w.conn.Connected() {
		w.flush(ctx, "startup")
	}

	states := w.conn.States()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case up, ok := <-states:
			if !ok {
				return
			}
			if up {
				w.flush(ctx, "reconnect")
			}
		case <-tick:
			if w.conn.Connected() && w.pending.Len() > 0 {
				w.flush(ctx, "retry")
			}
		}
	}
}

func (w *FlushWorker) flush(ctx context.Context, trigger string) {
	report, err := w.flusher.Flush(ctx)
	if err != nil {
		w.logger.Error(ctx, "backlog flush failed", logger.String("trigger", trigger), logger.Error(err))
		return
	}
	if report.Skipped || report.Attempted == 0 {
		return
	}
	w.logger.Info(ctx, "backlog flushed",
		logger.String("trigger", trigger),
		logger.Int("delivered", report.Delivered),
		logger.Int("failed", report.Failed),
		logger.Int("remaining", report.Remaining))
}

// Shutdown gracefully stops the worker.
func (w *FlushWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

var _ Worker = (*FlushWorker)(nil)
