// Package queue holds the persisted, ordered backlog of transactions that
// still need to reach the orchestrator.
//
// The backlog is append-only from the producer side. Entries leave it only
// through Remove, called after a delivery attempt, so a crash at any point
// keeps every unattempted scan on disk.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/okian/gmscan/pkg/metrics"
)

const defaultCapacity = 1000

// Backlog is the persisted pending-delivery queue.
type Backlog struct {
	mu        sync.Mutex
	store     kv.Store
	key       string
	orphanKey string
	capacity  int
	entries   []model.QueueEntry
	logger    logger.Logger
	now       func() time.Time
}

// NewBacklog loads the backlog from store. Corrupt data yields an empty backlog.
func NewBacklog(ctx context.Context, store kv.Store, opts ...Option) (*Backlog, error) {
	b := &Backlog{
		store:     store,
		key:       kv.KeyBacklog,
		orphanKey: kv.KeyBacklogOrphaned,
		capacity:  defaultCapacity,
		logger:    logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	entries, err := b.load(ctx, b.key)
	if err != nil {
		return nil, err
	}
	b.entries = entries

	metrics.UpdateBacklogCapacity(b.capacity)
	metrics.UpdateBacklogSize(len(b.entries))
	return b, nil
}

func (b *Backlog) load(ctx context.Context, key string) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	found, err := kv.GetJSON(ctx, b.store, key, &entries)
	switch {
	case err != nil && !found:
		return nil, fmt.Errorf("queue: load %s: %w", key, err)
	case err != nil:
		b.logger.Warn(ctx, "discarding unreadable backlog", logger.String("key", key), logger.Error(err))
		return nil, nil
	}
	return entries, nil
}

// Enqueue appends tx and persists the backlog. On failure the backlog is
// unchanged and the error is returned.
func (b *Backlog) Enqueue(ctx context.Context, tx model.Transaction, reason string) (model.QueueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return model.QueueEntry{}, fmt.Errorf("queue: enqueue %s: %w", tx.TokenID, ErrFull)
	}

	entry := model.QueueEntry{
		ID:          uuid.NewString(),
		Transaction: tx,
		EnqueuedAt:  b.now(),
		Reason:      reason,
	}
	next := append(b.entries[:len(b.entries):len(b.entries)], entry)
	if err := kv.SetJSON(ctx, b.store, b.key, next); err != nil {
		metrics.RecordStorageError("queue")
		return model.QueueEntry{}, fmt.Errorf("queue: enqueue %s: %w", tx.TokenID, err)
	}
	b.entries = next
	metrics.UpdateBacklogSize(len(b.entries))
	return entry, nil
}

// Snapshot returns a copy of the current entries in enqueue order.
func (b *Backlog) Snapshot() []model.QueueEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.QueueEntry(nil), b.entries...)
}

// Len returns the number of pending entries.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Capacity returns the configured bound.
func (b *Backlog) Capacity() int {
	return b.capacity
}

// Remove deletes the entries with the given IDs. Entries not listed, including
// any appended after a snapshot was taken, are kept.
func (b *Backlog) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := make([]model.QueueEntry, 0, len(b.entries))
	for _, e := range b.entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(b.entries) {
		return nil
	}
	if err := kv.SetJSON(ctx, b.store, b.key, kept); err != nil {
		metrics.RecordStorageError("queue")
		return fmt.Errorf("queue: remove: %w", err)
	}
	b.entries = kept
	metrics.UpdateBacklogSize(len(b.entries))
	return nil
}

// StashOrphan writes tx to the orphan slot. It is used before a delivery
// coordinator exists to own the main backlog.
func (b *Backlog) StashOrphan(ctx context.Context, tx model.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	orphans, err := b.load(ctx, b.orphanKey)
	if err != nil {
		return err
	}
	orphans = append(orphans, model.QueueEntry{
		ID:          uuid.NewString(),
		Transaction: tx,
		EnqueuedAt:  b.now(),
		Reason:      model.ReasonOrphaned,
	})
	if err := kv.SetJSON(ctx, b.store, b.orphanKey, orphans); err != nil {
		metrics.RecordStorageError("queue")
		return fmt.Errorf("queue: stash orphan: %w", err)
	}
	return nil
}

// Orphans returns the entries currently in the orphan slot.
func (b *Backlog) Orphans(ctx context.Context) ([]model.QueueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx, b.orphanKey)
}

// MergeOrphans appends orphaned entries whose transaction is not already
// pending, persists the backlog and only then clears the orphan slot, so a
// failure at any step leaves a state that can be merged again safely.
// It returns the number of entries added.
func (b *Backlog) MergeOrphans(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	orphans, err := b.load(ctx, b.orphanKey)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	seen := make(map[string]struct{}, len(b.entries)+len(orphans))
	for _, e := range b.entries {
		seen[identity(&e.Transaction)] = struct{}{}
	}
	next := append([]model.QueueEntry(nil), b.entries...)
	added := 0
	for _, o := range orphans {
		id := identity(&o.Transaction)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		o.Reason = model.ReasonOrphaned
		next = append(next, o)
		added++
	}

	if added > 0 {
		if err := kv.SetJSON(ctx, b.store, b.key, next); err != nil {
			metrics.RecordStorageError("queue")
			return 0, fmt.Errorf("queue: merge orphans: %w", err)
		}
		b.entries = next
		metrics.UpdateBacklogSize(len(b.entries))
	}
	if err := b.store.Delete(ctx, b.orphanKey); err != nil {
		return added, fmt.Errorf("queue: clear orphans: %w", err)
	}
	return added, nil
}

// identity is the key two pending entries share when they carry the same scan.
func identity(tx *model.Transaction) string {
	if tx.ID != "" {
		return tx.ID
	}
	return tx.TokenID + "|" + tx.TeamID + "|" + tx.Timestamp.UTC().Format(time.RFC3339Nano)
}
