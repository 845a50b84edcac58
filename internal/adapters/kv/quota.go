package kv

import (
	"context"
	"errors"
	"sync"
)

// Quota bounds the total number of value bytes written through it.
type Quota struct {
	inner Store
	max   int

	mu    sync.Mutex
	sizes map[string]int
	used  int
}

// NewQuota wraps inner with a byte limit.
func NewQuota(inner Store, maxBytes int) *Quota {
	return &Quota{inner: inner, max: maxBytes, sizes: make(map[string]int)}
}

func (q *Quota) Get(ctx context.Context, key string) ([]byte, error) {
	return q.inner.Get(ctx, key)
}

// sizeOf returns the tracked size of key, loading it from the inner store on
// first use. Caller holds q.mu.
func (q *Quota) sizeOf(ctx context.Context, key string) (int, error) {
	if n, ok := q.sizes[key]; ok {
		return n, nil
	}
	v, err := q.inner.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		v = nil
	case err != nil:
		return 0, err
	}
	q.sizes[key] = len(v)
	q.used += len(v)
	return len(v), nil
}

func (q *Quota) Set(ctx context.Context, key string, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	old, err := q.sizeOf(ctx, key)
	if err != nil {
		return persistErr("kv: quota", err)
	}
	if q.used-old+len(value) > q.max {
		return persistErr("kv: quota", ErrQuotaExceeded)
	}
	if err := q.inner.Set(ctx, key, value); err != nil {
		return err
	}
	q.used += len(value) - old
	q.sizes[key] = len(value)
	return nil
}

func (q *Quota) Delete(ctx context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.inner.Delete(ctx, key); err != nil {
		return err
	}
	q.used -= q.sizes[key]
	q.sizes[key] = 0
	return nil
}

// Used returns the tracked byte total.
func (q *Quota) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

func (q *Quota) Close() error {
	return q.inner.Close()
}
