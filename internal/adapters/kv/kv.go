// Package kv provides the byte-oriented key-value store that backs every
// persisted collection on the device.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys used by the device.
const (
	KeyBacklog             = "backlog"
	KeyBacklogOrphaned     = "backlog:orphaned"
	KeyClaimedTokens       = "claimed_tokens"
	KeyTransactions        = "transactions"
	KeyScoresAuthoritative = "scores:authoritative"
	KeyScoresAdjustments   = "scores:adjustments"
)

var (
	// ErrNotFound is returned by Get when the key has never been set.
	ErrNotFound = errors.New("kv: key not found")
	// ErrPersist wraps every failed write.
	ErrPersist = errors.New("kv: persist failed")
	// ErrQuotaExceeded is returned when a write would exceed the storage quota.
	ErrQuotaExceeded = errors.New("kv: storage quota exceeded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kv: store closed")
)

// Store is a durable byte store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func persistErr(op string, err error) error {
	if errors.Is(err, ErrPersist) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersist, err)
}

// GetJSON decodes the value stored at key into dest. A missing key leaves
// dest untouched and reports found=false.
func GetJSON(ctx context.Context, s Store, key string, dest any) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return true, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and writes it at key.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return persistErr("kv: encode "+key, err)
	}
	return s.Set(ctx, key, data)
}
