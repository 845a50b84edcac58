// Package dedupe tracks which tokens have already been claimed on this device.
package dedupe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/pkg/logger"
)

// Deduper rejects tokens that were already claimed, independent of connectivity.
type Deduper interface {
	IsClaimed(ctx context.Context, tokenID string) bool

	// Claim records tokenID. It returns true if the token was already claimed.
	// A failed persist leaves the token unclaimed.
	Claim(ctx context.Context, tokenID string) (bool, error)

	// Release frees a token after an admin deletion.
	Release(ctx context.Context, tokenID string) error

	Size() int
}

// Guard is the persisted Deduper. The claimed set survives restart.
type Guard struct {
	mu      sync.RWMutex
	store   kv.Store
	key     string
	claimed map[string]struct{}
	logger  logger.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger used for load warnings.
func WithLogger(l logger.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(g *Guard) {
		if key != "" {
			g.key = key
		}
	}
}

// NewGuard loads the claimed set from store. Corrupt data yields an empty set;
// only a failed read is an error.
func NewGuard(ctx context.Context, store kv.Store, opts ...Option) (*Guard, error) {
	g := &Guard{
		store:   store,
		key:     kv.KeyClaimedTokens,
		claimed: make(map[string]struct{}),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	var ids []string
	found, err := kv.GetJSON(ctx, store, g.key, &ids)
	switch {
	case err != nil && !found:
		return nil, fmt.Errorf("dedupe: load: %w", err)
	case err != nil:
		g.logger.Warn(ctx, "discarding unreadable claimed tokens", logger.Error(err))
		ids = nil
	}
	for _, id := range ids {
		g.claimed[id] = struct{}{}
	}
	return g, nil
}

func (g *Guard) IsClaimed(_ context.Context, tokenID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.claimed[tokenID]
	return ok
}

func (g *Guard) Claim(ctx context.Context, tokenID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.claimed[tokenID]; ok {
		return true, nil
	}
	g.claimed[tokenID] = struct{}{}
	if err := g.persist(ctx); err != nil {
		delete(g.claimed, tokenID)
		return false, fmt.Errorf("dedupe: claim %s: %w", tokenID, err)
	}
	return false, nil
}

func (g *Guard) Release(ctx context.Context, tokenID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.claimed[tokenID]; !ok {
		return nil
	}
	delete(g.claimed, tokenID)
	if err := g.persist(ctx); err != nil {
		g.claimed[tokenID] = struct{}{}
		return fmt.Errorf("dedupe: release %s: %w", tokenID, err)
	}
	return nil
}

func (g *Guard) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.claimed)
}

// Claimed returns the sorted claimed token IDs.
func (g *Guard) Claimed() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sorted()
}

func (g *Guard) sorted() []string {
	ids := make([]string, 0, len(g.claimed))
	for id := range g.claimed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// persist writes the claimed set. Caller holds g.mu.
func (g *Guard) persist(ctx context.Context) error {
	return kv.SetJSON(ctx, g.store, g.key, g.sorted())
}

var _ Deduper = (*Guard)(nil)
