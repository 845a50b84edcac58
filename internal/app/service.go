// Package service composes the scanner's components and exposes the
// operations used by the HTTP API, the operator CLI and the live channel.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/internal/adapters/mq/queue"
	"github.com/okian/gmscan/internal/adapters/repository"
	"github.com/okian/gmscan/internal/catalog"
	"github.com/okian/gmscan/internal/delivery"
	"github.com/okian/gmscan/internal/domain/dedupe"
	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/internal/domain/scoring"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/okian/gmscan/pkg/metrics"
)

var (
	ErrNotStarted   = errors.New("service not started")
	ErrNotNetworked = errors.New("no orchestrator connection configured")
)

// Outcome is the local verdict on a scan.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
)

// Delivery states reported with an accepted scan.
const (
	DeliveryLocal     = "local"
	DeliveryDelivered = "delivered"
	DeliveryQueued    = "queued"
	DeliveryOrphaned  = "orphaned"
)

// ScanRequest is one token read.
type ScanRequest struct {
	TokenID string     `json:"tokenId"`
	TeamID  string     `json:"teamId"`
	Mode    model.Mode `json:"mode"`
}

// ScanResult describes what happened to a scan.
type ScanResult struct {
	Outcome     Outcome            `json:"outcome"`
	Delivery    string             `json:"delivery,omitempty"`
	Points      int                `json:"points"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	TeamScore   *model.TeamScore   `json:"teamScore,omitempty"`
}

// Service implements the scanner's operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	kv          kv.Store
	catalog     *catalog.Catalog
	engine      *scoring.Engine
	guard       *dedupe.Guard
	store       *repository.TransactionStore
	coordinator *delivery.Coordinator
	channel     delivery.Channel

	// Configuration
	deviceID        string
	networked       bool
	backlogCapacity int
	valueTiers      map[int]int
	typeMultipliers map[string]int
	now             func() time.Time

	// Counters
	delivered atomic.Int64
	queued    atomic.Int64
	rejected  atomic.Int64

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		deviceID:        "GM_STATION",
		backlogCapacity: 1000,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads persisted state and builds the scoring and storage components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.kv == nil {
		s.kv = kv.NewMemory()
	}
	if s.catalog == nil {
		s.catalog = catalog.New()
	}

	s.engine = scoring.NewEngine(
		scoring.WithBaseValues(s.valueTiers),
		scoring.WithTypeMultipliers(s.typeMultipliers),
		scoring.WithLogger(s.logger.Named("scoring")),
		scoring.WithCatalog(s.catalog.Tokens()),
	)

	guard, err := dedupe.NewGuard(ctx, s.kv, dedupe.WithLogger(s.logger.Named("dedupe")))
	if err != nil {
		return fmt.Errorf("service: start: %w", err)
	}
	s.guard = guard

	store, err := repository.NewTransactionStore(ctx, s.kv, s.engine, s.guard,
		repository.WithBacklogCapacity(s.backlogCapacity),
		repository.WithLogger(s.logger.Named("repository")),
		repository.WithClock(s.now))
	if err != nil {
		return fmt.Errorf("service: start: %w", err)
	}
	s.store = store

	s.started = true
	s.logger.Info(ctx, "scanner service started",
		logger.String("device_id", s.deviceID),
		logger.Bool("networked", s.networked),
		logger.Int("tokens", s.catalog.Len()),
		logger.Int("transactions", len(s.store.All(ctx))),
		logger.Int("backlog", s.store.Backlog().Len()))
	return nil
}

// AttachDelivery connects the service to the orchestrator. Orphaned scans
// stashed before this call are merged into the backlog.
func (s *Service) AttachDelivery(ctx context.Context, ch delivery.Channel, opts ...delivery.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	opts = append([]delivery.Option{
		delivery.WithDeviceID(s.deviceID),
		delivery.WithLogger(s.logger.Named("delivery")),
	}, opts...)
	s.channel = ch
	s.coordinator = delivery.New(ctx, ch, s.store.Backlog(), opts...)
	s.networked = true
	return nil
}

// Stop closes the key-value store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.kv.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "scanner service stopped")
}

func (s *Service) components() (*repository.TransactionStore, *delivery.Coordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.coordinator, nil
}

// ProcessScan claims the token, records the transaction and hands it to
// delivery. A token that was already claimed is rejected whatever the
// connection state.
func (s *Service) ProcessScan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	store, coord, err := s.components()
	if err != nil {
		return ScanResult{}, err
	}

	tx := model.Transaction{
		TokenID:   req.TokenID,
		TeamID:    req.TeamID,
		DeviceID:  s.deviceID,
		Mode:      req.Mode,
		Timestamp: s.now(),
	}
	s.catalog.Enrich(&tx)
	if err := tx.Validate(); err != nil {
		return ScanResult{}, fmt.Errorf("%w: %w", repository.ErrInvalidTransaction, err)
	}

	already, err := s.guard.Claim(ctx, tx.TokenID)
	if err != nil {
		metrics.RecordScan("storage_error")
		return ScanResult{}, err
	}
	if already {
		s.rejected.Add(1)
		metrics.RecordScan("duplicate_token")
		s.logger.Info(ctx, "token already claimed",
			logger.String("token_id", tx.TokenID), logger.String("team_id", tx.TeamID))
		return ScanResult{Outcome: OutcomeDuplicate}, nil
	}

	if err := store.Record(ctx, &tx); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			metrics.RecordScan("duplicate_transaction")
			return ScanResult{Outcome: OutcomeDuplicate}, nil
		}
		if relErr := s.guard.Release(ctx, tx.TokenID); relErr != nil {
			s.logger.Error(ctx, "releasing claim after failed record", logger.Error(relErr))
		}
		metrics.RecordScan("storage_error")
		return ScanResult{}, err
	}
	metrics.RecordScan("accepted")

	result := ScanResult{
		Outcome:     OutcomeAccepted,
		Delivery:    DeliveryLocal,
		Points:      s.engine.TokenValue(&tx),
		Transaction: &tx,
	}
	if score, ok := store.TeamScore(ctx, tx.TeamID); ok {
		result.TeamScore = &score
	}

	switch {
	case coord != nil:
		outcome, err := coord.Submit(ctx, tx)
		if err != nil {
			s.rollback(ctx, store, tx)
			return ScanResult{}, err
		}
		if outcome == delivery.OutcomeDelivered {
			s.delivered.Add(1)
			result.Delivery = DeliveryDelivered
		} else {
			s.queued.Add(1)
			result.Delivery = DeliveryQueued
		}
	case s.networked:
		if err := store.Backlog().StashOrphan(ctx, tx); err != nil {
			s.rollback(ctx, store, tx)
			return ScanResult{}, err
		}
		s.queued.Add(1)
		result.Delivery = DeliveryOrphaned
	}
	return result, nil
}

// rollback undoes Record for a scan that could not be queued for delivery,
// releasing its claim so the scan can be retried.
func (s *Service) rollback(ctx context.Context, store *repository.TransactionStore, tx model.Transaction) {
	if _, err := store.Remove(ctx, tx.ID); err != nil {
		s.logger.Error(ctx, "rolling back undeliverable scan",
			logger.String("transaction_id", tx.ID), logger.Error(err))
		return
	}
	metrics.RecordScan("undeliverable")
}

// DeleteTransaction removes a transaction; its token becomes scannable again
// when no other transaction references it.
func (s *Service) DeleteTransaction(ctx context.Context, id string) (model.Transaction, error) {
	store, _, err := s.components()
	if err != nil {
		return model.Transaction{}, err
	}
	tx, err := store.Remove(ctx, id)
	if err != nil {
		return tx, err
	}
	s.logger.Info(ctx, "transaction deleted",
		logger.String("id", id), logger.String("token_id", tx.TokenID), logger.String("team_id", tx.TeamID))
	return tx, nil
}

// GetSessionStats summarises the session.
func (s *Service) GetSessionStats(ctx context.Context) (model.SessionStats, error) {
	store, _, err := s.components()
	if err != nil {
		return model.SessionStats{}, err
	}
	stats := store.Stats(ctx)
	stats.Connected = s.Connected()
	stats.DeliveredScans = s.delivered.Load()
	stats.QueuedScans = s.queued.Load()
	stats.RejectedByGuard = s.rejected.Load()
	return stats, nil
}

// GetTeamScores returns the ranked standings.
func (s *Service) GetTeamScores(ctx context.Context) ([]model.RankedTeam, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return store.TeamScores(ctx), nil
}

// GetTeamTransactions returns one team's transactions in scan order.
func (s *Service) GetTeamTransactions(ctx context.Context, teamID string) ([]model.Transaction, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return store.ForTeam(ctx, teamID), nil
}

// Transactions returns the whole history.
func (s *Service) Transactions(ctx context.Context) ([]model.Transaction, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return store.All(ctx), nil
}

// AddAdjustment applies a manual score change.
func (s *Service) AddAdjustment(ctx context.Context, teamID string, adj model.Adjustment) (model.TeamScore, error) {
	store, _, err := s.components()
	if err != nil {
		return model.TeamScore{}, err
	}
	return store.AddAdjustment(ctx, teamID, adj)
}

// AuthoritativeScores returns the last scores pushed by the orchestrator.
func (s *Service) AuthoritativeScores(ctx context.Context) ([]model.ScoreUpdate, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return store.AuthoritativeScores(ctx), nil
}

// Backlog returns the pending entries.
func (s *Service) Backlog(_ context.Context) ([]model.QueueEntry, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return store.Backlog().Snapshot(), nil
}

// Flush replays the backlog over the live channel.
func (s *Service) Flush(ctx context.Context) (delivery.FlushReport, error) {
	_, coord, err := s.components()
	if err != nil {
		return delivery.FlushReport{}, err
	}
	if coord == nil {
		return delivery.FlushReport{}, ErrNotNetworked
	}
	return coord.Flush(ctx)
}

// UploadBacklog sends the backlog through the bulk endpoint.
func (s *Service) UploadBacklog(ctx context.Context) (delivery.BatchResult, error) {
	_, coord, err := s.components()
	if err != nil {
		return delivery.BatchResult{}, err
	}
	if coord == nil {
		return delivery.BatchResult{}, ErrNotNetworked
	}
	return coord.UploadBacklog(ctx)
}

// Import sends externally sourced transactions through the bulk endpoint
// without touching local state.
func (s *Service) Import(ctx context.Context, txs []model.Transaction) (delivery.BatchResult, error) {
	_, coord, err := s.components()
	if err != nil {
		return delivery.BatchResult{}, err
	}
	if coord == nil {
		return delivery.BatchResult{}, ErrNotNetworked
	}
	return coord.BulkUpload(ctx, txs)
}

// HandleMessage routes an inbound envelope: results and batch acks go to the
// coordinator, score updates are cached.
func (s *Service) HandleMessage(ctx context.Context, env model.Envelope) {
	store, coord, err := s.components()
	if err != nil {
		return
	}
	if coord != nil {
		handled, err := coord.HandleMessage(ctx, env)
		if err != nil {
			s.logger.Warn(ctx, "bad message", logger.String("type", env.Type), logger.Error(err))
		}
		if handled {
			return
		}
	}

	switch env.Type {
	case model.MsgScoreUpdated:
		var update model.ScoreUpdate
		if err := env.Decode(&update); err != nil {
			s.logger.Warn(ctx, "bad score update", logger.Error(err))
			return
		}
		if err := store.CacheAuthoritativeScore(ctx, update); err != nil {
			s.logger.Error(ctx, "caching score update failed", logger.Error(err))
		}
	default:
		s.logger.Debug(ctx, "ignoring message", logger.String("type", env.Type))
	}
}

// Connected reports the live channel state.
func (s *Service) Connected() bool {
	s.mu.RLock()
	ch := s.channel
	s.mu.RUnlock()
	return ch != nil && ch.Connected()
}

// Catalog returns the token catalog.
func (s *Service) Catalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Queue returns the pending-delivery backlog, or nil before Start.
func (s *Service) Queue() *queue.Backlog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil
	}
	return s.store.Backlog()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":   s.started,
		"deviceId":  s.deviceID,
		"networked": s.networked,
	}
	if s.started {
		backlog := s.store.Backlog().Len()
		stats["backlogLength"] = backlog
		stats["claimedTokens"] = s.guard.Size()
		stats["teams"] = len(s.store.TeamScores(context.Background()))
		metrics.UpdateBacklogSize(backlog)
	}
	return stats
}
