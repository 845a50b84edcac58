package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/internal/adapters/mq/queue"
	"github.com/okian/gmscan/internal/domain/dedupe"
	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/okian/gmscan/pkg/metrics"
)

// TransactionStore is the persisted Store. Every mutation is written through
// to kv before it becomes visible and is rolled back when the write fails.
type TransactionStore struct {
	mu sync.RWMutex

	kv      kv.Store
	scorer  Scorer
	guard   dedupe.Deduper
	backlog *queue.Backlog

	txs           []model.Transaction
	scores        map[string]model.TeamScore
	adjustments   map[string][]model.Adjustment
	authoritative map[string]model.ScoreUpdate

	backlogCapacity int
	logger          logger.Logger
	now             func() time.Time
}

// NewTransactionStore loads history, adjustments, cached authoritative scores
// and the backlog from store. Corrupt collections load empty.
func NewTransactionStore(ctx context.Context, store kv.Store, scorer Scorer, guard dedupe.Deduper, opts ...Option) (*TransactionStore, error) {
	s := &TransactionStore{
		kv:            store,
		scorer:        scorer,
		guard:         guard,
		scores:        make(map[string]model.TeamScore),
		adjustments:   make(map[string][]model.Adjustment),
		authoritative: make(map[string]model.ScoreUpdate),
		logger:        logger.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	backlog, err := queue.NewBacklog(ctx, store,
		queue.WithCapacity(s.backlogCapacity),
		queue.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.backlog = backlog

	var (
		txs           []model.Transaction
		adjustments   map[string][]model.Adjustment
		authoritative map[string]model.ScoreUpdate
	)
	if ok, err := s.load(ctx, kv.KeyTransactions, &txs); err != nil {
		return nil, err
	} else if ok {
		s.txs = txs
	}
	if ok, err := s.load(ctx, kv.KeyScoresAdjustments, &adjustments); err != nil {
		return nil, err
	} else if ok && adjustments != nil {
		s.adjustments = adjustments
	}
	if ok, err := s.load(ctx, kv.KeyScoresAuthoritative, &authoritative); err != nil {
		return nil, err
	} else if ok && authoritative != nil {
		s.authoritative = authoritative
	}

	for _, teamID := range s.teamIDs() {
		s.recompute(teamID)
	}
	metrics.UpdateTeamCount(len(s.scores))
	return s, nil
}

// load decodes key into dest. ok is false when the key is missing or corrupt.
func (s *TransactionStore) load(ctx context.Context, key string, dest any) (bool, error) {
	found, err := kv.GetJSON(ctx, s.kv, key, dest)
	switch {
	case err != nil && !found:
		return false, fmt.Errorf("repository: load %s: %w", key, err)
	case err != nil:
		s.logger.Warn(ctx, "discarding unreadable collection", logger.String("key", key), logger.Error(err))
		return false, nil
	}
	return found, nil
}

// Backlog returns the owned pending-delivery queue.
func (s *TransactionStore) Backlog() *queue.Backlog {
	return s.backlog
}

func (s *TransactionStore) Record(ctx context.Context, tx *model.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.txs {
		if s.txs[i].SameScan(tx) {
			s.logger.Info(ctx, "duplicate transaction rejected",
				logger.String("token_id", tx.TokenID),
				logger.String("team_id", tx.TeamID),
				logger.String("existing_id", s.txs[i].ID))
			return ErrDuplicateTransaction
		}
	}

	next := append(s.txs[:len(s.txs):len(s.txs)], *tx)
	if err := kv.SetJSON(ctx, s.kv, kv.KeyTransactions, next); err != nil {
		metrics.RecordStorageError("repository")
		return fmt.Errorf("repository: record %s: %w", tx.TokenID, err)
	}
	s.txs = next
	s.recompute(tx.TeamID)
	metrics.UpdateTeamCount(len(s.scores))
	return nil
}

func (s *TransactionStore) Remove(ctx context.Context, id string) (model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.txs {
		if s.txs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Transaction{}, ErrNotFound
	}
	removed := s.txs[idx]

	next := make([]model.Transaction, 0, len(s.txs)-1)
	next = append(next, s.txs[:idx]...)
	next = append(next, s.txs[idx+1:]...)
	if err := kv.SetJSON(ctx, s.kv, kv.KeyTransactions, next); err != nil {
		metrics.RecordStorageError("repository")
		return model.Transaction{}, fmt.Errorf("repository: remove %s: %w", id, err)
	}
	s.txs = next
	s.recompute(removed.TeamID)
	metrics.UpdateTeamCount(len(s.scores))

	if s.guard != nil && !s.referenced(removed.TokenID) {
		if err := s.guard.Release(ctx, removed.TokenID); err != nil {
			return removed, fmt.Errorf("repository: release %s: %w", removed.TokenID, err)
		}
	}
	return removed, nil
}

// referenced reports whether any stored transaction uses tokenID. Caller holds s.mu.
func (s *TransactionStore) referenced(tokenID string) bool {
	for i := range s.txs {
		if s.txs[i].TokenID == tokenID {
			return true
		}
	}
	return false
}

// recompute rebuilds teamID's score from the full history. Caller holds s.mu.
func (s *TransactionStore) recompute(teamID string) {
	team := s.forTeam(teamID)
	if len(team) == 0 && len(s.adjustments[teamID]) == 0 {
		delete(s.scores, teamID)
		return
	}
	s.scores[teamID] = s.scorer.TeamScore(teamID, team)
}

// forTeam returns a copy of teamID's transactions. Caller holds s.mu.
func (s *TransactionStore) forTeam(teamID string) []model.Transaction {
	out := make([]model.Transaction, 0)
	for i := range s.txs {
		if s.txs[i].TeamID == teamID {
			out = append(out, s.txs[i])
		}
	}
	return out
}

// teamIDs returns every team with transactions or adjustments. Caller holds s.mu.
func (s *TransactionStore) teamIDs() []string {
	set := make(map[string]struct{})
	for i := range s.txs {
		set[s.txs[i].TeamID] = struct{}{}
	}
	for id := range s.adjustments {
		set[id] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *TransactionStore) All(_ context.Context) []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Transaction(nil), s.txs...)
}

func (s *TransactionStore) ForTeam(_ context.Context, teamID string) []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forTeam(teamID)
}

func (s *TransactionStore) TeamScore(_ context.Context, teamID string) (model.TeamScore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[teamID]
	if !ok {
		return model.TeamScore{}, false
	}
	return s.withAdjustments(score), true
}

// withAdjustments attaches a copy of the team's adjustments. Caller holds s.mu.
func (s *TransactionStore) withAdjustments(score model.TeamScore) model.TeamScore {
	if adj := s.adjustments[score.TeamID]; len(adj) > 0 {
		score.Adjustments = append([]model.Adjustment(nil), adj...)
	}
	return score
}

func (s *TransactionStore) TeamScores(_ context.Context) []model.RankedTeam {
	s.mu.RLock()
	out := make([]model.RankedTeam, 0, len(s.scores))
	for _, score := range s.scores {
		score = s.withAdjustments(score)
		out = append(out, model.RankedTeam{Adjusted: score.AdjustedTotal(), TeamScore: score})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Adjusted != out[j].Adjusted {
			return out[i].Adjusted > out[j].Adjusted
		}
		return out[i].TeamID < out[j].TeamID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (s *TransactionStore) AddAdjustment(ctx context.Context, teamID string, adj model.Adjustment) (model.TeamScore, error) {
	if teamID == "" {
		return model.TeamScore{}, ErrMissingTeam
	}
	if adj.Timestamp.IsZero() {
		adj.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.adjustments[teamID]
	s.adjustments[teamID] = append(prev[:len(prev):len(prev)], adj)
	if err := kv.SetJSON(ctx, s.kv, kv.KeyScoresAdjustments, s.adjustments); err != nil {
		if prev == nil {
			delete(s.adjustments, teamID)
		} else {
			s.adjustments[teamID] = prev
		}
		metrics.RecordStorageError("repository")
		return model.TeamScore{}, fmt.Errorf("repository: adjust %s: %w", teamID, err)
	}
	s.recompute(teamID)
	metrics.UpdateTeamCount(len(s.scores))
	return s.withAdjustments(s.scores[teamID]), nil
}

func (s *TransactionStore) CacheAuthoritativeScore(ctx context.Context, score model.ScoreUpdate) error {
	if score.TeamID == "" {
		return ErrMissingTeam
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.authoritative[score.TeamID]
	s.authoritative[score.TeamID] = score
	if err := kv.SetJSON(ctx, s.kv, kv.KeyScoresAuthoritative, s.authoritative); err != nil {
		if had {
			s.authoritative[score.TeamID] = prev
		} else {
			delete(s.authoritative, score.TeamID)
		}
		metrics.RecordStorageError("repository")
		return fmt.Errorf("repository: cache score %s: %w", score.TeamID, err)
	}
	return nil
}

func (s *TransactionStore) AuthoritativeScores(_ context.Context) []model.ScoreUpdate {
	s.mu.RLock()
	out := make([]model.ScoreUpdate, 0, len(s.authoritative))
	for _, score := range s.authoritative {
		out = append(out, score)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out
}

func (s *TransactionStore) Stats(_ context.Context) model.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.SessionStats{
		TotalScans:  len(s.txs),
		ScansByMode: make(map[model.Mode]int),
		Teams:       len(s.scores),
	}
	tokens := make(map[string]struct{})
	var last time.Time
	for i := range s.txs {
		tx := &s.txs[i]
		tokens[tx.TokenID] = struct{}{}
		stats.ScansByMode[tx.Mode]++
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
	}
	stats.UniqueTokens = len(tokens)
	for _, score := range s.scores {
		score = s.withAdjustments(score)
		stats.TotalScore += score.AdjustedTotal()
	}
	if !last.IsZero() {
		stats.LastScanAt = &last
	}
	stats.BacklogLength = s.backlog.Len()
	return stats
}

var _ Store = (*TransactionStore)(nil)
