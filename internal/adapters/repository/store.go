// Package repository holds the device's transaction history and the team
// scores derived from it.
package repository

import (
	"context"

	"github.com/okian/gmscan/internal/adapters/mq/queue"
	"github.com/okian/gmscan/internal/domain/model"
)

// Scorer recomputes a team score from that team's transactions.
type Scorer interface {
	TeamScore(teamID string, txs []model.Transaction) model.TeamScore
}

// Store provides read/write access to the scan history.
type Store interface {
	// Record appends tx. An empty ID is assigned. Returns ErrDuplicateTransaction
	// when an equivalent scan is already stored.
	Record(ctx context.Context, tx *model.Transaction) error

	// Remove deletes a transaction and releases its token when nothing else
	// references it. Returns ErrNotFound for unknown IDs.
	Remove(ctx context.Context, id string) (model.Transaction, error)

	All(ctx context.Context) []model.Transaction
	ForTeam(ctx context.Context, teamID string) []model.Transaction

	// TeamScore returns the score with adjustments attached.
	TeamScore(ctx context.Context, teamID string) (model.TeamScore, bool)

	// TeamScores returns every team ranked by adjusted total desc, team ID asc.
	TeamScores(ctx context.Context) []model.RankedTeam

	AddAdjustment(ctx context.Context, teamID string, adj model.Adjustment) (model.TeamScore, error)
	CacheAuthoritativeScore(ctx context.Context, score model.ScoreUpdate) error
	AuthoritativeScores(ctx context.Context) []model.ScoreUpdate

	Stats(ctx context.Context) model.SessionStats
	Backlog() *queue.Backlog
}
