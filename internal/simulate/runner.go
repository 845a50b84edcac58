package simulate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Run checks the scanner is healthy, submits the generated scans from a
// pool of workers and verifies the reported stats against the outcomes.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (Report, error) {
	c := cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	start := time.Now()

	api := newClient(c.BaseURL, c.Timeout)
	if err := api.getJSON(ctx, "/healthz", nil); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	var before model.SessionStats
	if err := api.getJSON(ctx, "/stats", &before); err != nil {
		return Report{}, err
	}

	scans, err := Generate(&c)
	if err != nil {
		return Report{}, err
	}
	log.Info(ctx, "submitting scans",
		logger.String("base_url", c.BaseURL),
		logger.Int("scans", len(scans)),
		logger.Int("workers", c.Workers))

	var accepted, duplicates, failed atomic.Int64
	work := make(chan Scan, c.Workers*2)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for _, s := range scans {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case work <- s:
			}
		}
		return nil
	})
	for i := 0; i < c.Workers; i++ {
		g.Go(func() error {
			for s := range work {
				switch api.submit(gctx, s) {
				case resultAccepted:
					accepted.Add(1)
				case resultDuplicate:
					duplicates.Add(1)
				default:
					failed.Add(1)
					if c.Verbose {
						log.Warn(gctx, "scan failed", logger.String("token_id", s.TokenID), logger.String("team_id", s.TeamID))
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{
		Submitted:  len(scans),
		Accepted:   int(accepted.Load()),
		Duplicates: int(duplicates.Load()),
		Failed:     int(failed.Load()),
	}

	if err := verify(ctx, api, before, &report); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)

	log.Info(ctx, "simulation complete",
		logger.Int("accepted", report.Accepted),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("failed", report.Failed),
		logger.String("top_team", report.TopTeam),
		logger.Int("top_score", report.TopScore),
		logger.Duration("duration", report.Duration))
	return report, nil
}

// verify compares the scanner's stats and standings with the outcomes.
func verify(ctx context.Context, api *client, before model.SessionStats, report *Report) error {
	var after model.SessionStats
	if err := api.getJSON(ctx, "/stats", &after); err != nil {
		return err
	}
	if got := after.TotalScans - before.TotalScans; got != report.Accepted {
		return fmt.Errorf("%w: %d scans recorded, %d accepted", ErrMismatch, got, report.Accepted)
	}

	var ranked []model.RankedTeam
	if err := api.getJSON(ctx, "/teams/scores", &ranked); err != nil {
		return err
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Adjusted > ranked[i-1].Adjusted {
			return fmt.Errorf("%w: standings out of order at rank %d", ErrMismatch, ranked[i].Rank)
		}
	}
	report.Teams = len(ranked)
	if len(ranked) > 0 {
		report.TopTeam = ranked[0].TeamID
		report.TopScore = ranked[0].Adjusted
	}
	return nil
}
