package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/internal/adapters/mq/queue"
	service "github.com/okian/gmscan/internal/app"
	"github.com/okian/gmscan/internal/catalog"
	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/spf13/cobra"
)

// BacklogReport lists the entries waiting for delivery.
type BacklogReport struct {
	Entries  []model.QueueEntry `json:"entries"`
	Orphaned []model.QueueEntry `json:"orphaned"`
}

// ScoresReport holds local standings and the orchestrator's cached view.
type ScoresReport struct {
	Teams         []model.RankedTeam  `json:"teams"`
	Authoritative []model.ScoreUpdate `json:"authoritative,omitempty"`
}

// NewBacklogCommand creates the backlog command group.
func NewBacklogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Inspect the pending-delivery backlog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued and orphaned transactions in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBacklogList(rootOpts, cmd)
		},
	})
	return cmd
}

// NewScoresCommand creates the scores command.
func NewScoresCommand(rootOpts *RootOptions) *cobra.Command {
	var authoritative bool
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Show team standings computed from the local history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScores(rootOpts, cmd, authoritative)
		},
	}
	cmd.Flags().BoolVar(&authoritative, "authoritative", false, "include the last scores pushed by the orchestrator")
	return cmd
}

func openStore(ctx context.Context, opts *RootOptions) (kv.Store, error) {
	store, err := kv.Open(ctx, opts.cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return store, nil
}

func runBacklogList(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	store, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	backlog, err := queue.NewBacklog(ctx, store, queue.WithCapacity(opts.cfg.BacklogCapacity))
	if err != nil {
		return WrapExitError(ExitCommandError, "read backlog", err)
	}
	orphans, err := backlog.Orphans(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "read orphans", err)
	}
	report := BacklogReport{Entries: backlog.Snapshot(), Orphaned: orphans}
	if report.Orphaned == nil {
		report.Orphaned = []model.QueueEntry{}
	}

	return opts.printer(cmd).Print(report, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTOKEN\tTEAM\tMODE\tREASON\tENQUEUED")
		for _, group := range [][]model.QueueEntry{report.Entries, report.Orphaned} {
			for _, e := range group {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.Transaction.TokenID, e.Transaction.TeamID, e.Transaction.Mode,
					e.Reason, e.EnqueuedAt.Format("15:04:05"))
			}
		}
		fmt.Fprintf(tw, "\n%d queued, %d orphaned\n", len(report.Entries), len(report.Orphaned))
		return tw.Flush()
	})
}

func runScores(opts *RootOptions, cmd *cobra.Command, authoritative bool) error {
	ctx := cmd.Context()
	store, err := openStore(ctx, opts)
	if err != nil {
		return err
	}

	tokens, err := catalog.Load(opts.cfg.CatalogPath, opts.cfg.CatalogBackupPath)
	if errors.Is(err, catalog.ErrNoCatalog) {
		tokens = catalog.New()
	} else if err != nil {
		_ = store.Close()
		return WrapExitError(ExitCommandError, "load catalog", err)
	}

	svc := service.New(
		service.WithLogger(logger.Nop()),
		service.WithStore(store),
		service.WithCatalog(tokens),
		service.WithDeviceID(opts.cfg.DeviceID),
		service.WithBacklogCapacity(opts.cfg.BacklogCapacity),
		service.WithValueTiers(opts.cfg.Tiers()),
		service.WithTypeMultipliers(opts.cfg.TypeMultipliers),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return WrapExitError(ExitCommandError, "load history", err)
	}
	defer svc.Stop()

	var report ScoresReport
	if report.Teams, err = svc.GetTeamScores(ctx); err != nil {
		return err
	}
	if authoritative {
		if report.Authoritative, err = svc.AuthoritativeScores(ctx); err != nil {
			return err
		}
	}

	return opts.printer(cmd).Print(report, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "RANK\tTEAM\tBASE\tBONUS\tADJUSTED\tTOKENS\t")
		for _, t := range report.Teams {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t\n",
				t.Rank, t.TeamID, t.BaseScore, t.BonusScore, t.Adjusted, t.TokensScanned)
		}
		if len(report.Authoritative) > 0 {
			fmt.Fprintln(tw, "\t\t\t\t\t\t")
			fmt.Fprintln(tw, "\tTEAM\tORCHESTRATOR\t\t\tTOKENS\t")
			for _, a := range report.Authoritative {
				fmt.Fprintf(tw, "\t%s\t%d\t\t\t%d\t\n", a.TeamID, a.CurrentScore, a.TokensScanned)
			}
		}
		return tw.Flush()
	})
}
