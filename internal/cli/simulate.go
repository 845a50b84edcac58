package cli

import (
	"fmt"
	"io"

	"github.com/okian/gmscan/internal/catalog"
	"github.com/okian/gmscan/internal/simulate"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/spf13/cobra"
)

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := simulate.Config{}
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive scan traffic at a running scanner and check its totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths := []string{rootOpts.cfg.CatalogPath, rootOpts.cfg.CatalogBackupPath}
			if catalogPath != "" {
				paths = []string{catalogPath}
			}
			tokens, err := catalog.Load(paths...)
			if err != nil {
				return WrapExitError(ExitCommandError, "load catalog", err)
			}
			cfg.BaseURL = rootOpts.API
			cfg.Tokens = tokens.TokenIDs()
			cfg.Verbose = rootOpts.Verbose

			log := logger.Nop()
			if rootOpts.Verbose {
				log = logger.Get()
			}
			report, err := simulate.Run(cmd.Context(), &cfg, log)
			if err != nil {
				return WrapExitError(ExitFailure, "simulation failed", err)
			}
			return rootOpts.printer(cmd).Print(report, func(w io.Writer) error {
				fmt.Fprintf(w, "submitted %d: %d accepted, %d duplicates, %d failed in %s\n",
					report.Submitted, report.Accepted, report.Duplicates, report.Failed, report.Duration)
				if report.TopTeam != "" {
					fmt.Fprintf(w, "%d teams, leader %s with %d\n", report.Teams, report.TopTeam, report.TopScore)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&cfg.Scans, "scans", simulate.DefaultScans, "number of scans to submit")
	cmd.Flags().IntVar(&cfg.Teams, "teams", simulate.DefaultTeams, "number of teams")
	cmd.Flags().IntVar(&cfg.Workers, "workers", simulate.DefaultWorkers, "concurrent submitters")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "tokens.json to draw token IDs from")
	return cmd
}
