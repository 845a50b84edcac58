package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/okian/gmscan/internal/delivery"
	"github.com/okian/gmscan/internal/domain/model"
	"github.com/spf13/cobra"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import [transactions.json]",
		Short: "Upload transactions to the orchestrator as one batch",
		Long: `Send a JSON array of transactions through the scanner's bulk upload.
Without a file the scanner uploads its own backlog instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var txs []model.Transaction
			if len(args) == 1 {
				raw, err := os.ReadFile(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "read transactions", err)
				}
				if err := json.Unmarshal(raw, &txs); err != nil {
					return WrapExitError(ExitCommandError, "parse transactions", err)
				}
				if len(txs) == 0 {
					return NewExitError(ExitCommandError, args[0]+": no transactions")
				}
			}
			return runImport(rootOpts, cmd, txs)
		},
	}
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Ask the scanner to replay its backlog over the live channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var report delivery.FlushReport
			if err := postJSON(cmd.Context(), rootOpts.API, "/sync/flush", nil, &report); err != nil {
				return err
			}
			return rootOpts.printer(cmd).Print(report, func(w io.Writer) error {
				switch {
				case report.Skipped:
					fmt.Fprintln(w, "flush skipped: offline or already flushing")
				case report.Aborted:
					fmt.Fprintf(w, "flush aborted: %d delivered, %d remaining\n", report.Delivered, report.Remaining)
				default:
					fmt.Fprintf(w, "flushed %d of %d, %d failed, %d remaining\n",
						report.Delivered, report.Attempted, report.Failed, report.Remaining)
				}
				return nil
			})
		},
	}
}

func runImport(opts *RootOptions, cmd *cobra.Command, txs []model.Transaction) error {
	var body any
	if len(txs) > 0 {
		body = map[string]any{"transactions": txs}
	}
	var result delivery.BatchResult
	if err := postJSON(cmd.Context(), opts.API, "/sync/bulk", body, &result); err != nil {
		return err
	}
	return opts.printer(cmd).Print(result, func(w io.Writer) error {
		fmt.Fprintf(w, "batch %s: %d sent, %d of %d processed\n",
			result.BatchID, result.Count, result.Processed, result.Total)
		return nil
	})
}
