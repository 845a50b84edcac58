package cli

import (
	"fmt"
	"io"

	"github.com/okian/gmscan/internal/catalog"
	"github.com/spf13/cobra"
)

// CatalogReport is the result of catalog verify.
type CatalogReport struct {
	Source string   `json:"source"`
	Tokens int      `json:"tokens"`
	Issues []string `json:"issues"`
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Token catalog tools",
	}

	verify := &cobra.Command{
		Use:   "verify [tokens.json]",
		Short: "Check every token carries the fields the scanner needs",
		Long: `Load the token catalog and report tokens missing SF_RFID, SF_ValueRating,
SF_MemoryType or SF_Group. Without an argument the configured catalog path
is used, falling back to the backup path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := []string{rootOpts.cfg.CatalogPath, rootOpts.cfg.CatalogBackupPath}
			if len(args) == 1 {
				paths = args
			}
			return runCatalogVerify(rootOpts, cmd, paths)
		},
	}
	cmd.AddCommand(verify)
	return cmd
}

func runCatalogVerify(opts *RootOptions, cmd *cobra.Command, paths []string) error {
	c, err := catalog.Load(paths...)
	if err != nil {
		return WrapExitError(ExitCommandError, "load catalog", err)
	}

	report := CatalogReport{Source: c.Source(), Tokens: c.Len(), Issues: []string{}}
	for _, issue := range c.Verify() {
		report.Issues = append(report.Issues, issue.String())
	}

	err = opts.printer(cmd).Print(report, func(w io.Writer) error {
		fmt.Fprintf(w, "%s: %d tokens\n", report.Source, report.Tokens)
		for _, issue := range report.Issues {
			fmt.Fprintf(w, "  missing %s\n", issue)
		}
		if len(report.Issues) == 0 {
			fmt.Fprintln(w, "catalog OK")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(report.Issues) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d catalog issues", len(report.Issues)))
	}
	return nil
}
