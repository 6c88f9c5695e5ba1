package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/core"
	"github.com/doclatex/doclatex/internal/history"
	"github.com/doclatex/doclatex/internal/identity"
	"github.com/doclatex/doclatex/internal/models"
)

// newHistoryCmd creates the 'history' command group.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past conversions",
		Long: `Conversion history commands.

History is recorded for the user set in [identity] user_id or DOCLATEX_USER.
Without a user nothing is recorded.

Commands:
  list    - List conversions, newest first
  export  - Export conversions to an .xlsx workbook`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryExportCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var search, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List past conversions",
		Long: `List past conversions, newest first.

--search matches the file name case-insensitively, as a substring or with
up to two typos. --status filters by success, failed or processing.

Examples:
  doclatex history list
  doclatex history list --search thesis --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := history.Query{
				Search: search,
				Status: models.HistoryStatus(strings.ToLower(status)),
				Limit:  limit,
			}
			return withEngine(cmd, func(engine *core.Engine) error {
				records, stats, err := engine.History(cmd.Context(), q)
				if err != nil {
					return historyError(err)
				}
				printHistory(cmd.OutOrStdout(), records, stats)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Filter by file name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (success, failed, processing)")
	cmd.Flags().IntVarP(&limit, "limit", "n", constants.DefaultHistoryLimit, "Maximum number of records (0 = all)")

	return cmd
}

func newHistoryExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export history to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return withEngine(cmd, func(engine *core.Engine) error {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				n, err := engine.ExportHistory(cmd.Context(), f)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					os.Remove(path)
					return historyError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d record(s) to %s\n", n, path)
				return nil
			})
		},
	}
}

func historyError(err error) error {
	if errors.Is(err, identity.ErrNoIdentity) {
		return fmt.Errorf("no user configured: set [identity] user_id or %s", config.EnvUser)
	}
	return err
}

func printHistory(w io.Writer, records []models.HistoryRecord, stats models.HistoryStats) {
	fmt.Fprintf(w, "Total: %d  Success: %d  Failed: %d  Processing: %d\n\n",
		stats.Total, stats.Success, stats.Failed, stats.Processing)
	if len(records) == 0 {
		fmt.Fprintln(w, "No conversions found")
		return
	}
	fmt.Fprintf(w, "%-19s %-10s %-36s %-20s %s\n", "TIME", "STATUS", "JOB ID", "TEMPLATE", "FILE")
	for _, r := range records {
		fmt.Fprintf(w, "%-19s %-10s %-36s %-20s %s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Status, r.JobID, r.TemplateID, r.OriginalFileName)
	}
}
