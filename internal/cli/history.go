package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/gridsync/internal/archive"
	"github.com/user/gridsync/internal/reconcile"
)

var (
	historyUser   string
	historyColumn string
	historySince  string
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the edit log of a dataset",
	Long: `List the dataset's audit entries, newest first. Every edit is logged,
failed ones included.

Examples:
  gridsync history --user alice --since "1 week ago"
  gridsync history --column Details --limit 20 --format yaml`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyUser, "user", "", "Only edits by this user")
	historyCmd.Flags().StringVar(&historyColumn, "column", "", "Only edits of this column")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only edits since this date (dd-mm-yyyy or natural language)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of entries (0 = all)")
	historyCmd.Flags().StringVar(&historyFormat, "format", FormatTable, "Output format: table, json or yaml")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(historyFormat)
	if err != nil {
		exitOnError(err)
		return nil
	}

	opts := reconcile.HistoryOptions{User: historyUser, Column: historyColumn, Limit: historyLimit}
	if historySince != "" {
		if opts.Since, err = archive.ParseCutoff(historySince, time.Now()); err != nil {
			exitOnError(fmt.Errorf("%w: --since %q", ErrUsage, historySince))
			return nil
		}
	}

	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	entries, err := reconcile.History(cmd.Context(), a.store, a.ws.Dataset, opts)
	if err != nil {
		exitOnError(err)
		return nil
	}
	if entries == nil {
		entries = []reconcile.AuditEntry{}
	}

	out := cmd.OutOrStdout()
	if format != FormatTable {
		return printValue(out, format, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No edits.")
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, map[string]interface{}{
			"date":   e.Date,
			"user":   e.User,
			"column": e.Column,
			"status": e.Status,
			"newVal": e.NewVal,
		})
	}
	printTable(out, []string{"date", "user", "column", "status", "newVal"}, rows)
	return nil
}
