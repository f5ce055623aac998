package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gridsync/internal/reconcile"
)

var (
	issuesType string
)

var assigneesCmd = &cobra.Command{
	Use:   "assignees",
	Short: "List the assignees of the dataset's tracker issues",
	Long: `List, sorted and without duplicates, the assignees of every row whose key
column links to the configured tracker. Unassigned issues are skipped.`,
	Args: cobra.NoArgs,
	RunE: runAssignees,
}

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List the issue keys of one issue type",
	Args:  cobra.NoArgs,
	RunE:  runIssues,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <key>...",
	Short: "Pull issues from the tracker into the dataset",
	Long: `Fetch each issue from the tracker and write it into the dataset: the row
holding the issue key is updated, or a new row is inserted.

Example:
  gridsync refresh PROJ-101 PROJ-102`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRefresh,
}

func init() {
	issuesCmd.Flags().StringVar(&issuesType, "type", "", "Issue type (e.g. Story, Bug)")
	issuesCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(assigneesCmd, issuesCmd, refreshCmd)
}

// openReconciler opens the app and builds a reconciler over it.
func openReconciler() (*app, *reconcile.Reconciler, bool) {
	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil, nil, false
	}
	rec, err := a.reconciler()
	if err != nil {
		a.Close()
		exitOnError(err)
		return nil, nil, false
	}
	return a, rec, true
}

func printList(cmd *cobra.Command, name string, items []string) error {
	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		if items == nil {
			items = []string{}
		}
		return printJSON(out, map[string]interface{}{name: items})
	}
	if len(items) > 0 {
		fmt.Fprintln(out, strings.Join(items, "\n"))
	}
	return nil
}

func runAssignees(cmd *cobra.Command, args []string) error {
	a, rec, ok := openReconciler()
	if !ok {
		return nil
	}
	defer a.Close()

	names, err := rec.Assignees(cmd.Context(), a.ws.Dataset)
	if err != nil {
		exitOnError(err)
		return nil
	}
	return printList(cmd, "assignees", names)
}

func runIssues(cmd *cobra.Command, args []string) error {
	a, rec, ok := openReconciler()
	if !ok {
		return nil
	}
	defer a.Close()

	keys, err := rec.IssuesOfType(cmd.Context(), a.ws.Dataset, issuesType)
	if err != nil {
		exitOnError(err)
		return nil
	}
	return printList(cmd, "issues", keys)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	a, rec, ok := openReconciler()
	if !ok {
		return nil
	}
	defer a.Close()

	res, err := rec.Refresh(cmd.Context(), a.ws.Dataset, args)
	if err != nil {
		exitOnError(err)
		return nil
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, res)
	}
	if !IsQuiet() {
		fmt.Fprintf(out, "Refreshed %d issue(s): %d inserted, %d updated\n", len(args), res.Inserted, res.Updated)
	}
	return nil
}
