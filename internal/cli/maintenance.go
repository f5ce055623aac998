package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildAll bool

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the query cache from the operation log",
	Long: `Replay records.jsonl into the SQLite cache. Run this after editing the
log by hand, or use 'gridsync watch' to do it automatically.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the operation log as one line per document",
	Args:  cobra.NoArgs,
	RunE:  runCompact,
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildAll, "all", false, "Rebuild every dataset")
	rootCmd.AddCommand(rebuildCmd, compactCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(!rebuildAll)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	names := []string{a.ws.Dataset}
	if rebuildAll {
		datasets, err := a.store.ListDatasets(ctx)
		if err != nil {
			return fmt.Errorf("failed to list datasets: %w", err)
		}
		names = names[:0]
		for _, ds := range datasets {
			names = append(names, ds.Name)
		}
	}

	for _, name := range names {
		if err := a.store.RebuildCache(ctx, name); err != nil {
			exitOnError(err)
			return nil
		}
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, map[string]interface{}{"rebuilt": names})
	}
	if !IsQuiet() {
		for _, name := range names {
			fmt.Fprintf(out, "Rebuilt cache for '%s'\n", name)
		}
	}
	return nil
}

func runCompact(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	n, err := a.store.Compact(cmd.Context(), a.ws.Dataset)
	if err != nil {
		exitOnError(err)
		return nil
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, map[string]interface{}{"dataset": a.ws.Dataset, "documents": n})
	}
	if !IsQuiet() {
		fmt.Fprintf(out, "Compacted '%s': %d documents\n", a.ws.Dataset, n)
	}
	return nil
}
