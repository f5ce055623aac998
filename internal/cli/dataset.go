package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/storage"
)

var (
	dsCreateTracker bool
	dsCreateBoard   string
	dsCreateMap     []string
	dsCreateKeys    []string
	dsDropYes       bool
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage datasets",
}

var datasetCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a dataset",
	Long: `Create a dataset in the data directory (created when missing).

Field mappings bind tracker fields to grid columns. Several fields may share
a column; they are stored as labelled blocks in mapping order.

Examples:
  gridsync dataset create board
  gridsync dataset create board --tracker --board 12 \
    --map key=Work-id --map summary=Details --map description=Details \
    --map assignee=Owner --keys Work-id`,
	Args: cobra.ExactArgs(1),
	RunE: runDatasetCreate,
}

var datasetShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a dataset's configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDatasetShow,
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets",
	Args:  cobra.NoArgs,
	RunE:  runDatasetList,
}

var datasetKeysCmd = &cobra.Command{
	Use:   "keys [column...]",
	Short: "Show or set the key columns of a dataset",
	Long: `Without arguments, print the dataset's key columns. With arguments,
replace them. Edits of key columns are rejected when another row already
holds the same key values.`,
	RunE: runDatasetKeys,
}

var datasetDropCmd = &cobra.Command{
	Use:   "drop <name>",
	Short: "Delete a dataset and all its data",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetDrop,
}

func init() {
	datasetCreateCmd.Flags().BoolVar(&dsCreateTracker, "tracker", false, "Reconcile edits with the live tracker issue")
	datasetCreateCmd.Flags().StringVar(&dsCreateBoard, "board", "", "Tracker board ID (for sprint lookups)")
	datasetCreateCmd.Flags().StringArrayVar(&dsCreateMap, "map", nil, "Field mapping as field=column (repeatable)")
	datasetCreateCmd.Flags().StringSliceVar(&dsCreateKeys, "keys", nil, "Key columns")
	datasetDropCmd.Flags().BoolVar(&dsDropYes, "yes", false, "Skip confirmation prompt")

	datasetCmd.AddCommand(datasetCreateCmd, datasetShowCmd, datasetListCmd, datasetKeysCmd, datasetDropCmd)
	rootCmd.AddCommand(datasetCmd)
}

// parseMapping reads field=column pairs in order.
func parseMapping(pairs []string) (model.FieldMapping, error) {
	var m model.FieldMapping
	for _, p := range pairs {
		field, column, ok := strings.Cut(p, "=")
		field, column = strings.TrimSpace(field), strings.TrimSpace(column)
		if !ok || field == "" || column == "" {
			return nil, fmt.Errorf("%w: mapping %q must be field=column", ErrUsage, p)
		}
		m = append(m, model.FieldBinding{Field: field, Column: column})
	}
	return m, nil
}

func runDatasetCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(false)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	mapping, err := parseMapping(dsCreateMap)
	if err != nil {
		exitOnError(err)
		return nil
	}

	ds := &model.Dataset{
		Name:      args[0],
		Created:   time.Now().UTC(),
		CreatedBy: a.ws.Actor,
	}
	if dsCreateTracker || dsCreateBoard != "" || len(mapping) > 0 {
		ds.Tracker = &model.TrackerConfig{
			Enabled:      dsCreateTracker,
			BoardID:      dsCreateBoard,
			FieldMapping: mapping,
		}
	}

	if err := a.store.CreateDataset(ctx, ds); err != nil {
		exitOnError(err)
		return nil
	}
	if len(dsCreateKeys) > 0 {
		if err := a.store.SetKeys(ctx, ds.Name, dsCreateKeys); err != nil {
			return fmt.Errorf("failed to set keys: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, ds)
	}
	if !IsQuiet() {
		fmt.Fprintf(out, "Created dataset '%s' in %s\n", ds.Name, a.ws.DataDir)
	}
	return nil
}

// datasetInfo is the output of dataset show.
type datasetInfo struct {
	*model.Dataset
	Keys      []string   `json:"keys"`
	Documents int        `json:"documents"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
}

func runDatasetShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(args) == 1 {
		datasetName = args[0]
	}
	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	info, err := describeDataset(ctx, a, a.ws.Dataset)
	if err != nil {
		exitOnError(err)
		return nil
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, info)
	}

	fmt.Fprintf(out, "Dataset:    %s\n", info.Name)
	fmt.Fprintf(out, "Created:    %s by %s\n", info.Created.Format(time.RFC3339), info.CreatedBy)
	fmt.Fprintf(out, "Documents:  %d\n", info.Documents)
	if info.LastSync != nil {
		fmt.Fprintf(out, "Last sync:  %s\n", info.LastSync.Format(time.RFC3339))
	}
	if len(info.Keys) > 0 {
		fmt.Fprintf(out, "Keys:       %s\n", strings.Join(info.Keys, ", "))
	}
	if info.Tracker != nil {
		fmt.Fprintf(out, "Tracker:    enabled=%t board=%s\n", info.Tracker.Enabled, info.Tracker.BoardID)
		for _, b := range info.Tracker.FieldMapping {
			fmt.Fprintf(out, "  %-16s -> %s\n", b.Field, b.Column)
		}
	}
	return nil
}

func describeDataset(ctx context.Context, a *app, name string) (*datasetInfo, error) {
	ds, err := a.store.GetDataset(ctx, name)
	if err != nil {
		return nil, err
	}
	keys, err := a.store.Keys(ctx, name)
	if err != nil {
		return nil, err
	}
	page, err := a.store.PagedFind(ctx, name, model.CollectionData, nil, storage.FindOptions{}, 1, 1)
	if err != nil {
		return nil, err
	}
	info := &datasetInfo{Dataset: ds, Keys: keys, Documents: page.Total}
	if at, err := a.store.LastSync(ctx, name); err == nil && !at.IsZero() {
		info.LastSync = &at
	}
	return info, nil
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(false)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	datasets, err := a.store.ListDatasets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, datasets)
	}
	if len(datasets) == 0 {
		fmt.Fprintln(out, "No datasets.")
		return nil
	}
	for _, ds := range datasets {
		tracker := ""
		if ds.TrackerEnabled() {
			tracker = " (tracker)"
		}
		fmt.Fprintf(out, "%s%s\n", ds.Name, tracker)
	}
	return nil
}

func runDatasetKeys(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	if len(args) > 0 {
		if err := a.store.SetKeys(ctx, a.ws.Dataset, args); err != nil {
			exitOnError(err)
			return nil
		}
	}
	keys, err := a.store.Keys(ctx, a.ws.Dataset)
	if err != nil {
		exitOnError(err)
		return nil
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, map[string]interface{}{"dataset": a.ws.Dataset, "keys": keys})
	}
	for _, k := range keys {
		fmt.Fprintln(out, k)
	}
	return nil
}

func runDatasetDrop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]
	a, err := openApp(false)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	if _, err := a.store.GetDataset(ctx, name); err != nil {
		exitOnError(err)
		return nil
	}

	out := cmd.OutOrStdout()
	if !dsDropYes {
		fmt.Fprintf(out, "Are you sure you want to delete dataset '%s'? This cannot be undone. [y/N] ", name)
		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return fmt.Errorf("failed to read response: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := a.store.DropDataset(ctx, name); err != nil {
		return fmt.Errorf("failed to drop dataset: %w", err)
	}

	if GetJSONOutput() {
		return printJSON(out, map[string]interface{}{"name": name, "deleted": true})
	}
	if !IsQuiet() {
		fmt.Fprintf(out, "Deleted dataset '%s'\n", name)
	}
	return nil
}
