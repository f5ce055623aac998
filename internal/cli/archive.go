package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/gridsync/internal/archive"
	"github.com/user/gridsync/internal/model"
)

var (
	archiveTo         string
	archiveFilters    []string
	archiveCollection string
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move old documents into an archive dataset",
	Long: `Move the documents of the current dataset that match the filters into
another dataset. The filters use the query syntax; the cutOffDate field
selects documents created before (lt) or after (gt) a date given as
dd-mm-yyyy or in natural language.

Both datasets must exist and the acting user must have access to both.

Examples:
  gridsync archive --to board_archive --filter cutOffDate:lt:01-01-2024
  gridsync archive --to board_archive --filter 'cutOffDate:lt:3 months ago' --filter Status:eq:done`,
	Args: cobra.NoArgs,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().StringVar(&archiveTo, "to", "", "Archive dataset")
	archiveCmd.Flags().StringArrayVar(&archiveFilters, "filter", nil, "Filter as field:op:value (repeatable)")
	archiveCmd.Flags().StringVar(&archiveCollection, "collection", model.CollectionData, "Collection to archive")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	filters, err := parseFilters(archiveFilters, time.Now())
	if err != nil {
		exitOnError(err)
		return nil
	}
	if archiveFilters == nil {
		filters = nil
	}

	svc := archive.NewService(a.store, a.checker(), a.logger)
	res, err := svc.Archive(ctx, archive.Request{
		Source:     a.ws.Dataset,
		Archive:    archiveTo,
		Collection: archiveCollection,
		Filters:    filters,
		User:       a.ws.Actor,
	})
	if err != nil {
		exitOnError(err)
		return nil
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, res)
	}
	if !IsQuiet() {
		fmt.Fprintln(out, res.Status)
	}
	return nil
}
