package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/gridsync/internal/archive"
	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/storage"
)

var (
	queryFilters    []string
	queryExprs      []string
	querySorts      []string
	queryChronology string
	queryPage       int
	queryPerPage    int
	queryCollection string
	queryFormat     string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query documents with grid filters",
	Long: `Query a dataset collection with the filters the grid sends.

Filters are field:op:value triples. Operators:
  eq    equals
  =     numeric equals
  gt    greater than (numbers; identifiers for _id and cutOffDate)
  lt    less than
  like  case-insensitive regular expression, or an expression with && and ||

The cutOffDate field filters on creation time: dd-mm-yyyy or natural
language such as "2 weeks ago".

Expressions (--expr) apply the filter language to one column:
  Column=expression   e.g. Status='(=open || =review) && !=closed'

Examples:
  gridsync query --filter Status:eq:open
  gridsync query --filter Title:like:'bug && !wontfix' --sort Points:desc
  gridsync query --filter cutOffDate:gt:01-01-2024 --format yaml
  gridsync query --expr 'Owner=alice || bob' --page 2 --per-page 20`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "Filter as field:op:value (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryExprs, "expr", nil, "Filter expression as column=expression (repeatable)")
	queryCmd.Flags().StringArrayVar(&querySorts, "sort", nil, "Sort as field:asc|desc (repeatable)")
	queryCmd.Flags().StringVar(&queryChronology, "chronology", filter.Desc, "Creation order when no sort is given: asc or desc")
	queryCmd.Flags().IntVar(&queryPage, "page", 1, "Page number (1-based)")
	queryCmd.Flags().IntVar(&queryPerPage, "per-page", storage.DefaultPerPage, "Documents per page")
	queryCmd.Flags().StringVar(&queryCollection, "collection", model.CollectionData, "Collection to query")
	queryCmd.Flags().StringVar(&queryFormat, "format", FormatTable, "Output format: table, json or yaml")
	rootCmd.AddCommand(queryCmd)
}

// parseFilters reads field:op:value triples. Cutoff values are resolved
// to instants relative to now.
func parseFilters(specs []string, now time.Time) ([]filter.QueryFilter, error) {
	filters := make([]filter.QueryFilter, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w: filter %q must be field:op:value", ErrUsage, spec)
		}
		f := filter.QueryFilter{Field: parts[0], Type: parts[1], Value: parts[2]}
		if f.Field == filter.CutoffField {
			at, err := archive.ParseCutoff(parts[2], now)
			if err != nil {
				return nil, err
			}
			f.Value = at
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func parseSorters(specs []string) ([]filter.QuerySorter, error) {
	sorters := make([]filter.QuerySorter, 0, len(specs))
	for _, spec := range specs {
		field, dir, ok := strings.Cut(spec, ":")
		if !ok {
			dir = filter.Asc
		}
		dir = strings.ToLower(dir)
		if field == "" || (dir != filter.Asc && dir != filter.Desc) {
			return nil, fmt.Errorf("%w: sort %q must be field:asc or field:desc", ErrUsage, spec)
		}
		sorters = append(sorters, filter.QuerySorter{Field: field, Dir: dir})
	}
	return sorters, nil
}

// compileExprs compiles column=expression flags.
func compileExprs(specs []string) ([]filter.Predicate, error) {
	var preds []filter.Predicate
	for _, spec := range specs {
		column, text, ok := strings.Cut(spec, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("%w: expression %q must be column=expression", ErrUsage, spec)
		}
		p, err := filter.Compile(text, column)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUsage, err)
		}
		if p != nil {
			preds = append(preds, p)
		}
	}
	return preds, nil
}

// buildQuery combines structured filters and expressions into one predicate.
func buildQuery(a *app, now time.Time) (filter.Predicate, filter.SortSpec, error) {
	filters, err := parseFilters(queryFilters, now)
	if err != nil {
		return nil, nil, err
	}
	sorters, err := parseSorters(querySorts)
	if err != nil {
		return nil, nil, err
	}
	exprs, err := compileExprs(queryExprs)
	if err != nil {
		return nil, nil, err
	}

	pred, spec := filter.NewCompiler(a.logger).Assemble(filters, sorters, queryChronology)
	if len(exprs) == 0 {
		return pred, spec, nil
	}
	if pred != nil {
		exprs = append([]filter.Predicate{pred}, exprs...)
	}
	if len(exprs) == 1 {
		return exprs[0], spec, nil
	}
	return filter.And{Predicates: exprs}, spec, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, err := outputFormat(queryFormat)
	if err != nil {
		exitOnError(err)
		return nil
	}

	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	where, spec, err := buildQuery(a, time.Now())
	if err != nil {
		exitOnError(err)
		return nil
	}

	page, err := a.store.PagedFind(ctx, a.ws.Dataset, queryCollection, where,
		storage.FindOptions{Sort: spec}, queryPage, queryPerPage)
	if err != nil {
		exitOnError(err)
		return nil
	}

	out := cmd.OutOrStdout()
	switch format {
	case FormatJSON:
		return printJSON(out, page)
	case FormatYAML:
		return printYAML(out, map[string]interface{}{
			"data":        documents(page.Data),
			"page":        page.Page,
			"per_page":    page.PerPage,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		})
	}

	rows := documents(page.Data)
	printTable(out, tableColumns(rows), rows)
	if len(rows) > 0 && !IsQuiet() {
		fmt.Fprintf(out, "\nPage %d/%d (%d documents)\n", page.Page, page.TotalPages, page.Total)
	}
	return nil
}
