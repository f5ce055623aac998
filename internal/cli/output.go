package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/user/gridsync/internal/model"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// maxCellWidth caps table columns.
const maxCellWidth = 40

// outputFormat returns the requested format; --json wins over --format.
func outputFormat(format string) (string, error) {
	if GetJSONOutput() {
		return FormatJSON, nil
	}
	switch f := strings.ToLower(format); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (use table, json or yaml)", ErrUsage, format)
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

// printValue writes v as JSON or YAML.
func printValue(w io.Writer, format string, v interface{}) error {
	if format == FormatYAML {
		return printYAML(w, v)
	}
	return printJSON(w, v)
}

// documents flattens records for output.
func documents(recs []*model.Record) []map[string]interface{} {
	docs := make([]map[string]interface{}, 0, len(recs))
	for _, r := range recs {
		docs = append(docs, r.Document())
	}
	return docs
}

// tableColumns returns _id followed by every other field name, sorted.
func tableColumns(rows []map[string]interface{}) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for k := range row {
			if k != model.IDField && !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return append([]string{model.IDField}, cols...)
}

// printTable writes rows as aligned columns. Cell text is flattened to one
// line and truncated.
func printTable(w io.Writer, columns []string, rows []map[string]interface{}) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	cell := func(row map[string]interface{}, col string) string {
		v, ok := row[col]
		if !ok || v == nil {
			return ""
		}
		return strings.Join(strings.Fields(fmt.Sprint(v)), " ")
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	for _, row := range rows {
		for i, col := range columns {
			if n := len(cell(row, col)); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for i := range widths {
		if widths[i] > maxCellWidth {
			widths[i] = maxCellWidth
		}
	}

	header := make([]string, len(columns))
	separator := make([]string, len(columns))
	for i, col := range columns {
		header[i] = fmt.Sprintf("%-*s", widths[i], col)
		separator[i] = strings.Repeat("-", widths[i])
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(header, "  "), " "))
	fmt.Fprintln(w, strings.Join(separator, "  "))

	for _, row := range rows {
		parts := make([]string, len(columns))
		for i, col := range columns {
			val := cell(row, col)
			if len(val) > widths[i] {
				val = val[:widths[i]-3] + "..."
			}
			parts[i] = fmt.Sprintf("%-*s", widths[i], val)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
}
