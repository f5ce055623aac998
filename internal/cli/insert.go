package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gridsync/internal/model"
)

var (
	insertSet        []string
	insertFile       string
	insertCollection string
)

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert documents",
	Long: `Insert one document built from --set pairs, or the documents read from a
file (or stdin with --file -) holding one JSON object, a JSON array of
objects, or one object per line.

--set values that parse as JSON (numbers, true, false, null, quoted strings)
are stored as such; anything else is stored as text.

Examples:
  gridsync insert --set Title="Fix login" --set Points=3
  gridsync insert --file rows.jsonl`,
	Args: cobra.NoArgs,
	RunE: runInsert,
}

func init() {
	insertCmd.Flags().StringArrayVar(&insertSet, "set", nil, "Field as column=value (repeatable)")
	insertCmd.Flags().StringVar(&insertFile, "file", "", "Read documents from a file (- for stdin)")
	insertCmd.Flags().StringVar(&insertCollection, "collection", model.CollectionData, "Target collection")
	rootCmd.AddCommand(insertCmd)
}

// parseSet builds a document from column=value pairs.
func parseSet(pairs []string) (map[string]interface{}, error) {
	doc := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		col, raw, ok := strings.Cut(p, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, fmt.Errorf("%w: %q must be column=value", ErrUsage, p)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		doc[col] = v
	}
	return doc, nil
}

// readDocuments decodes one object, an array of objects or JSON lines.
func readDocuments(r io.Reader) ([]map[string]interface{}, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no documents", ErrUsage)
	}

	if data[0] == '[' {
		var docs []map[string]interface{}
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUsage, err)
		}
		return docs, nil
	}

	var docs []map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var doc map[string]interface{}
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUsage, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// openInput opens path, or stdin for "" and "-".
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return bufio.NewReader(cmd.InOrStdin()), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func runInsert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var docs []map[string]interface{}
	switch {
	case len(insertSet) > 0 && insertFile != "":
		exitOnError(fmt.Errorf("%w: use either --set or --file", ErrUsage))
		return nil
	case len(insertSet) > 0:
		doc, err := parseSet(insertSet)
		if err != nil {
			exitOnError(err)
			return nil
		}
		docs = append(docs, doc)
	case insertFile != "":
		r, closeFn, err := openInput(cmd, insertFile)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		docs, err = readDocuments(r)
		closeFn()
		if err != nil {
			exitOnError(err)
			return nil
		}
	default:
		exitOnError(fmt.Errorf("%w: nothing to insert (use --set or --file)", ErrUsage))
		return nil
	}

	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := a.store.InsertOne(ctx, a.ws.Dataset, insertCollection, doc)
		if err != nil {
			exitOnError(err)
			return nil
		}
		ids = append(ids, id)
	}

	out := cmd.OutOrStdout()
	if GetJSONOutput() {
		return printJSON(out, map[string]interface{}{"dataset": a.ws.Dataset, "ids": ids})
	}
	if !IsQuiet() {
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
	}
	return nil
}
