package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/user/gridsync/internal/archive"
	"github.com/user/gridsync/internal/reconcile"
)

var editCmd = &cobra.Command{
	Use:   "edit [request.json]",
	Short: "Apply a grid cell edit",
	Long: `Apply one cell edit the way the grid sends it. The request is read from
the given file, or from stdin when no file (or -) is given:

  {
    "dsName": "board",
    "column": "Details",
    "selectorObj": { "_id": "...", "Details": "<row as loaded>", ... },
    "editObj":     { "Details": "<new cell content>" },
    "dsUser": "alice"
  }

dsName defaults to the current dataset and dsUser to the acting user.
For tracker datasets the edit is checked against the live issue and
written to the tracker before the row is updated.

The response is printed as JSON. Exit codes: 0 success (including edits
that changed nothing in the tracker), 1 row not found, 2 invalid or not
editable, 3 stale row or key conflict, 4 tracker or store failure.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEdit,
}

func init() {
	rootCmd.AddCommand(editCmd)
}

func readEditRequest(r io.Reader) (reconcile.EditRequest, error) {
	var req reconcile.EditRequest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: edit request: %v", ErrUsage, err)
	}
	return req, nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	r, closeFn, err := openInput(cmd, path)
	if err != nil {
		return fmt.Errorf("failed to open request: %w", err)
	}
	req, err := readEditRequest(r)
	closeFn()
	if err != nil {
		exitOnError(err)
		return nil
	}

	if req.Dataset != "" && datasetName == "" {
		datasetName = req.Dataset
	}
	a, err := openApp(true)
	if err != nil {
		exitOnError(err)
		return nil
	}
	defer a.Close()

	if req.Dataset == "" {
		req.Dataset = a.ws.Dataset
	}
	if req.User == "" {
		req.User = a.ws.Actor
	}

	allowed, err := a.checker().Allowed(ctx, req.Dataset, req.User)
	if err != nil {
		return err
	}
	if !allowed {
		exitOnError(&archive.AccessDeniedError{Dataset: req.Dataset})
		return nil
	}

	rec, err := a.reconciler()
	if err != nil {
		exitOnError(err)
		return nil
	}
	resp := rec.Edit(ctx, req)

	out := cmd.OutOrStdout()
	if err := printJSON(out, resp); err != nil {
		return err
	}
	if resp.Status == reconcile.StatusFail {
		code, _ := kindExit(reconcile.Kind(resp.Err))
		Exit(code)
	}
	return nil
}
