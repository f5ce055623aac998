package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/reconcile"
)

// editRequest renders an edit request as the grid sends it.
func editRequest(t *testing.T, dataset string, row map[string]interface{}, column string, value interface{}) string {
	t.Helper()
	data, err := json.Marshal(reconcile.EditRequest{
		Dataset:  dataset,
		Selector: row,
		Column:   column,
		EditObj:  map[string]interface{}{column: value},
	})
	require.NoError(t, err)
	return string(data)
}

func decodeResponse(t *testing.T, out string) reconcile.Response {
	t.Helper()
	var resp reconcile.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestEdit_Local(t *testing.T) {
	t.Run("updates the row", func(t *testing.T) {
		setupTestEnv(t)
		seedBoard(t)
		row := queryRows(t, "--filter", "Status:eq:open")[0]

		res := run(t, editRequest(t, "board", row, "Status", "review"), "edit")
		require.NoError(t, res.Err)
		assert.Equal(t, 0, res.Code)
		resp := decodeResponse(t, res.Stdout)
		assert.Equal(t, reconcile.StatusSuccess, resp.Status)
		assert.Equal(t, map[string]interface{}{"Status": "review"}, resp.Record)

		rows := queryRows(t, "--filter", "Title:eq:Fix login")
		require.Len(t, rows, 1)
		assert.Equal(t, "review", rows[0]["Status"])
	})

	t.Run("request from a file", func(t *testing.T) {
		env := setupTestEnv(t)
		seedBoard(t)
		row := queryRows(t, "--filter", "Status:eq:open")[0]

		path := filepath.Join(env.dir, "edit.json")
		require.NoError(t, os.WriteFile(path, []byte(editRequest(t, "", row, "Points", 8)), 0644))

		out := mustRun(t, "edit", path)
		assert.Equal(t, reconcile.StatusSuccess, decodeResponse(t, out).Status)

		rows := queryRows(t, "--filter", "Points:=:8")
		require.Len(t, rows, 1)
		assert.Equal(t, "Fix login", rows[0]["Title"])
	})

	t.Run("stale row", func(t *testing.T) {
		setupTestEnv(t)
		seedBoard(t)
		row := queryRows(t, "--filter", "Status:eq:open")[0]
		mustRunStdin(t, editRequest(t, "board", row, "Status", "review"), "edit")

		// The same selector no longer matches.
		res := run(t, editRequest(t, "board", row, "Status", "closed"), "edit")
		assert.Equal(t, exitConflict, res.Code)
		resp := decodeResponse(t, res.Stdout)
		assert.Equal(t, reconcile.StatusFail, resp.Status)
		require.NotNil(t, resp.Current)
		assert.Equal(t, row[model.IDField], resp.Current.ID)
		assert.Equal(t, "review", resp.Current.Value)
	})

	t.Run("missing row", func(t *testing.T) {
		setupTestEnv(t)
		seedBoard(t)
		row := map[string]interface{}{model.IDField: "0190a5f0-0000-7000-8000-000000000000", "Status": "open"}

		res := run(t, editRequest(t, "board", row, "Status", "review"), "edit")
		assert.Equal(t, exitNotFound, res.Code)
	})

	t.Run("invalid request", func(t *testing.T) {
		setupTestEnv(t)
		seedBoard(t)

		res := run(t, `{"dsName":"board","column":"Status","selectorObj":{},"editObj":{}}`, "edit")
		assert.Equal(t, exitValidation, res.Code)
		assert.Equal(t, reconcile.StatusFail, decodeResponse(t, res.Stdout).Status)

		res = run(t, `not json`, "edit")
		assert.Equal(t, exitValidation, res.Code)
	})

	t.Run("key conflict", func(t *testing.T) {
		setupTestEnv(t)
		seedBoard(t)
		mustRun(t, "dataset", "keys", "Title")
		row := queryRows(t, "--filter", "Status:eq:open")[0]

		res := run(t, editRequest(t, "board", row, "Title", "Add export"), "edit")
		assert.Equal(t, exitConflict, res.Code)
		assert.Equal(t, reconcile.StatusFail, decodeResponse(t, res.Stdout).Status)

		assert.Len(t, queryRows(t, "--filter", "Title:eq:Add export"), 1)
	})

	t.Run("edits are audited", func(t *testing.T) {
		setupTestEnv(t)
		seedBoard(t)
		row := queryRows(t, "--filter", "Status:eq:open")[0]
		mustRunStdin(t, editRequest(t, "board", row, "Status", "review"), "edit")

		var entries []reconcile.AuditEntry
		require.NoError(t, json.Unmarshal([]byte(mustRun(t, "history", "--json")), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "tester", entries[0].User)
		assert.Equal(t, "Status", entries[0].Column)
		assert.Equal(t, "review", entries[0].NewVal)
		assert.Equal(t, reconcile.StatusSuccess, entries[0].Status)
	})
}

func TestEdit_AccessControl(t *testing.T) {
	env := setupTestEnv(t)
	seedBoard(t)
	env.writeConfig(t, "acl:\n  board:\n    - alice\n")
	row := queryRows(t, "--filter", "Status:eq:open")[0]

	t.Run("denied", func(t *testing.T) {
		res := run(t, editRequest(t, "board", row, "Status", "review"), "edit", "--json")
		assert.Equal(t, exitValidation, res.Code)
		assert.Equal(t, ErrCodeAccessDenied, decodeJSON(t, res.Stdout)["code"])

		assert.Len(t, queryRows(t, "--filter", "Status:eq:open"), 1)
	})

	t.Run("allowed", func(t *testing.T) {
		res := run(t, editRequest(t, "board", row, "Status", "review"), "edit", "--actor", "Alice")
		require.NoError(t, res.Err)
		assert.Equal(t, 0, res.Code)
		assert.Equal(t, reconcile.StatusSuccess, decodeResponse(t, res.Stdout).Status)
	})
}

// mustRunStdin executes a command reading stdin that is expected to succeed.
func mustRunStdin(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	res := run(t, stdin, args...)
	require.NoError(t, res.Err)
	require.Equal(t, 0, res.Code, res.Stdout+res.Stderr)
	return res.Stdout
}
