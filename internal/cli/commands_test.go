package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/reconcile"
	"github.com/user/gridsync/internal/storage"
)

// insertOld inserts documents whose identifiers date from created.
func insertOld(t *testing.T, dataset string, created time.Time, titles ...string) {
	t.Helper()
	docs := make([]map[string]interface{}, 0, len(titles))
	for i, title := range titles {
		id, err := model.IDFromTime(created.Add(time.Duration(i) * time.Millisecond))
		require.NoError(t, err)
		docs = append(docs, map[string]interface{}{model.IDField: id, "Title": title})
	}
	data, err := json.Marshal(docs)
	require.NoError(t, err)
	mustRunStdin(t, string(data), "insert", "--file", "-", "--dataset", dataset)
}

func TestArchive(t *testing.T) {
	setup := func(t *testing.T) *testEnv {
		env := setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")
		mustRun(t, "dataset", "create", "board_archive")
		insertOld(t, "board", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), "old one", "old two")
		mustRun(t, "insert", "--set", "Title=new", "--dataset", "board")
		return env
	}

	t.Run("moves documents before the cutoff", func(t *testing.T) {
		setup(t)

		out := mustRun(t, "archive", "--dataset", "board", "--to", "board_archive",
			"--filter", "cutOffDate:lt:01-01-2024")
		assert.Equal(t, "Successfully archived 2 documents from board to board_archive\n", out)

		assert.Equal(t, []string{"new"}, titles(queryRows(t, "--dataset", "board")))
		assert.Equal(t, []string{"old one", "old two"},
			titles(queryRows(t, "--dataset", "board_archive", "--chronology", "asc")))
	})

	t.Run("json result", func(t *testing.T) {
		setup(t)

		out := mustRun(t, "archive", "--dataset", "board", "--to", "board_archive",
			"--filter", "Title:like:old", "--json")
		got := decodeJSON(t, out)
		assert.EqualValues(t, 2, got["moved"])
	})

	t.Run("requires filters", func(t *testing.T) {
		setup(t)

		res := run(t, "", "archive", "--dataset", "board", "--to", "board_archive")
		assert.Equal(t, exitValidation, res.Code)
		assert.Len(t, queryRows(t, "--dataset", "board"), 3)
	})

	t.Run("unknown archive dataset", func(t *testing.T) {
		setup(t)

		res := run(t, "", "archive", "--dataset", "board", "--to", "nowhere",
			"--filter", "cutOffDate:lt:01-01-2024")
		assert.Equal(t, exitNotFound, res.Code)
	})

	t.Run("access to the archive is checked", func(t *testing.T) {
		env := setup(t)
		env.writeConfig(t, "acl:\n  board_archive:\n    - alice\n")

		res := run(t, "", "archive", "--dataset", "board", "--to", "board_archive",
			"--filter", "cutOffDate:lt:01-01-2024", "--json")
		assert.Equal(t, exitValidation, res.Code)
		assert.Equal(t, ErrCodeAccessDenied, decodeJSON(t, res.Stdout)["code"])
		assert.Len(t, queryRows(t, "--dataset", "board"), 3)
	})
}

func TestHistory(t *testing.T) {
	setupTestEnv(t)
	seedBoard(t)

	row := queryRows(t, "--filter", "Status:eq:open")[0]
	mustRunStdin(t, editRequest(t, "board", row, "Status", "review"), "edit", "--actor", "alice")
	row = queryRows(t, "--filter", "Status:eq:closed")[0]
	mustRunStdin(t, editRequest(t, "board", row, "Points", 2), "edit", "--actor", "bob")

	history := func(t *testing.T, args ...string) []reconcile.AuditEntry {
		t.Helper()
		var entries []reconcile.AuditEntry
		out := mustRun(t, append([]string{"history", "--json"}, args...)...)
		require.NoError(t, json.Unmarshal([]byte(out), &entries), out)
		return entries
	}

	t.Run("newest first", func(t *testing.T) {
		entries := history(t)
		require.Len(t, entries, 2)
		assert.Equal(t, "bob", entries[0].User)
		assert.Equal(t, "alice", entries[1].User)
		assert.Equal(t, "open", entries[1].OldVal)
	})

	t.Run("by user", func(t *testing.T) {
		entries := history(t, "--user", "alice")
		require.Len(t, entries, 1)
		assert.Equal(t, "Status", entries[0].Column)
	})

	t.Run("by column", func(t *testing.T) {
		entries := history(t, "--column", "Points")
		require.Len(t, entries, 1)
		assert.Equal(t, float64(2), entries[0].NewVal)
	})

	t.Run("limit", func(t *testing.T) {
		assert.Len(t, history(t, "--limit", "1"), 1)
	})

	t.Run("since", func(t *testing.T) {
		assert.Len(t, history(t, "--since", "01-01-2000"), 2)
		assert.Empty(t, history(t, "--since", "01-01-2999"))
	})

	t.Run("table", func(t *testing.T) {
		out := mustRun(t, "history")
		assert.True(t, strings.HasPrefix(out, "date"), out)
		assert.Contains(t, out, "alice")
		assert.Contains(t, out, "success")
	})

	t.Run("bad since", func(t *testing.T) {
		res := run(t, "", "history", "--since", "xyzzy")
		assert.Equal(t, exitValidation, res.Code)
	})
}

func TestHistory_Empty(t *testing.T) {
	setupTestEnv(t)
	mustRun(t, "dataset", "create", "board")

	assert.Equal(t, "No edits.\n", mustRun(t, "history"))
	assert.Equal(t, "[]\n", mustRun(t, "history", "--json"))
}

func TestRebuild(t *testing.T) {
	env := setupTestEnv(t)
	seedBoard(t)

	// Hand-append a document to the operation log.
	id, err := model.NewID()
	require.NoError(t, err)
	line := fmt.Sprintf(`{"_id":%q,"_collection":"data","_op":"create","_at":"2024-01-01T00:00:00Z","Title":"by hand"}`+"\n", id)
	f, err := os.OpenFile(filepath.Join(env.dataDir, "board", storage.RecordsFile), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Len(t, queryRows(t), 3)

	out := mustRun(t, "rebuild")
	assert.Equal(t, "Rebuilt cache for 'board'\n", out)
	assert.Len(t, queryRows(t), 4)

	t.Run("all datasets", func(t *testing.T) {
		mustRun(t, "dataset", "create", "notes")
		got := decodeJSON(t, mustRun(t, "rebuild", "--all", "--json"))
		assert.ElementsMatch(t, []interface{}{"board", "notes"}, got["rebuilt"])
	})
}

func TestCompact(t *testing.T) {
	env := setupTestEnv(t)
	seedBoard(t)
	row := queryRows(t, "--filter", "Status:eq:open")[0]
	mustRunStdin(t, editRequest(t, "board", row, "Status", "review"), "edit")

	logPath := filepath.Join(env.dataDir, "board", storage.RecordsFile)
	before, err := os.ReadFile(logPath)
	require.NoError(t, err)

	out := mustRun(t, "compact")
	assert.Contains(t, out, "Compacted 'board':")

	after, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Less(t, strings.Count(string(after), "\n"), strings.Count(string(before), "\n"))

	mustRun(t, "rebuild")
	rows := queryRows(t, "--filter", "Title:eq:Fix login")
	require.Len(t, rows, 1)
	assert.Equal(t, "review", rows[0]["Status"])
}

func TestWatchTail(t *testing.T) {
	t.Run("prints the last lines", func(t *testing.T) {
		env := setupTestEnv(t)
		logPath := filepath.Join(env.dir, "watch.log")
		require.NoError(t, os.WriteFile(logPath, []byte("one\ntwo\nthree\n"), 0644))
		env.writeConfig(t, "log:\n  file: "+logPath+"\n")

		assert.Equal(t, "two\nthree\n", mustRun(t, "watch", "--tail", "2"))
	})

	t.Run("needs a log file", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		res := run(t, "", "watch", "--tail", "5")
		assert.Equal(t, exitValidation, res.Code)
	})
}

func TestConfigFlag(t *testing.T) {
	env := setupTestEnv(t)
	mustRun(t, "dataset", "create", "board")

	t.Run("missing file", func(t *testing.T) {
		res := run(t, "", "dataset", "list", "--config", filepath.Join(env.dir, "missing.yaml"))
		assert.Equal(t, 1, res.Code)
		assert.Contains(t, res.Stderr, "failed to read config")
	})

	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(env.dir, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("acl:\n  board:\n    - alice\n"), 0644))
		row := map[string]interface{}{model.IDField: "0190a5f0-0000-7000-8000-000000000000"}

		res := run(t, editRequest(t, "board", row, "Status", "x"), "edit", "--config", path, "--json")
		assert.Equal(t, ErrCodeAccessDenied, decodeJSON(t, res.Stdout)["code"])
	})
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)

	assert.Equal(t, "gridsync version dev\n", mustRun(t, "version"))

	got := decodeJSON(t, mustRun(t, "version", "--json"))
	assert.Equal(t, "dev", got["version"])

	assert.Contains(t, mustRun(t, "version", "--verbose"), "commit:")
}
