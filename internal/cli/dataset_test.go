package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gridsync/internal/storage"
)

func TestDatasetCreate(t *testing.T) {
	t.Run("creates the dataset directory", func(t *testing.T) {
		env := setupTestEnv(t)

		out := mustRun(t, "dataset", "create", "board")
		assert.Contains(t, out, "Created dataset 'board'")

		_, err := os.Stat(filepath.Join(env.dataDir, "board", storage.ConfigFile))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(env.dataDir, "board", storage.RecordsFile))
		assert.NoError(t, err)
	})

	t.Run("with tracker mapping and keys", func(t *testing.T) {
		setupTestEnv(t)

		mustRun(t, "dataset", "create", "board", "--tracker", "--board", "12",
			"--map", "key=Work-id", "--map", "summary=Details", "--map", "description=Details",
			"--keys", "Work-id")

		info := decodeJSON(t, mustRun(t, "dataset", "show", "board", "--json"))
		assert.Equal(t, "board", info["name"])
		assert.Equal(t, "tester", info["created_by"])
		assert.Equal(t, []interface{}{"Work-id"}, info["keys"])
		assert.EqualValues(t, 0, info["documents"])

		trk, ok := info["jiraAgileConfig"].(map[string]interface{})
		require.True(t, ok, "tracker config missing: %v", info)
		assert.Equal(t, true, trk["jira"])
		assert.Equal(t, "12", trk["boardId"])
		assert.Len(t, trk["jiraFieldMapping"], 3)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		res := run(t, "", "dataset", "create", "board")
		assert.Equal(t, exitConflict, res.Code)
		assert.Contains(t, res.Stderr, "Error:")
	})

	t.Run("rejects malformed mappings", func(t *testing.T) {
		setupTestEnv(t)

		res := run(t, "", "dataset", "create", "board", "--map", "summary")
		assert.Equal(t, exitValidation, res.Code)
	})

	t.Run("json error output", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		res := run(t, "", "dataset", "create", "board", "--json")
		assert.Equal(t, exitConflict, res.Code)
		got := decodeJSON(t, res.Stdout)
		assert.Equal(t, true, got["error"])
		assert.Equal(t, ErrCodeConflict, got["code"])
	})
}

func TestDatasetList(t *testing.T) {
	setupTestEnv(t)

	assert.Contains(t, mustRun(t, "dataset", "list"), "No datasets.")

	mustRun(t, "dataset", "create", "board", "--tracker")
	mustRun(t, "dataset", "create", "notes")

	out := mustRun(t, "dataset", "list")
	assert.Contains(t, out, "board (tracker)")
	assert.Contains(t, out, "notes\n")
}

func TestDatasetKeys(t *testing.T) {
	setupTestEnv(t)
	mustRun(t, "dataset", "create", "board")

	assert.Empty(t, mustRun(t, "dataset", "keys"))

	out := mustRun(t, "dataset", "keys", "Work-id", "Sprint")
	assert.Equal(t, "Work-id\nSprint\n", out)

	got := decodeJSON(t, mustRun(t, "dataset", "keys", "--json"))
	assert.Equal(t, []interface{}{"Work-id", "Sprint"}, got["keys"])
}

func TestDatasetDrop(t *testing.T) {
	t.Run("with --yes", func(t *testing.T) {
		env := setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		out := mustRun(t, "dataset", "drop", "board", "--yes")
		assert.Contains(t, out, "Deleted dataset 'board'")
		_, err := os.Stat(filepath.Join(env.dataDir, "board"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("prompt declined", func(t *testing.T) {
		env := setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		res := run(t, "n\n", "dataset", "drop", "board")
		require.NoError(t, res.Err)
		assert.Contains(t, res.Stdout, "Aborted.")
		_, err := os.Stat(filepath.Join(env.dataDir, "board"))
		assert.NoError(t, err)
	})

	t.Run("prompt accepted", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		res := run(t, "yes\n", "dataset", "drop", "board")
		require.NoError(t, res.Err)
		assert.Contains(t, res.Stdout, "Deleted dataset 'board'")
	})

	t.Run("unknown dataset", func(t *testing.T) {
		setupTestEnv(t)

		res := run(t, "", "dataset", "drop", "missing", "--yes")
		assert.Equal(t, exitNotFound, res.Code)
	})
}

func TestDatasetResolution(t *testing.T) {
	t.Run("single dataset is the default", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		out := mustRun(t, "dataset", "show")
		assert.Contains(t, out, "Dataset:    board")
	})

	t.Run("several datasets need --dataset", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")
		mustRun(t, "dataset", "create", "notes")

		res := run(t, "", "query", "--json")
		assert.Equal(t, exitNotFound, res.Code)
		got := decodeJSON(t, res.Stdout)
		assert.Equal(t, ErrCodeNoDataset, got["code"])

		out := mustRun(t, "dataset", "show", "--dataset", "notes")
		assert.Contains(t, out, "Dataset:    notes")
	})

	t.Run("GRIDSYNC_DATASET", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")
		mustRun(t, "dataset", "create", "notes")
		t.Setenv("GRIDSYNC_DATASET", "notes")

		out := mustRun(t, "dataset", "show")
		assert.Contains(t, out, "Dataset:    notes")
	})
}
