package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/storage"
)

// testEnv is a working directory with an (initially empty) data directory.
type testEnv struct {
	dir     string
	dataDir string
}

// setupTestEnv chdirs into a fresh directory, isolates the environment and
// captures exit codes instead of exiting.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))

	env := &testEnv{dir: dir, dataDir: filepath.Join(dir, ".gridsync")}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GRIDSYNC_DATA_DIR", env.dataDir)
	t.Setenv("GRIDSYNC_DATASET", "")
	t.Setenv("GRIDSYNC_ACTOR", "tester")
	t.Setenv("GRIDSYNC_TRACKER_URL", "")

	origExitFunc := ExitFunc
	ExitFunc = func(code int) {
		ExitCode = code
		// Don't actually exit in tests
	}
	ExitCode = 0

	t.Cleanup(func() {
		os.Chdir(origDir)
		ExitFunc = origExitFunc
		ExitCode = 0
		resetFlags()
	})
	return env
}

// writeConfig writes gridsync.yaml into the data directory.
func (e *testEnv) writeConfig(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.dataDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.dataDir, "gridsync.yaml"), []byte(content), 0644))
}

// resetFlags resets global command flags for test isolation
func resetFlags() {
	// Global flags
	jsonOutput = false
	datasetName = ""
	actorName = ""
	configPath = ""
	dataDirFlag = ""
	quiet = false
	verbose = false
	// dataset
	dsCreateTracker = false
	dsCreateBoard = ""
	dsCreateMap = nil
	dsCreateKeys = nil
	dsDropYes = false
	// insert
	insertSet = nil
	insertFile = ""
	insertCollection = model.CollectionData
	// query
	queryFilters = nil
	queryExprs = nil
	querySorts = nil
	queryChronology = filter.Desc
	queryPage = 1
	queryPerPage = storage.DefaultPerPage
	queryCollection = model.CollectionData
	queryFormat = FormatTable
	// archive
	archiveTo = ""
	archiveFilters = nil
	archiveCollection = model.CollectionData
	// issues
	issuesType = ""
	// history
	historyUser = ""
	historyColumn = ""
	historySince = ""
	historyLimit = 50
	historyFormat = FormatTable
	// maintenance and watch
	rebuildAll = false
	watchTail = 0

	var unmark func(c *cobra.Command)
	unmark = func(c *cobra.Command) {
		reset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			unmark(sub)
		}
	}
	unmark(rootCmd)
}

// result is the outcome of one command invocation.
type result struct {
	Stdout string
	Stderr string
	Code   int
	Err    error
}

// run executes the root command with args, feeding stdin.
func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	resetFlags()
	ExitCode = 0

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()

	return result{Stdout: stdout.String(), Stderr: stderr.String(), Code: ExitCode, Err: err}
}

// mustRun executes a command that is expected to succeed.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	res := run(t, "", args...)
	require.NoError(t, res.Err, "gridsync %s", strings.Join(args, " "))
	require.Equal(t, 0, res.Code, "gridsync %s: %s", strings.Join(args, " "), res.Stderr)
	return res.Stdout
}

// decodeJSON decodes command output into a generic map.
func decodeJSON(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &v), "output: %s", out)
	return v
}

// queryRows runs query --json and returns the data rows.
func queryRows(t *testing.T, args ...string) []map[string]interface{} {
	t.Helper()
	out := mustRun(t, append([]string{"query", "--json"}, args...)...)
	var page struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page), "output: %s", out)
	return page.Data
}
