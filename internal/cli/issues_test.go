package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gridsync/internal/config"
	"github.com/user/gridsync/internal/reconcile"
	"github.com/user/gridsync/internal/tracker"
	"github.com/user/gridsync/internal/tracker/trackertest"
)

const testTrackerURL = "https://jira.example.com"

// setupTracker points the CLI at a fake tracker holding PROJ-1 to PROJ-3
// and creates the tracker dataset "board".
func setupTracker(t *testing.T) *trackertest.Fake {
	t.Helper()
	setupTestEnv(t)
	t.Setenv("GRIDSYNC_TRACKER_URL", testTrackerURL+"/")

	fake := trackertest.New()
	fake.AddIssue(trackertest.Issue("PROJ-1", map[string]interface{}{
		"summary": "Fix login", "assignee": "alice", "type": "Bug",
	}))
	fake.AddIssue(trackertest.Issue("PROJ-2", map[string]interface{}{
		"summary": "Add export", "assignee": "carol", "type": "Story",
	}))
	fake.AddIssue(trackertest.Issue("PROJ-3", map[string]interface{}{
		"summary": "Fix typo", "type": "Bug",
	}))

	var gotURL string
	orig := newTrackerClient
	newTrackerClient = func(cfg config.TrackerConfig) (tracker.Client, error) {
		gotURL = cfg.URL
		return fake, nil
	}
	t.Cleanup(func() {
		newTrackerClient = orig
		assert.Equal(t, testTrackerURL, gotURL)
	})

	mustRun(t, "dataset", "create", "board", "--tracker",
		"--map", "key=Work-id", "--map", "summary=Title",
		"--map", "assignee=Owner", "--map", "type=Type",
		"--keys", "Work-id")
	return fake
}

func TestRefresh(t *testing.T) {
	fake := setupTracker(t)

	out := mustRun(t, "refresh", "PROJ-1", "PROJ-2")
	assert.Equal(t, "Refreshed 2 issue(s): 2 inserted, 0 updated\n", out)
	assert.Equal(t, []string{"PROJ-1", "PROJ-2"}, fake.Finds)

	rows := queryRows(t, "--sort", "Title:asc")
	require.Len(t, rows, 2)
	assert.Equal(t, "Add export", rows[0]["Title"])
	assert.Equal(t, "carol", rows[0]["Owner"])
	assert.Contains(t, rows[1]["Work-id"], "[PROJ-1]("+testTrackerURL+"/browse/PROJ-1)")

	t.Run("existing rows are updated", func(t *testing.T) {
		res := run(t, "", "refresh", "PROJ-1", "PROJ-3", "--json")
		require.NoError(t, res.Err)
		got := decodeJSON(t, res.Stdout)
		assert.EqualValues(t, 1, got["inserted"])
		assert.EqualValues(t, 1, got["updated"])
		assert.Len(t, queryRows(t), 3)
	})

	t.Run("unknown issue", func(t *testing.T) {
		res := run(t, "", "refresh", "PROJ-404")
		assert.Equal(t, exitUpstream, res.Code)
	})
}

func TestRefresh_NoTracker(t *testing.T) {
	setupTestEnv(t)
	mustRun(t, "dataset", "create", "board", "--map", "key=Work-id")

	res := run(t, "", "refresh", "PROJ-1", "--json")
	assert.Equal(t, exitUpstream, res.Code)
	assert.Equal(t, ErrCodeUpstream, decodeJSON(t, res.Stdout)["code"])
}

func TestAssigneesAndIssues(t *testing.T) {
	setupTracker(t)
	mustRun(t, "refresh", "PROJ-1", "PROJ-2", "PROJ-3")

	assert.Equal(t, "alice\ncarol\n", mustRun(t, "assignees"))
	assert.Equal(t, "PROJ-1\nPROJ-3\n", mustRun(t, "issues", "--type", "Bug"))

	got := decodeJSON(t, mustRun(t, "issues", "--type", "Epic", "--json"))
	assert.Equal(t, []interface{}{}, got["issues"])

	res := run(t, "", "issues")
	assert.Error(t, res.Err)
}

func TestEdit_Tracker(t *testing.T) {
	t.Run("pushes the change to the tracker", func(t *testing.T) {
		fake := setupTracker(t)
		mustRun(t, "refresh", "PROJ-1")
		row := queryRows(t)[0]

		out := mustRunStdin(t, editRequest(t, "board", row, "Owner", "bob"), "edit")
		assert.Equal(t, reconcile.StatusSuccess, decodeResponse(t, out).Status)

		require.Len(t, fake.Updates, 1)
		assert.Equal(t, "PROJ-1", fake.Updates[0].Key)
		assert.Equal(t, map[string]interface{}{"name": "bob"},
			fake.Updates[0].Fields[tracker.TrackerField("assignee")])

		assert.Equal(t, "bob", queryRows(t)[0]["Owner"])
	})

	t.Run("stale when the tracker changed", func(t *testing.T) {
		fake := setupTracker(t)
		mustRun(t, "refresh", "PROJ-1")
		row := queryRows(t)[0]
		fake.AddIssue(trackertest.Issue("PROJ-1", map[string]interface{}{
			"summary": "Fix login on mobile", "assignee": "alice", "type": "Bug",
		}))

		res := run(t, editRequest(t, "board", row, "Owner", "bob"), "edit")
		assert.Equal(t, exitConflict, res.Code)
		assert.Empty(t, fake.Updates)
		assert.Equal(t, "alice", queryRows(t)[0]["Owner"])
	})

	t.Run("key column is read-only", func(t *testing.T) {
		fake := setupTracker(t)
		mustRun(t, "refresh", "PROJ-1")
		row := queryRows(t)[0]

		res := run(t, editRequest(t, "board", row, "Work-id", "PROJ-9"), "edit")
		assert.Equal(t, exitValidation, res.Code)
		assert.Empty(t, fake.Updates)
	})

	t.Run("tracker failure", func(t *testing.T) {
		fake := setupTracker(t)
		mustRun(t, "refresh", "PROJ-1")
		row := queryRows(t)[0]
		fake.UpdateErr = errors.New("503 service unavailable")

		res := run(t, editRequest(t, "board", row, "Owner", "bob"), "edit")
		assert.Equal(t, exitUpstream, res.Code)
		resp := decodeResponse(t, res.Stdout)
		assert.Contains(t, resp.Error, "503 service unavailable")
		assert.Equal(t, "alice", queryRows(t)[0]["Owner"])
	})
}
