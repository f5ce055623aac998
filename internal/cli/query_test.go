package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
)

// seedBoard creates dataset "board" with three rows.
func seedBoard(t *testing.T) {
	t.Helper()
	mustRun(t, "dataset", "create", "board")
	mustRun(t, "insert", "--set", "Title=Fix login", "--set", "Status=open", "--set", "Points=3")
	mustRun(t, "insert", "--set", "Title=Add export", "--set", "Status=review", "--set", "Points=5")
	mustRun(t, "insert", "--set", "Title=Fix typo", "--set", "Status=closed", "--set", "Points=1")
}

func titles(rows []map[string]interface{}) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r["Title"].(string))
	}
	return out
}

func TestInsert(t *testing.T) {
	t.Run("set values are typed", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		out := mustRun(t, "insert", "--set", "Title=Fix login", "--set", "Points=3", "--set", "Done=false")
		id := strings.TrimSpace(out)
		_, err := model.ParseID(id)
		require.NoError(t, err)

		rows := queryRows(t)
		require.Len(t, rows, 1)
		assert.Equal(t, id, rows[0][model.IDField])
		assert.Equal(t, "Fix login", rows[0]["Title"])
		assert.Equal(t, float64(3), rows[0]["Points"])
		assert.Equal(t, false, rows[0]["Done"])
	})

	t.Run("json lines from stdin", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		res := run(t, `{"Title":"one"}
{"Title":"two"}
`, "insert", "--file", "-", "--json")
		require.NoError(t, res.Err)
		require.Equal(t, 0, res.Code)
		got := decodeJSON(t, res.Stdout)
		assert.Equal(t, "board", got["dataset"])
		assert.Len(t, got["ids"], 2)

		assert.Len(t, queryRows(t), 2)
	})

	t.Run("json array from stdin", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		res := run(t, `[{"Title":"one"},{"Title":"two"},{"Title":"three"}]`, "insert", "--file", "-")
		require.NoError(t, res.Err)
		assert.Len(t, strings.Fields(res.Stdout), 3)
	})

	t.Run("other collection", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		mustRun(t, "insert", "--set", "Title=hidden", "--collection", "drafts")
		assert.Empty(t, queryRows(t))
		assert.Len(t, queryRows(t, "--collection", "drafts"), 1)
	})

	t.Run("usage errors", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		assert.Equal(t, exitValidation, run(t, "", "insert").Code)
		assert.Equal(t, exitValidation, run(t, "", "insert", "--set", "=x").Code)
		assert.Equal(t, exitValidation, run(t, "", "insert", "--file", "-").Code)
		assert.Equal(t, exitValidation, run(t, "{}", "insert", "--set", "a=1", "--file", "-").Code)
	})

	t.Run("unknown dataset", func(t *testing.T) {
		setupTestEnv(t)
		mustRun(t, "dataset", "create", "board")

		res := run(t, "", "insert", "--set", "Title=x", "--dataset", "missing")
		assert.Equal(t, exitNotFound, res.Code)
	})
}

func TestQuery_Filters(t *testing.T) {
	setupTestEnv(t)
	seedBoard(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"newest first by default", nil, []string{"Fix typo", "Add export", "Fix login"}},
		{"chronology asc", []string{"--chronology", "asc"}, []string{"Fix login", "Add export", "Fix typo"}},
		{"eq", []string{"--filter", "Status:eq:open"}, []string{"Fix login"}},
		{"numeric equals", []string{"--filter", "Points:=:5"}, []string{"Add export"}},
		{"greater", []string{"--filter", "Points:gt:2", "--sort", "Points:asc"}, []string{"Fix login", "Add export"}},
		{"less", []string{"--filter", "Points:lt:3"}, []string{"Fix typo"}},
		{"like is case-insensitive", []string{"--filter", "Title:like:FIX", "--sort", "Title:asc"}, []string{"Fix login", "Fix typo"}},
		{"like expression", []string{"--filter", "Title:like:fix && !typo"}, []string{"Fix login"}},
		{"filters combine", []string{"--filter", "Title:like:fix", "--filter", "Points:gt:2"}, []string{"Fix login"}},
		{"like groups on different columns combine", []string{"--filter", "Title:like:fix && !typo", "--filter", "Status:like:e && !closed", "--sort", "Title:asc"}, []string{"Fix login"}},
		{"sort desc", []string{"--sort", "Points:desc"}, []string{"Add export", "Fix login", "Fix typo"}},
		{"expr or", []string{"--expr", "Status=open || review", "--sort", "Title:asc"}, []string{"Add export", "Fix login"}},
		{"expr and filter", []string{"--expr", "Status=!closed", "--filter", "Title:like:fix"}, []string{"Fix login"}},
		{"cutoff after", []string{"--filter", "cutOffDate:gt:01-01-2000", "--sort", "Title:asc"}, []string{"Add export", "Fix login", "Fix typo"}},
		{"cutoff before", []string{"--filter", "cutOffDate:lt:01-01-2000"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(queryRows(t, tt.args...)))
		})
	}
}

func TestQuery_Paging(t *testing.T) {
	setupTestEnv(t)
	seedBoard(t)

	out := mustRun(t, "query", "--json", "--per-page", "2", "--page", "2", "--chronology", "asc")
	got := decodeJSON(t, out)
	assert.EqualValues(t, 2, got["page"])
	assert.EqualValues(t, 2, got["per_page"])
	assert.EqualValues(t, 3, got["total"])
	assert.EqualValues(t, 2, got["total_pages"])
	data := got["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "Fix typo", data[0].(map[string]interface{})["Title"])
}

func TestQuery_Formats(t *testing.T) {
	setupTestEnv(t)
	seedBoard(t)

	t.Run("table", func(t *testing.T) {
		out := mustRun(t, "query", "--filter", "Status:eq:open")
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.GreaterOrEqual(t, len(lines), 3)
		assert.True(t, strings.HasPrefix(lines[0], "_id"), "header: %q", lines[0])
		assert.Contains(t, lines[0], "Points")
		assert.Contains(t, lines[0], "Title")
		assert.Contains(t, lines[2], "Fix login")
		assert.Contains(t, out, "Page 1/1 (1 documents)")
	})

	t.Run("table without results", func(t *testing.T) {
		out := mustRun(t, "query", "--filter", "Status:eq:nothing")
		assert.Equal(t, "No results.\n", out)
	})

	t.Run("yaml", func(t *testing.T) {
		out := mustRun(t, "query", "--format", "yaml", "--filter", "Status:eq:review")
		assert.Contains(t, out, "Title: Add export")
		assert.Contains(t, out, "total: 1")
		assert.Contains(t, out, "total_pages: 1")
	})

	t.Run("unknown format", func(t *testing.T) {
		res := run(t, "", "query", "--format", "xml")
		assert.Equal(t, exitValidation, res.Code)
	})
}

func TestQuery_InvalidInput(t *testing.T) {
	setupTestEnv(t)
	seedBoard(t)

	tests := []struct {
		name string
		args []string
	}{
		{"filter without operator", []string{"--filter", "Status"}},
		{"bad sort direction", []string{"--sort", "Title:sideways"}},
		{"expr without column", []string{"--expr", "open"}},
		{"ambiguous expr", []string{"--expr", "Status=open && review || closed"}},
		{"bad cutoff", []string{"--filter", "cutOffDate:lt:xyzzy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, "", append([]string{"query", "--json"}, tt.args...)...)
			assert.Equal(t, exitValidation, res.Code)
			got := decodeJSON(t, res.Stdout)
			assert.Equal(t, ErrCodeValidation, got["code"])
		})
	}
}

func TestParseFilters(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	got, err := parseFilters([]string{"Status:eq:a:b", "cutOffDate:lt:01-02-2024"}, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, filter.QueryFilter{Field: "Status", Type: "eq", Value: "a:b"}, got[0])
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), got[1].Value)
}

func TestParseSorters(t *testing.T) {
	got, err := parseSorters([]string{"Title", "Points:DESC"})
	require.NoError(t, err)
	assert.Equal(t, []filter.QuerySorter{
		{Field: "Title", Dir: filter.Asc},
		{Field: "Points", Dir: filter.Desc},
	}, got)
}
