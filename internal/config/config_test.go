package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := Load("", t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, DefaultDataDir, cfg.DataDir)
		assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
		assert.Equal(t, DefaultLogMaxSizeMB, cfg.Log.MaxSizeMB)
		assert.Equal(t, DefaultLogMaxBackups, cfg.Log.MaxBackups)
		assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
		assert.False(t, cfg.Tracker.Configured())
		assert.Empty(t, cfg.File)
	})

	t.Run("file found in search dir", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfig(t, dir, `
data_dir: /var/lib/gridsync
tracker:
  url: https://jira.example.com/
  username: bot
log:
  file: /var/log/gridsync.log
  max_backups: 5
watch:
  debounce: 2s
acl:
  payroll: [alice, bob]
  wiki: ["*"]
`)
		cfg, err := Load("", dir)
		require.NoError(t, err)

		assert.Equal(t, path, cfg.File)
		assert.Equal(t, "/var/lib/gridsync", cfg.DataDir)
		assert.Equal(t, "https://jira.example.com", cfg.Tracker.URL)
		assert.Equal(t, "bot", cfg.Tracker.Username)
		assert.Equal(t, "/var/log/gridsync.log", cfg.Log.File)
		assert.Equal(t, 5, cfg.Log.MaxBackups)
		assert.Equal(t, DefaultLogMaxSizeMB, cfg.Log.MaxSizeMB)
		assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
		assert.Equal(t, map[string][]string{
			"payroll": {"alice", "bob"},
			"wiki":    {"*"},
		}, cfg.ACL)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfig(t, dir, "tracker:\n  url: https://jira.example.com\n  token: from-file\n")
		t.Setenv("GRIDSYNC_TRACKER_TOKEN", "from-env")
		t.Setenv("GRIDSYNC_DATA_DIR", "/tmp/grid")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Tracker.Token)
		assert.Equal(t, "/tmp/grid", cfg.DataDir)
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "tracker: [unclosed\n")
		_, err := Load("", dir)
		assert.Error(t, err)
	})
}
