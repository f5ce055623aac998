package cli

import (
	"log/slog"

	"github.com/user/gridsync/internal/acl"
	"github.com/user/gridsync/internal/config"
	"github.com/user/gridsync/internal/reconcile"
	"github.com/user/gridsync/internal/storage"
	"github.com/user/gridsync/internal/tracker"
	"github.com/user/gridsync/internal/workspace"
)

// newTrackerClient builds the tracker client. Replaced in tests.
var newTrackerClient = func(cfg config.TrackerConfig) (tracker.Client, error) {
	return tracker.NewJiraClient(tracker.Config{
		URL:      cfg.URL,
		Username: cfg.Username,
		Token:    cfg.Token,
	})
}

// app is the resolved state a command runs with.
type app struct {
	cfg    *config.Config
	ws     *workspace.Workspace
	store  *storage.Store
	logger *slog.Logger
}

// openApp loads configuration, resolves the workspace and opens the store.
// With needDataset set it fails when no dataset can be determined.
func openApp(needDataset bool) (*app, error) {
	found := workspace.FindDataDir()
	searchDir := dataDirFlag
	if searchDir == "" {
		searchDir = found
	}
	cfg, err := config.Load(configPath, searchDir)
	if err != nil {
		return nil, err
	}

	// --data-dir, then a configured data_dir, then the nearest .gridsync,
	// then the default relative to the working directory.
	dir := dataDirFlag
	if dir == "" && cfg.DataDir != config.DefaultDataDir {
		dir = cfg.DataDir
	}
	if dir == "" {
		dir = found
	}
	if dir == "" {
		dir = cfg.DataDir
	}

	ws := workspace.Resolve(workspace.Options{Actor: actorName, DataDir: dir, Dataset: datasetName})
	if needDataset && ws.Dataset == "" {
		return nil, workspace.ErrNoDataset
	}

	store, err := storage.NewStore(ws.DataDir)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, ws: ws, store: store, logger: slog.Default()}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// tracker returns the configured tracker client, or nil when no tracker URL
// is set.
func (a *app) tracker() (tracker.Client, error) {
	if !a.cfg.Tracker.Configured() {
		return nil, nil
	}
	return newTrackerClient(a.cfg.Tracker)
}

func (a *app) reconciler() (*reconcile.Reconciler, error) {
	client, err := a.tracker()
	if err != nil {
		return nil, err
	}
	return reconcile.NewReconciler(a.store, client, a.cfg.Tracker.URL, a.logger), nil
}

func (a *app) checker() acl.Checker {
	return acl.NewConfigChecker(a.cfg.ACL)
}
