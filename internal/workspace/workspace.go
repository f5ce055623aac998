package workspace

import (
	"errors"
	"path/filepath"
)

// Workspace holds the resolved runtime context for gridsync commands.
type Workspace struct {
	Actor   string // Resolved actor name
	DataDir string // Path to the data directory (may be empty)
	Dataset string // Selected dataset name (may be empty)
}

// ErrNoDataDir is returned when no data directory is set or found.
var ErrNoDataDir = errors.New("no .gridsync directory found (use --data-dir)")

// ErrNoDataset is returned when no dataset is selected and none can be
// auto-detected.
var ErrNoDataset = errors.New("no dataset specified and multiple datasets exist (use --dataset)")

// Options are the command line values that take precedence over detection.
type Options struct {
	Actor   string
	DataDir string
	Dataset string
}

// Resolve builds the workspace from flags and environment. An explicit data
// directory is used as is; otherwise the nearest .gridsync is searched for.
func Resolve(opts Options) *Workspace {
	ws := &Workspace{
		Actor:   ResolveActor(opts.Actor),
		DataDir: opts.DataDir,
	}
	if ws.DataDir == "" {
		ws.DataDir = FindDataDir()
	}
	if opts.Dataset != "" {
		ws.Dataset = opts.Dataset
	} else {
		ws.Dataset = DefaultDataset(ws.DataDir)
	}
	return ws
}

// ResolveRequired is like Resolve but fails when no data directory or no
// dataset can be determined.
func ResolveRequired(opts Options) (*Workspace, error) {
	ws := Resolve(opts)
	if ws.DataDir == "" {
		return nil, ErrNoDataDir
	}
	if ws.Dataset == "" {
		return nil, ErrNoDataset
	}
	return ws, nil
}

// DatasetPath returns the directory of the selected dataset.
// Returns empty string if DataDir or Dataset is empty.
func (w *Workspace) DatasetPath() string {
	if w.DataDir == "" || w.Dataset == "" {
		return ""
	}
	return filepath.Join(w.DataDir, w.Dataset)
}
