package workspace

import (
	"os"
	"path/filepath"

	"github.com/user/gridsync/internal/storage"
)

// DataDirName is the directory searched for when no data directory is set.
const DataDirName = ".gridsync"

// FindDataDir returns the path of the nearest .gridsync directory, starting
// at the working directory and walking up to the root. Returns empty string
// if none exists.
func FindDataDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return findDataDirFrom(dir)
}

func findDataDirFrom(startDir string) string {
	dir := startDir
	for {
		candidate := filepath.Join(dir, DataDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// DefaultDataset returns the dataset to use when none was named:
// 1. $GRIDSYNC_DATASET environment variable if set
// 2. the only dataset if exactly one exists in dataDir
// 3. empty string (requires --dataset)
func DefaultDataset(dataDir string) string {
	if ds := os.Getenv("GRIDSYNC_DATASET"); ds != "" {
		return ds
	}
	if dataDir == "" {
		return ""
	}
	names := listDatasets(dataDir)
	if len(names) == 1 {
		return names[0]
	}
	return ""
}

// listDatasets returns the subdirectories of dataDir holding a dataset
// configuration.
func listDatasets(dataDir string) []string {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || name[0] == '.' || name[0] == '_' {
			continue
		}
		if _, err := os.Stat(filepath.Join(dataDir, name, storage.ConfigFile)); err == nil {
			names = append(names, name)
		}
	}
	return names
}
