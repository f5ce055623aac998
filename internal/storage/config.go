package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/user/gridsync/internal/model"
)

// ConfigFile is the name of a dataset's configuration file.
const ConfigFile = "config.json"

// ConfigStore manages dataset configuration files.
type ConfigStore struct {
	baseDir string
}

// NewConfigStore creates a new config store.
func NewConfigStore(baseDir string) *ConfigStore {
	return &ConfigStore{baseDir: baseDir}
}

// Path returns the config.json path of a dataset.
func (s *ConfigStore) Path(dataset string) string {
	return filepath.Join(s.baseDir, dataset, ConfigFile)
}

// Write stores a dataset configuration atomically.
func (s *ConfigStore) Write(ds *model.Dataset) error {
	if err := os.MkdirAll(filepath.Join(s.baseDir, ds.Name), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(s.Path(ds.Name), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Read loads a dataset configuration. Comments and trailing commas are
// allowed so the file can be maintained by hand.
func (s *ConfigStore) Read(dataset string) (*model.Dataset, error) {
	data, err := os.ReadFile(s.Path(dataset))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", model.ErrDatasetNotFound, dataset)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", s.Path(dataset), err)
	}

	var ds model.Dataset
	if err := json.Unmarshal(std, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if ds.Name == "" {
		ds.Name = dataset
	}
	if err := ds.Mapping().Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Delete removes a dataset directory, log included.
func (s *ConfigStore) Delete(dataset string) error {
	if err := os.RemoveAll(filepath.Join(s.baseDir, dataset)); err != nil {
		return fmt.Errorf("failed to delete dataset directory: %w", err)
	}
	return nil
}

// Exists returns true if the dataset config exists.
func (s *ConfigStore) Exists(dataset string) bool {
	_, err := os.Stat(s.Path(dataset))
	return err == nil
}

// List returns the names of all datasets with a config file.
func (s *ConfigStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !isHiddenOrMeta(entry.Name()) && s.Exists(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// isHiddenOrMeta returns true for hidden or meta directories.
func isHiddenOrMeta(name string) bool {
	return name[0] == '.' || name[0] == '_'
}
