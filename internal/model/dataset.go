package model

import (
	"fmt"
	"regexp"
	"time"
)

// Dataset name validation:
// - Must start with a letter
// - Can contain letters, numbers, hyphens, underscores
// - Max 64 characters
var datasetNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Dataset is the per-dataset configuration stored in config.json.
type Dataset struct {
	Name      string         `json:"name"`
	Created   time.Time      `json:"created"`
	CreatedBy string         `json:"created_by"`
	Tracker   *TrackerConfig `json:"jiraAgileConfig,omitempty"`
}

// TrackerConfig binds a dataset to an issue tracker board.
type TrackerConfig struct {
	// Enabled turns on live issue fetches and tracker writes during edits.
	Enabled      bool         `json:"jira"`
	BoardID      string       `json:"boardId,omitempty"`
	FieldMapping FieldMapping `json:"jiraFieldMapping"`
}

// ValidateDatasetName checks if a dataset name is valid.
func ValidateDatasetName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDatasetName)
	}

	if !datasetNameRegex.MatchString(name) {
		return fmt.Errorf("%w: must start with a letter and contain only letters, numbers, hyphens, and underscores", ErrInvalidDatasetName)
	}

	return nil
}

// Mapping returns the dataset's field mapping, or nil when the dataset is not
// bound to a tracker.
func (d *Dataset) Mapping() FieldMapping {
	if d == nil || d.Tracker == nil {
		return nil
	}
	return d.Tracker.FieldMapping
}

// TrackerEnabled reports whether live tracker reconciliation is turned on.
func (d *Dataset) TrackerEnabled() bool {
	return d != nil && d.Tracker != nil && d.Tracker.Enabled
}
