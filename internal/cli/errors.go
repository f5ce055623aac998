package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/gridsync/internal/archive"
	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/reconcile"
	"github.com/user/gridsync/internal/tracker"
	"github.com/user/gridsync/internal/workspace"
)

// Error codes for structured error responses
const (
	ErrCodeDatasetNotFound = "DATASET_NOT_FOUND"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeNoDataDir       = "NO_DATA_DIR"
	ErrCodeNoDataset       = "NO_DATASET"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotEditable     = "NOT_EDITABLE"
	ErrCodeAccessDenied    = "ACCESS_DENIED"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeStale           = "STALE"
	ErrCodeUpstream        = "UPSTREAM_ERROR"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// ErrUsage reports a malformed command line value.
var ErrUsage = errors.New("invalid argument")

// Exit codes per error class.
const (
	exitNotFound   = 1
	exitValidation = 2
	exitConflict   = 3
	exitUpstream   = 4
)

// JSONError represents a structured error response for --json output
type JSONError struct {
	Error   bool                   `json:"error"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ExitWithError outputs an error message and exits.
// If --json flag is set, outputs structured JSON error to stdout.
// Otherwise outputs plain text to stderr.
func ExitWithError(code int, errCode, message string, details map[string]interface{}) {
	if GetJSONOutput() {
		data, _ := json.Marshal(JSONError{
			Error:   true,
			Code:    errCode,
			Message: message,
			Details: details,
		})
		fmt.Fprintln(rootCmd.OutOrStdout(), string(data))
	} else {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", message)
	}
	Exit(code)
}

// exitOnError classifies err and exits with the matching code.
func exitOnError(err error) {
	code, errCode := classify(err)
	ExitWithError(code, errCode, err.Error(), nil)
}

func classify(err error) (int, string) {
	var denied *archive.AccessDeniedError
	switch {
	case errors.Is(err, workspace.ErrNoDataDir):
		return exitNotFound, ErrCodeNoDataDir
	case errors.Is(err, workspace.ErrNoDataset):
		return exitNotFound, ErrCodeNoDataset
	case errors.Is(err, model.ErrDatasetNotFound):
		return exitNotFound, ErrCodeDatasetNotFound
	case errors.Is(err, model.ErrRecordNotFound):
		return exitNotFound, ErrCodeNotFound
	case errors.As(err, &denied):
		return exitValidation, ErrCodeAccessDenied
	case errors.Is(err, model.ErrDatasetExists):
		return exitConflict, ErrCodeConflict
	case errors.Is(err, model.ErrInvalidDatasetName),
		errors.Is(err, model.ErrInvalidMapping),
		errors.Is(err, model.ErrInvalidFieldName),
		errors.Is(err, model.ErrInvalidID),
		errors.Is(err, model.ErrInvalidPredicate),
		errors.Is(err, ErrUsage),
		errors.Is(err, archive.ErrMissingParameters),
		errors.Is(err, archive.ErrInvalidFilters),
		errors.Is(err, archive.ErrInvalidCutoff):
		return exitValidation, ErrCodeValidation
	case errors.Is(err, tracker.ErrNotConfigured):
		return exitUpstream, ErrCodeUpstream
	}
	return kindExit(reconcile.Kind(err))
}

// kindExit maps a reconciler failure class to an exit code.
func kindExit(kind reconcile.ErrorKind) (int, string) {
	switch kind {
	case reconcile.KindValidation:
		return exitValidation, ErrCodeValidation
	case reconcile.KindEditability:
		return exitValidation, ErrCodeNotEditable
	case reconcile.KindStaleness:
		return exitConflict, ErrCodeStale
	case reconcile.KindConflict:
		return exitConflict, ErrCodeConflict
	case reconcile.KindNotFound:
		return exitNotFound, ErrCodeNotFound
	case reconcile.KindUpstream:
		return exitUpstream, ErrCodeUpstream
	}
	return 1, ErrCodeInternal
}
