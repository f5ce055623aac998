package reconcile

import "errors"

// ErrorKind classifies a failed edit.
type ErrorKind string

// Error kinds.
const (
	KindNone        ErrorKind = ""
	KindValidation  ErrorKind = "validation"
	KindStaleness   ErrorKind = "stale"
	KindEditability ErrorKind = "not_editable"
	KindUpstream    ErrorKind = "upstream"
	KindConflict    ErrorKind = "conflict"
	KindNotFound    ErrorKind = "not_found"
)

// ValidationError reports a malformed edit request.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// StalenessError reports that the row changed since the caller loaded it.
type StalenessError struct{ Msg string }

func (e *StalenessError) Error() string { return e.Msg }

// EditabilityError reports an attempt to change a field that cannot be edited.
type EditabilityError struct{ Msg string }

func (e *EditabilityError) Error() string { return e.Msg }

// UpstreamError reports a failed tracker or store call.
type UpstreamError struct {
	Msg string
	Err error
}

func (e *UpstreamError) Error() string { return e.Msg }

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConflictError reports that another row already holds the edited key values.
type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string { return e.Msg }

// NotFoundError reports that the edited row no longer exists.
type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return e.Msg }

// Kind classifies err. It returns KindNone for nil and for errors outside
// the taxonomy.
func Kind(err error) ErrorKind {
	var (
		validation  *ValidationError
		staleness   *StalenessError
		editability *EditabilityError
		upstream    *UpstreamError
		conflict    *ConflictError
		notFound    *NotFoundError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &staleness):
		return KindStaleness
	case errors.As(err, &editability):
		return KindEditability
	case errors.As(err, &upstream):
		return KindUpstream
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &notFound):
		return KindNotFound
	}
	return KindNone
}
