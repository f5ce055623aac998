// Package archive moves old documents from one dataset into another.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/user/gridsync/internal/acl"
	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/storage"
)

// CutoffLayout is the date format of cutOffDate filter values.
const CutoffLayout = "02-01-2006"

// Request validation errors. Their text is shown to the user as is.
var (
	ErrMissingParameters = errors.New("One or more required parameters is missing")
	ErrInvalidFilters    = errors.New("Invalid filters format. If you want to archive whole dataset give some future date in the filters.")
	ErrInvalidCutoff     = errors.New("Invalid cutOffDate format. Date should be in dd-mm-yyyy format")
)

// AccessDeniedError reports a dataset the user may not access.
type AccessDeniedError struct {
	Dataset string
}

func (e *AccessDeniedError) Error() string {
	return e.Dataset + " dataset access denied"
}

// Request describes one archive run.
type Request struct {
	Source  string `json:"sourceDataSetName"`
	Archive string `json:"archiveDataSetName"`
	// Collection defaults to data.
	Collection string               `json:"collectionName,omitempty"`
	Filters    []filter.QueryFilter `json:"filters"`
	User       string               `json:"-"`
}

// Result reports what an archive run moved.
type Result struct {
	Moved  int    `json:"moved"`
	Status string `json:"status"`
}

// Service runs archive requests.
type Service struct {
	store    storage.DocumentStore
	acl      acl.Checker
	compiler *filter.Compiler
	logger   *slog.Logger
	now      func() time.Time
}

// NewService returns a Service. A nil checker allows every user.
func NewService(store storage.DocumentStore, checker acl.Checker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if checker == nil {
		checker = acl.NewConfigChecker(nil)
	}
	return &Service{
		store:    store,
		acl:      checker,
		compiler: filter.NewCompiler(logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Archive moves the documents of req.Source matching req.Filters into
// req.Archive.
func (s *Service) Archive(ctx context.Context, req Request) (Result, error) {
	if req.Source == "" || req.Archive == "" || req.Filters == nil {
		return Result{}, ErrMissingParameters
	}
	if len(req.Filters) == 0 {
		return Result{}, ErrInvalidFilters
	}
	if req.Collection == "" {
		req.Collection = model.CollectionData
	}

	for _, ds := range []string{req.Source, req.Archive} {
		ok, err := s.acl.Allowed(ctx, ds, req.User)
		if err != nil {
			s.logger.Error("access check failed", "dataset", ds, "user", req.User, "error", err)
			return Result{}, err
		}
		if !ok {
			return Result{}, &AccessDeniedError{Dataset: ds}
		}
	}

	filters := make([]filter.QueryFilter, len(req.Filters))
	for i, f := range req.Filters {
		if f.Field == filter.CutoffField {
			switch v := f.Value.(type) {
			case time.Time:
			case string:
				at, err := ParseCutoff(v, s.now())
				if err != nil {
					return Result{}, err
				}
				f.Value = at
			default:
				return Result{}, ErrInvalidCutoff
			}
		}
		filters[i] = f
	}

	where, _ := s.compiler.Assemble(filters, nil, "")
	if where == nil {
		return Result{}, ErrInvalidFilters
	}
	moved, err := s.store.ArchiveData(ctx, req.Source, req.Collection, req.Archive, where)
	if err != nil {
		s.logger.Error("archive failed",
			"source", req.Source, "archive", req.Archive, "collection", req.Collection, "error", err)
		return Result{}, err
	}

	s.logger.Info("archive finished",
		"source", req.Source, "archive", req.Archive, "collection", req.Collection, "moved", moved)
	return Result{
		Moved:  moved,
		Status: fmt.Sprintf("Successfully archived %d documents from %s to %s", moved, req.Source, req.Archive),
	}, nil
}

// ParseCutoff parses a cutoff date. dd-mm-yyyy dates are midnight UTC;
// anything else is tried as a natural language expression relative to now,
// such as "2 weeks ago".
func ParseCutoff(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrInvalidCutoff
	}
	if t, err := time.ParseInLocation(CutoffLayout, text, time.UTC); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	res, err := w.Parse(text, now)
	if err != nil || res == nil {
		return time.Time{}, ErrInvalidCutoff
	}
	return res.Time, nil
}
