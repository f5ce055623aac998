// Package reconcile applies single-cell grid edits to tracker-bound datasets.
//
// An edit of a column that holds tracker fields is checked against the
// stored row and the live issue, translated into a tracker update, and only
// then committed to the store. Edits of other columns go straight to the
// store. Every edit attempt leaves one entry in the dataset's editlog.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/gridsync/internal/fieldmap"
	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/storage"
	"github.com/user/gridsync/internal/tracker"
)

// Status is the terminal state of an edit.
type Status string

// Edit outcomes.
const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
	// StatusSilentFail means nothing but whitespace changed; the caller
	// should show the previous value again without reporting an error.
	StatusSilentFail Status = "silentFail"
)

// Failure messages shown to the grid user.
const (
	msgNoColumn         = "unable to get edited column attribute"
	msgNoChanges        = "unable to get edited record"
	msgNoSelector       = "unable to get the current record"
	msgParseIncoming    = "unable to parse the incoming edited record according to given mapping"
	msgParseCurrent     = "unable to parse the current record according to given mapping"
	msgParseStored      = "unable to parse the dbrecord according to given mapping"
	msgKeyEdit          = "Key for the JIRA_AGILE row can't be edited"
	msgFetchIssue       = "unable to fetch the record from JIRA to update"
	msgStale            = "Stale JIRA entry found. Please refresh again."
	msgSprintNotFound   = "Can't find the sprintId for the sprintName. Maybe you have to create one."
	msgKeyConflict      = "Key conflict"
	msgRowNotFound      = "Row not found!"
	msgRowChanged       = "Row was changed by another edit"
	msgStoreUnavailable = "unable to access the dataset store"
)

// EditRequest is one cell edit sent by the grid.
type EditRequest struct {
	Dataset string `json:"dsName"`
	// Selector is the row as the caller last saw it, including _id.
	Selector map[string]interface{} `json:"selectorObj"`
	// Column is the storage column being edited.
	Column string `json:"column"`
	// EditObj holds the new values by storage column.
	EditObj map[string]interface{} `json:"editObj"`
	User    string                 `json:"dsUser"`
}

// CurrentValue reports a column's stored value after a failed edit.
type CurrentValue struct {
	ID     string      `json:"_id"`
	Column string      `json:"column"`
	Value  interface{} `json:"value"`
}

// Response is the outcome of an edit.
type Response struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
	// Record is the committed edit in storage shape; set on success.
	Record map[string]interface{} `json:"record,omitempty"`
	// Current is set when the row no longer matched the selector.
	Current *CurrentValue `json:"current,omitempty"`
	// Err is the classified failure behind Error.
	Err error `json:"-"`
}

// Reconciler runs edits against a document store and a tracker.
type Reconciler struct {
	store      storage.DocumentStore
	tracker    tracker.Client
	trackerURL string
	logger     *slog.Logger
	now        func() time.Time
}

// NewReconciler returns a Reconciler. client may be nil when no tracker is
// configured; edits of tracker-enabled datasets then fail upstream.
func NewReconciler(store storage.DocumentStore, client tracker.Client, trackerURL string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:      store,
		tracker:    client,
		trackerURL: strings.TrimRight(trackerURL, "/"),
		logger:     logger,
		now:        time.Now,
	}
}

// edit carries the working state of one request through the steps.
type edit struct {
	req     EditRequest
	ds      *model.Dataset
	mapping model.FieldMapping
	rev     map[string]int
	keyEdit bool
	changes map[string]interface{}
}

// Edit applies one cell edit and records it in the editlog. It never
// returns a Go error; failures are reported in the Response.
func (r *Reconciler) Edit(ctx context.Context, req EditRequest) Response {
	e := &edit{req: req, changes: req.EditObj}
	resp := r.run(ctx, e)
	if resp.Err != nil {
		resp.Status = StatusFail
		resp.Error = resp.Err.Error()
	}
	r.audit(ctx, e, resp.Status)

	r.logger.Debug("edit finished",
		"dataset", req.Dataset,
		"column", req.Column,
		"user", req.User,
		"status", resp.Status,
		"kind", Kind(resp.Err))
	return resp
}

func (r *Reconciler) run(ctx context.Context, e *edit) Response {
	if e.req.Column == "" {
		return failed(&ValidationError{Msg: msgNoColumn})
	}
	if len(e.req.EditObj) == 0 {
		return failed(&ValidationError{Msg: msgNoChanges})
	}
	if len(e.req.Selector) == 0 {
		return failed(&ValidationError{Msg: msgNoSelector})
	}

	ds, err := r.store.GetDataset(ctx, e.req.Dataset)
	if err != nil {
		if errors.Is(err, model.ErrDatasetNotFound) {
			return failed(&NotFoundError{Msg: fmt.Sprintf("dataset %s not found", e.req.Dataset)})
		}
		return failed(r.storeError(err))
	}
	e.ds = ds
	e.mapping = ds.Mapping()
	e.rev = fieldmap.RevContentMap(e.mapping)

	if e.keyEdit, err = r.isKeyEdit(ctx, e); err != nil {
		return failed(r.storeError(err))
	}

	if e.mapping.MapsColumn(e.req.Column) {
		resp, done := r.reconcileTracker(ctx, e)
		if done {
			return resp
		}
	}

	return r.commit(ctx, e)
}

// isKeyEdit reports whether the edit touches a column registered as a
// uniqueness key of the dataset.
func (r *Reconciler) isKeyEdit(ctx context.Context, e *edit) (bool, error) {
	keys, err := r.store.Keys(ctx, e.req.Dataset)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if _, ok := e.req.EditObj[k]; ok {
			return true, nil
		}
	}
	return false, nil
}

// reconcileTracker validates an edit of tracker fields and pushes it to the
// tracker. done is true when the edit ends here.
func (r *Reconciler) reconcileTracker(ctx context.Context, e *edit) (resp Response, done bool) {
	newUI, err := fieldmap.ParseRecord(e.req.EditObj, e.rev, e.mapping)
	if err != nil {
		return failed(&ValidationError{Msg: msgParseIncoming}), true
	}
	e.changes = fieldmap.FormatRecord(newUI, e.mapping)

	if _, ok := newUI[model.KeyField]; ok {
		return failed(&ValidationError{Msg: msgKeyEdit}), true
	}

	oldUI, err := fieldmap.ParseRecord(e.req.Selector, e.rev, e.mapping)
	if err != nil {
		return failed(&ValidationError{Msg: msgParseCurrent}), true
	}

	if err := checkEditable(e.mapping, oldUI, newUI); err != nil {
		return failed(err), true
	}

	storedUI, err := r.storedRecord(ctx, e)
	if err != nil {
		return failed(err), true
	}
	if !isCurrent(oldUI, storedUI, e.mapping) {
		return failed(&StalenessError{Msg: msgStale}), true
	}

	if !e.ds.TrackerEnabled() {
		return Response{}, false
	}

	issueKey := fieldmap.Text(storedUI[model.KeyField])
	live, err := r.liveRecord(ctx, issueKey)
	if err != nil {
		return failed(err), true
	}
	if !isCurrent(storedUI, live, e.mapping) {
		return failed(&StalenessError{Msg: msgStale}), true
	}

	delta, err := r.delta(ctx, e.mapping, oldUI, newUI, e.ds.Tracker.BoardID)
	if err != nil {
		return failed(err), true
	}
	if len(delta) == 0 {
		return Response{Status: StatusSilentFail}, true
	}

	if err := r.tracker.UpdateIssue(ctx, issueKey, delta); err != nil {
		return failed(&UpstreamError{
			Msg: "unable to update the record to JIRA. Error: " + err.Error(),
			Err: err,
		}), true
	}
	r.logger.Info("tracker issue updated", "key", issueKey, "fields", len(delta))
	return Response{}, false
}

// storedRecord loads the edited row from the store in display shape.
func (r *Reconciler) storedRecord(ctx context.Context, e *edit) (fieldmap.UiRecord, error) {
	id, _ := e.req.Selector[model.IDField].(string)
	if id == "" {
		return nil, &ValidationError{Msg: msgParseStored}
	}
	recs, err := r.store.Find(ctx, e.req.Dataset, model.CollectionData,
		filter.Equals{Field: model.IDField, Value: id}, storage.FindOptions{Limit: 1})
	if err != nil {
		return nil, r.storeError(err)
	}
	if len(recs) == 0 {
		return nil, &NotFoundError{Msg: msgRowNotFound}
	}
	rec, err := fieldmap.ParseRecord(recs[0].Fields, e.rev, e.mapping)
	if err != nil {
		return nil, &ValidationError{Msg: msgParseStored}
	}
	return rec, nil
}

// liveRecord fetches the issue from the tracker in display shape.
func (r *Reconciler) liveRecord(ctx context.Context, key string) (fieldmap.UiRecord, error) {
	if r.tracker == nil || key == "" {
		return nil, &UpstreamError{Msg: msgFetchIssue}
	}
	issue, err := r.tracker.FindIssue(ctx, key)
	if err != nil {
		r.logger.Warn("tracker issue fetch failed", "key", key, "error", err)
		return nil, &UpstreamError{Msg: msgFetchIssue, Err: err}
	}
	return tracker.RecordFromIssue(issue, r.trackerURL), nil
}

// commit writes the edit to the store.
func (r *Reconciler) commit(ctx context.Context, e *edit) Response {
	if e.keyEdit {
		res, err := r.store.UpdateOneKeyInTransaction(ctx, e.req.Dataset, model.CollectionData, e.req.Selector, e.changes)
		if err != nil {
			return failed(r.storeError(err))
		}
		if res.Modified != 1 {
			return failed(&ConflictError{Msg: msgKeyConflict})
		}
		return Response{Status: StatusSuccess, Record: e.changes}
	}

	res, err := r.store.UpdateOne(ctx, e.req.Dataset, model.CollectionData, e.req.Selector, e.changes)
	if err != nil {
		return failed(r.storeError(err))
	}
	if res.Matched == 1 {
		return Response{Status: StatusSuccess, Record: e.changes}
	}

	id, _ := e.req.Selector[model.IDField].(string)
	if id == "" {
		return failed(&NotFoundError{Msg: msgRowNotFound})
	}
	recs, err := r.store.Find(ctx, e.req.Dataset, model.CollectionData,
		filter.Equals{Field: model.IDField, Value: id}, storage.FindOptions{Limit: 1})
	if err != nil {
		return failed(r.storeError(err))
	}
	if len(recs) != 1 {
		return failed(&NotFoundError{Msg: msgRowNotFound})
	}

	resp := failed(&StalenessError{Msg: msgRowChanged})
	resp.Current = &CurrentValue{
		ID:     id,
		Column: e.req.Column,
		Value:  recs[0].Fields[e.req.Column],
	}
	return resp
}

func (r *Reconciler) storeError(err error) error {
	r.logger.Error("store call failed", "error", err)
	return &UpstreamError{Msg: msgStoreUnavailable, Err: err}
}

func failed(err error) Response {
	return Response{Status: StatusFail, Err: err}
}
