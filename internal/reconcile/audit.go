package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/storage"
)

// AuditEntry is one editlog document.
type AuditEntry struct {
	ID string `json:"_id" yaml:"_id"`
	// Opr is the operation name; always "edit" for grid edits.
	Opr string `json:"opr" yaml:"opr"`
	// Selector is the edited row as JSON, without its identifier.
	Selector string      `json:"selector" yaml:"selector"`
	Column   string      `json:"column" yaml:"column"`
	OldVal   interface{} `json:"oldVal" yaml:"oldVal"`
	NewVal   interface{} `json:"newVal" yaml:"newVal"`
	User     string      `json:"user" yaml:"user"`
	Date     string      `json:"date" yaml:"date"`
	Status   Status      `json:"status" yaml:"status"`
}

// audit appends the editlog entry of an edit. Failures are logged only.
func (r *Reconciler) audit(ctx context.Context, e *edit, status Status) {
	selector := make(map[string]interface{}, len(e.req.Selector))
	for k, v := range e.req.Selector {
		if k != model.IDField {
			selector[k] = v
		}
	}
	sel, err := json.MarshalIndent(selector, "", "    ")
	if err != nil {
		r.logger.Warn("edit log selector not serializable", "error", err)
		sel = nil
	}

	entry := map[string]interface{}{
		"opr":      "edit",
		"selector": string(sel),
		"column":   e.req.Column,
		"oldVal":   e.req.Selector[e.req.Column],
		"newVal":   e.changes[e.req.Column],
		"user":     e.req.User,
		"date":     r.now().UTC().Format(time.RFC3339),
		"status":   string(status),
	}

	if _, err := r.store.InsertOne(ctx, e.req.Dataset, model.CollectionEditLog, entry); err != nil {
		r.logger.Error("edit log write failed",
			"dataset", e.req.Dataset,
			"column", e.req.Column,
			"status", status,
			"error", err)
	}
}

// HistoryOptions narrows a History listing.
type HistoryOptions struct {
	// User keeps only edits made by this user.
	User string
	// Column keeps only edits of this column.
	Column string
	// Since keeps only edits logged at or after this instant.
	Since time.Time
	// Limit caps the number of entries (0 = no limit).
	Limit int
}

// History lists a dataset's editlog entries, newest first.
func History(ctx context.Context, store storage.DocumentStore, dataset string, opts HistoryOptions) ([]AuditEntry, error) {
	var preds []filter.Predicate
	if opts.User != "" {
		preds = append(preds, filter.Equals{Field: "user", Value: opts.User})
	}
	if opts.Column != "" {
		preds = append(preds, filter.Equals{Field: "column", Value: opts.Column})
	}
	if !opts.Since.IsZero() {
		id, err := model.IDFromTime(opts.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since: %w", err)
		}
		preds = append(preds, filter.Compare{Field: model.IDField, Op: filter.OpGreater, Value: id})
	}

	var where filter.Predicate
	if len(preds) > 0 {
		where = filter.And{Predicates: preds}
	}

	recs, err := store.Find(ctx, dataset, model.CollectionEditLog, where, storage.FindOptions{
		Sort:  filter.DefaultSort(filter.Desc),
		Limit: opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]AuditEntry, 0, len(recs))
	for _, rec := range recs {
		data, err := json.Marshal(rec.Document())
		if err != nil {
			return nil, err
		}
		var entry AuditEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("editlog entry %s: %w", rec.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
