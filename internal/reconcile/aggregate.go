package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/user/gridsync/internal/fieldmap"
	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/storage"
	"github.com/user/gridsync/internal/tracker"
)

// scanPageSize is the page size of the sequential aggregation scans.
const scanPageSize = 50

// Assignees returns the distinct assignees of the dataset's tracker rows,
// sorted. Unassigned rows are skipped.
func (r *Reconciler) Assignees(ctx context.Context, dataset string) ([]string, error) {
	ds, err := r.store.GetDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}
	m := ds.Mapping()
	keyCol, ok := m.KeyColumn()
	if !ok {
		return []string{}, nil
	}

	where := filter.Match{
		Field:   keyCol,
		Pattern: regexp.QuoteMeta(tracker.KeyPrefix) + ".*" + regexp.QuoteMeta(tracker.BrowseURL(r.trackerURL, "")),
	}
	return r.scan(ctx, dataset, m, where, tracker.FieldAssignee, func(v string) bool {
		return v != tracker.Unassigned
	})
}

// IssuesOfType returns the sorted keys of the dataset's issues whose type
// column equals typ.
func (r *Reconciler) IssuesOfType(ctx context.Context, dataset, typ string) ([]string, error) {
	ds, err := r.store.GetDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}
	m := ds.Mapping()
	typeCol, ok := m.Column(tracker.FieldType)
	if !ok {
		return []string{}, nil
	}

	where := filter.Equals{Field: typeCol, Value: typ}
	return r.scan(ctx, dataset, m, where, model.KeyField, nil)
}

// scan pages through the matching data rows and collects the distinct
// non-empty values of one display field. A row that does not parse ends
// the scan with what was collected so far.
func (r *Reconciler) scan(ctx context.Context, dataset string, m model.FieldMapping, where filter.Predicate, field string, keep func(string) bool) ([]string, error) {
	rev := fieldmap.RevContentMap(m)
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		res, err := r.store.PagedFind(ctx, dataset, model.CollectionData, where, storage.FindOptions{}, page, scanPageSize)
		if err != nil {
			return nil, err
		}
		for _, rec := range res.Data {
			ui, err := fieldmap.ParseRecord(rec.Fields, rev, m)
			if err != nil {
				r.logger.Warn("unable to parse tracker row during scan",
					"dataset", dataset, "id", rec.ID, "field", field, "error", err)
				return sortedSet(seen), nil
			}
			v := fieldmap.Text(ui[field])
			if v == "" || (keep != nil && !keep(v)) {
				continue
			}
			seen[v] = true
		}
		if page >= res.TotalPages {
			return sortedSet(seen), nil
		}
	}
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// RefreshResult counts the rows touched by Refresh.
type RefreshResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Refresh fetches issues from the tracker and writes them into the dataset,
// updating the row that links to each issue or inserting a new one.
func (r *Reconciler) Refresh(ctx context.Context, dataset string, keys []string) (RefreshResult, error) {
	var res RefreshResult
	if r.tracker == nil {
		return res, tracker.ErrNotConfigured
	}
	ds, err := r.store.GetDataset(ctx, dataset)
	if err != nil {
		return res, err
	}
	m := ds.Mapping()
	keyCol, ok := m.KeyColumn()
	if !ok {
		return res, fmt.Errorf("%w: dataset %s has no key field mapping", model.ErrInvalidMapping, dataset)
	}
	rev := fieldmap.RevContentMap(m)

	for _, key := range keys {
		issue, err := r.tracker.FindIssue(ctx, key)
		if err != nil {
			return res, &UpstreamError{Msg: fmt.Sprintf("unable to fetch %s from JIRA", key), Err: err}
		}

		row := fieldmap.FormatRecord(tracker.RecordFromIssue(issue, r.trackerURL), m)
		link := tracker.KeyLink(r.trackerURL, issue.Key)
		if rev[keyCol] > 1 {
			row[keyCol] = "**" + model.KeyField + "**:\n " + link + "\n<br/>\n" + fieldmap.Text(row[keyCol])
		} else {
			row[keyCol] = link
		}

		existing, err := r.store.Find(ctx, dataset, model.CollectionData,
			filter.Match{Field: keyCol, Pattern: regexp.QuoteMeta("[" + issue.Key + "](")},
			storage.FindOptions{Limit: 1})
		if err != nil {
			return res, err
		}

		if len(existing) == 0 {
			if _, err := r.store.InsertOne(ctx, dataset, model.CollectionData, row); err != nil {
				return res, err
			}
			res.Inserted++
			continue
		}

		selector := map[string]interface{}{model.IDField: existing[0].ID}
		if _, err := r.store.UpdateOne(ctx, dataset, model.CollectionData, selector, row); err != nil {
			return res, err
		}
		res.Updated++
	}

	r.logger.Info("tracker refresh finished",
		"dataset", dataset, "inserted", res.Inserted, "updated", res.Updated)
	return res, nil
}
