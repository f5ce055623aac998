// Package storage provides persistent storage for dataset documents.
//
// Each dataset keeps an append-only JSONL log (source of truth) and a
// config.json under the data directory. A shared SQLite cache holds the
// current documents for querying.
package storage

import (
	"context"

	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
)

// FindOptions configures document queries.
type FindOptions struct {
	// Sort orders the result; the identifier breaks ties.
	Sort filter.SortSpec
	// Limit restricts the number of results (0 = no limit).
	Limit int
	// Offset skips the first N results.
	Offset int
	// Projection lists the fields to return (empty = all).
	Projection []string
}

// Page is one page of a paged query.
type Page struct {
	Data       []*model.Record `json:"data"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
}

// UpdateResult reports the outcome of a conditional update.
type UpdateResult struct {
	// Matched is the number of documents that satisfied the selector.
	Matched int
	// Modified is the number of documents whose content changed.
	Modified int
}

// DocumentStore is the document access used by the reconciler, the archive
// service and the aggregation helpers.
type DocumentStore interface {
	GetDataset(ctx context.Context, name string) (*model.Dataset, error)
	Find(ctx context.Context, dataset, collection string, where filter.Predicate, opts FindOptions) ([]*model.Record, error)
	PagedFind(ctx context.Context, dataset, collection string, where filter.Predicate, opts FindOptions, page, perPage int) (*Page, error)
	InsertOne(ctx context.Context, dataset, collection string, doc map[string]interface{}) (string, error)
	UpdateOne(ctx context.Context, dataset, collection string, selector, changes map[string]interface{}) (UpdateResult, error)
	UpdateOneKeyInTransaction(ctx context.Context, dataset, collection string, selector, changes map[string]interface{}) (UpdateResult, error)
	Keys(ctx context.Context, dataset string) ([]string, error)
	ArchiveData(ctx context.Context, source, collection, archive string, where filter.Predicate) (int, error)
}

var _ DocumentStore = (*Store)(nil)
