package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
)

// DefaultPerPage is the page size used when a caller passes none.
const DefaultPerPage = 10

// KeysDocID is the metaData document listing a dataset's key columns.
const KeysDocID = "keys"

// Store implements DocumentStore using JSONL logs and a SQLite cache.
type Store struct {
	baseDir string
	jsonl   *JSONLStore
	sqlite  *SQLiteCache
	config  *ConfigStore
	now     func() time.Time
}

// NewStore creates a new storage instance rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sqlite, err := NewSQLiteCache(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite cache: %w", err)
	}

	return &Store{
		baseDir: baseDir,
		jsonl:   NewJSONLStore(baseDir),
		sqlite:  sqlite,
		config:  NewConfigStore(baseDir),
		now:     time.Now,
	}, nil
}

// Close releases resources.
func (s *Store) Close() error {
	return s.sqlite.Close()
}

// BaseDir returns the data directory path.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// CreateDataset writes a new dataset configuration.
func (s *Store) CreateDataset(ctx context.Context, ds *model.Dataset) error {
	if err := model.ValidateDatasetName(ds.Name); err != nil {
		return err
	}
	if err := ds.Mapping().Validate(); err != nil {
		return err
	}
	if s.config.Exists(ds.Name) {
		return fmt.Errorf("%w: %s", model.ErrDatasetExists, ds.Name)
	}
	if err := s.config.Write(ds); err != nil {
		return err
	}
	if err := s.jsonl.Create(ds.Name); err != nil {
		s.config.Delete(ds.Name)
		return err
	}
	if err := s.sqlite.UpsertMeta(ctx, ds); err != nil {
		s.config.Delete(ds.Name)
		return err
	}
	return nil
}

// UpdateDataset replaces an existing dataset configuration.
func (s *Store) UpdateDataset(ctx context.Context, ds *model.Dataset) error {
	if !s.config.Exists(ds.Name) {
		return fmt.Errorf("%w: %s", model.ErrDatasetNotFound, ds.Name)
	}
	if err := ds.Mapping().Validate(); err != nil {
		return err
	}
	if err := s.config.Write(ds); err != nil {
		return err
	}
	return s.sqlite.UpsertMeta(ctx, ds)
}

// GetDataset reads a dataset configuration from its config file.
func (s *Store) GetDataset(ctx context.Context, name string) (*model.Dataset, error) {
	return s.config.Read(name)
}

// ListDatasets returns every dataset configuration, skipping unreadable ones.
func (s *Store) ListDatasets(ctx context.Context) ([]*model.Dataset, error) {
	names, err := s.config.List()
	if err != nil {
		return nil, err
	}
	datasets := make([]*model.Dataset, 0, len(names))
	for _, name := range names {
		ds, err := s.config.Read(name)
		if err != nil {
			continue
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

// DropDataset removes a dataset, its log and its cached documents.
func (s *Store) DropDataset(ctx context.Context, name string) error {
	if !s.config.Exists(name) {
		return fmt.Errorf("%w: %s", model.ErrDatasetNotFound, name)
	}
	if err := s.sqlite.DropDataset(ctx, name); err != nil {
		return err
	}
	return s.config.Delete(name)
}

// ReloadDataset re-reads a dataset's config.json into the cache, picking up
// hand edits, and returns the reloaded configuration.
func (s *Store) ReloadDataset(ctx context.Context, name string) (*model.Dataset, error) {
	ds, err := s.config.Read(name)
	if err != nil {
		return nil, err
	}
	if err := s.sqlite.UpsertMeta(ctx, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// LastSync returns when the dataset cache was last rebuilt.
func (s *Store) LastSync(ctx context.Context, name string) (time.Time, error) {
	return s.sqlite.LastSync(ctx, name)
}

func (s *Store) requireDataset(name string) error {
	if !s.config.Exists(name) {
		return fmt.Errorf("%w: %s", model.ErrDatasetNotFound, name)
	}
	return nil
}

// withTx runs fn inside one immediate transaction. Everything fn does,
// log appends included, must go through tx: the cache has one connection.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlite.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) logEntry(op, collection string, rec *model.Record) *model.Record {
	return &model.Record{
		ID:         rec.ID,
		Collection: collection,
		Operation:  op,
		At:         s.now().UTC(),
		Fields:     rec.Fields,
	}
}

// InsertOne stores a new document and returns its identifier. A fresh
// identifier is assigned unless doc carries _id.
func (s *Store) InsertOne(ctx context.Context, dataset, collection string, doc map[string]interface{}) (string, error) {
	if err := s.requireDataset(dataset); err != nil {
		return "", err
	}

	rec := model.RecordFromDocument(doc)
	if rec.ID == "" {
		id, err := model.NewID()
		if err != nil {
			return "", err
		}
		rec.ID = id
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertDoc(ctx, tx, dataset, collection, rec); err != nil {
			return err
		}
		return s.jsonl.Append(dataset, s.logEntry(model.OpCreate, collection, rec))
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Find returns the documents matching where.
func (s *Store) Find(ctx context.Context, dataset, collection string, where filter.Predicate, opts FindOptions) ([]*model.Record, error) {
	if err := s.requireDataset(dataset); err != nil {
		return nil, err
	}
	return findDocs(ctx, s.sqlite.db, dataset, collection, where, opts)
}

// FindByID returns one document by identifier.
func (s *Store) FindByID(ctx context.Context, dataset, collection, id string) (*model.Record, error) {
	recs, err := s.Find(ctx, dataset, collection, filter.Equals{Field: model.IDField, Value: id}, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrRecordNotFound, id)
	}
	return recs[0], nil
}

// PagedFind returns page number page (1-based) of the matching documents.
func (s *Store) PagedFind(ctx context.Context, dataset, collection string, where filter.Predicate, opts FindOptions, page, perPage int) (*Page, error) {
	if err := s.requireDataset(dataset); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}

	total, err := countDocs(ctx, s.sqlite.db, dataset, collection, where)
	if err != nil {
		return nil, err
	}

	opts.Limit = perPage
	opts.Offset = (page - 1) * perPage
	data, err := findDocs(ctx, s.sqlite.db, dataset, collection, where, opts)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []*model.Record{}
	}

	return &Page{
		Data:       data,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// UpdateOne applies changes to the first document matching every selector
// field. The match and the write happen in one transaction, so a selector
// carrying the full previous row acts as an optimistic concurrency check.
func (s *Store) UpdateOne(ctx context.Context, dataset, collection string, selector, changes map[string]interface{}) (UpdateResult, error) {
	if err := s.requireDataset(dataset); err != nil {
		return UpdateResult{}, err
	}

	var res UpdateResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = s.updateMatching(ctx, tx, dataset, collection, selector, changes)
		return err
	})
	return res, err
}

// UpdateOneKeyInTransaction is UpdateOne for edits touching key columns.
// Inside the transaction it derives the row's new key values (from changes,
// else from selector) and refuses the update when another document already
// holds all of them. A refused update reports Modified == 0.
func (s *Store) UpdateOneKeyInTransaction(ctx context.Context, dataset, collection string, selector, changes map[string]interface{}) (UpdateResult, error) {
	if err := s.requireDataset(dataset); err != nil {
		return UpdateResult{}, err
	}

	var res UpdateResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		keys, err := keyColumns(ctx, tx, dataset)
		if err != nil {
			return err
		}

		target, err := findDocs(ctx, tx, dataset, collection, filter.AllOf(selector), FindOptions{Limit: 1})
		if err != nil {
			return err
		}
		if len(target) == 0 {
			return nil
		}

		if len(keys) > 0 {
			newKeys := make(map[string]interface{}, len(keys))
			for _, k := range keys {
				if v, ok := changes[k]; ok {
					newKeys[k] = v
				} else {
					newKeys[k] = selector[k]
				}
			}
			holders, err := findDocs(ctx, tx, dataset, collection, filter.AllOf(newKeys), FindOptions{Limit: 2})
			if err != nil {
				return err
			}
			for _, h := range holders {
				if h.ID != target[0].ID {
					res.Matched = 1
					return nil
				}
			}
		}

		res, err = s.updateMatching(ctx, tx, dataset, collection, selector, changes)
		return err
	})
	return res, err
}

func (s *Store) updateMatching(ctx context.Context, tx *sql.Tx, dataset, collection string, selector, changes map[string]interface{}) (UpdateResult, error) {
	found, err := findDocs(ctx, tx, dataset, collection, filter.AllOf(selector), FindOptions{Limit: 1})
	if err != nil {
		return UpdateResult{}, err
	}
	if len(found) == 0 {
		return UpdateResult{}, nil
	}

	rec := found[0]
	before, err := json.Marshal(rec.Fields)
	if err != nil {
		return UpdateResult{}, err
	}
	for k, v := range changes {
		if k == model.IDField {
			continue
		}
		rec.Fields[k] = v
	}
	after, err := json.Marshal(rec.Fields)
	if err != nil {
		return UpdateResult{}, err
	}
	if bytes.Equal(before, after) {
		return UpdateResult{Matched: 1}, nil
	}

	if err := putDoc(ctx, tx, dataset, collection, rec); err != nil {
		return UpdateResult{}, err
	}
	if err := s.jsonl.Append(dataset, s.logEntry(model.OpUpdate, collection, rec)); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Matched: 1, Modified: 1}, nil
}

// Keys returns the key columns registered for a dataset.
func (s *Store) Keys(ctx context.Context, dataset string) ([]string, error) {
	if err := s.requireDataset(dataset); err != nil {
		return nil, err
	}
	return keyColumns(ctx, s.sqlite.db, dataset)
}

// SetKeys registers the columns that together identify a row uniquely.
func (s *Store) SetKeys(ctx context.Context, dataset string, keys []string) error {
	if err := s.requireDataset(dataset); err != nil {
		return err
	}
	list := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		list = append(list, k)
	}
	rec := &model.Record{ID: KeysDocID, Fields: map[string]interface{}{"keys": list}}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := putDoc(ctx, tx, dataset, model.CollectionMetaData, rec); err != nil {
			return err
		}
		return s.jsonl.Append(dataset, s.logEntry(model.OpUpdate, model.CollectionMetaData, rec))
	})
}

func keyColumns(ctx context.Context, q querier, dataset string) ([]string, error) {
	docs, err := findDocs(ctx, q, dataset, model.CollectionMetaData,
		filter.Equals{Field: model.IDField, Value: KeysDocID}, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	raw, _ := docs[0].Fields["keys"].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

// ArchiveData moves the documents of source/collection matching where into
// the same collection of archive, in one transaction. It returns how many
// documents moved.
func (s *Store) ArchiveData(ctx context.Context, source, collection, archive string, where filter.Predicate) (int, error) {
	if err := s.requireDataset(source); err != nil {
		return 0, err
	}
	if err := s.requireDataset(archive); err != nil {
		return 0, err
	}
	if source == archive {
		return 0, fmt.Errorf("cannot archive %s into itself", source)
	}

	moved := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		docs, err := findDocs(ctx, tx, source, collection, where, FindOptions{})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		created := make([]*model.Record, 0, len(docs))
		deleted := make([]*model.Record, 0, len(docs))
		for _, rec := range docs {
			if err := putDoc(ctx, tx, archive, collection, rec); err != nil {
				return err
			}
			if err := deleteDoc(ctx, tx, source, collection, rec.ID); err != nil {
				return err
			}
			created = append(created, s.logEntry(model.OpCreate, collection, rec))
			deleted = append(deleted, s.logEntry(model.OpDelete, collection, model.NewRecord(rec.ID)))
		}

		if err := s.jsonl.Append(archive, created...); err != nil {
			return err
		}
		if err := s.jsonl.Append(source, deleted...); err != nil {
			return err
		}
		moved = len(docs)
		return nil
	})
	return moved, err
}

type docKey struct {
	collection string
	id         string
}

// RebuildCache replaces a dataset's cached documents with the state
// obtained by replaying its JSONL log.
func (s *Store) RebuildCache(ctx context.Context, dataset string) error {
	ds, err := s.config.Read(dataset)
	if err != nil {
		return err
	}

	ops, err := s.jsonl.ReadAll(dataset)
	if err != nil {
		return err
	}

	state := make(map[docKey]*model.Record)
	var order []docKey
	for _, op := range ops {
		collection := op.Collection
		if collection == "" {
			collection = model.CollectionData
		}
		key := docKey{collection: collection, id: op.ID}
		switch op.Operation {
		case model.OpCreate, model.OpUpdate:
			if _, seen := state[key]; !seen {
				order = append(order, key)
			}
			state[key] = op
		case model.OpDelete:
			delete(state, key)
		}
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := clearDataset(ctx, tx, dataset); err != nil {
			return err
		}
		for _, key := range order {
			rec, ok := state[key]
			if !ok {
				continue
			}
			if err := putDoc(ctx, tx, dataset, key.collection, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.sqlite.UpsertMeta(ctx, ds); err != nil {
		return err
	}
	return s.sqlite.SetLastSync(ctx, dataset, s.now())
}

// Compact rewrites a dataset's log as one create line per current document.
func (s *Store) Compact(ctx context.Context, dataset string) (int, error) {
	if err := s.requireDataset(dataset); err != nil {
		return 0, err
	}

	var lines []*model.Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		names, err := collections(ctx, tx, dataset)
		if err != nil {
			return err
		}
		sort.Strings(names)
		for _, name := range names {
			docs, err := findDocs(ctx, tx, dataset, name, nil, FindOptions{Sort: filter.SortSpec{{Field: model.IDField, Direction: filter.Asc}}})
			if err != nil {
				return err
			}
			for _, rec := range docs {
				lines = append(lines, s.logEntry(model.OpCreate, name, rec))
			}
		}
		return s.jsonl.WriteAll(dataset, lines)
	})
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}

// IsNotFound reports whether err means a dataset or record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrDatasetNotFound) || errors.Is(err, model.ErrRecordNotFound)
}
