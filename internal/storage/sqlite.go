package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
)

// driverName is go-sqlite3 with a REGEXP implementation attached.
const driverName = "sqlite3_gridsync"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", regexpMatch, true)
		},
	})
}

var patternCache sync.Map // pattern -> *regexp.Regexp

// regexpMatch reports whether value contains a case-insensitive match of
// pattern. Only text values can match. Patterns that do not compile are
// matched literally.
func regexpMatch(pattern string, value interface{}) bool {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return false
	}

	re, ok := patternCache.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			compiled = regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
		}
		re, _ = patternCache.LoadOrStore(pattern, compiled)
	}
	return re.(*regexp.Regexp).MatchString(s)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteCache holds every dataset's documents in one table for querying.
type SQLiteCache struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteCache opens (or creates) cache.db under baseDir.
func NewSQLiteCache(baseDir string) (*SQLiteCache, error) {
	dbPath := filepath.Join(baseDir, "cache.db")

	dsn := "file:" + dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: transactions and the JSONL appends they guard are
	// serialized, and the immediate lock keeps other processes out.
	db.SetMaxOpenConns(1)

	cache := &SQLiteCache{db: db, dbPath: dbPath}
	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *SQLiteCache) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _dataset_meta (
			dataset_name TEXT PRIMARY KEY,
			config_json TEXT,
			last_sync TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			dataset TEXT NOT NULL,
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (dataset, collection, id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// UpsertMeta caches a dataset's configuration.
func (c *SQLiteCache) UpsertMeta(ctx context.Context, ds *model.Dataset) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO _dataset_meta (dataset_name, config_json) VALUES (?, ?)
		ON CONFLICT(dataset_name) DO UPDATE SET config_json = excluded.config_json
	`, ds.Name, string(data))
	if err != nil {
		return fmt.Errorf("failed to update dataset meta: %w", err)
	}
	return nil
}

// SetLastSync records when the dataset was last rebuilt from its log.
func (c *SQLiteCache) SetLastSync(ctx context.Context, dataset string, at time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE _dataset_meta SET last_sync = ? WHERE dataset_name = ?`,
		at.UTC().Format(time.RFC3339), dataset)
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}
	return nil
}

// LastSync returns the last rebuild time of a dataset, zero if never.
func (c *SQLiteCache) LastSync(ctx context.Context, dataset string) (time.Time, error) {
	var s sql.NullString
	err := c.db.QueryRowContext(ctx,
		`SELECT last_sync FROM _dataset_meta WHERE dataset_name = ?`, dataset).Scan(&s)
	if err == sql.ErrNoRows || (err == nil && (!s.Valid || s.String == "")) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync time: %w", err)
	}
	return time.Parse(time.RFC3339, s.String)
}

// DropDataset removes a dataset's documents and metadata.
func (c *SQLiteCache) DropDataset(ctx context.Context, dataset string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE dataset = ?`, dataset); err != nil {
		return fmt.Errorf("failed to drop documents: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM _dataset_meta WHERE dataset_name = ?`, dataset); err != nil {
		return fmt.Errorf("failed to drop dataset meta: %w", err)
	}
	return nil
}

func clearDataset(ctx context.Context, q querier, dataset string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM documents WHERE dataset = ?`, dataset); err != nil {
		return fmt.Errorf("failed to clear dataset: %w", err)
	}
	return nil
}

func putDoc(ctx context.Context, q querier, dataset, collection string, rec *model.Record) error {
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (dataset, collection, id, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(dataset, collection, id) DO UPDATE SET doc = excluded.doc
	`, dataset, collection, rec.ID, string(data))
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

func insertDoc(ctx context.Context, q querier, dataset, collection string, rec *model.Record) error {
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO documents (dataset, collection, id, doc) VALUES (?, ?, ?, ?)`,
		dataset, collection, rec.ID, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", rec.ID, err)
	}
	return nil
}

func deleteDoc(ctx context.Context, q querier, dataset, collection, id string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM documents WHERE dataset = ? AND collection = ? AND id = ?`,
		dataset, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// findDocs runs a compiled predicate against one collection.
func findDocs(ctx context.Context, q querier, dataset, collection string, where filter.Predicate, opts FindOptions) ([]*model.Record, error) {
	cond, params, err := compileWhere(where)
	if err != nil {
		return nil, err
	}
	order, orderParams, err := compileOrder(opts.Sort)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, doc FROM documents WHERE dataset = ? AND collection = ? AND (` + cond + `) ORDER BY ` + order
	args := append([]interface{}{dataset, collection}, params...)
	args = append(args, orderParams...)

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		rec := model.NewRecord(id)
		if err := json.Unmarshal([]byte(doc), &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		records = append(records, project(rec, opts.Projection))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return records, nil
}

func countDocs(ctx context.Context, q querier, dataset, collection string, where filter.Predicate) (int, error) {
	cond, params, err := compileWhere(where)
	if err != nil {
		return 0, err
	}
	args := append([]interface{}{dataset, collection}, params...)

	var n int
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE dataset = ? AND collection = ? AND (`+cond+`)`,
		args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// collections lists the collections that hold documents for a dataset.
func collections(ctx context.Context, q querier, dataset string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT collection FROM documents WHERE dataset = ? ORDER BY collection`, dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func project(rec *model.Record, fields []string) *model.Record {
	if len(fields) == 0 {
		return rec
	}
	out := model.NewRecord(rec.ID)
	for _, f := range fields {
		if v, ok := rec.Fields[f]; ok {
			out.Fields[f] = v
		}
	}
	return out
}
