package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Operation types for JSONL log lines
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Collections every dataset carries.
const (
	CollectionData     = "data"
	CollectionMetaData = "metaData"
	CollectionEditLog  = "editlog"
)

// IDField is the document key of the identity column.
const IDField = "_id"

// Record is a single document of a dataset collection. Fields holds the
// document body; system fields are prefixed with "_" on the wire and are
// only populated on JSONL log lines.
type Record struct {
	ID         string
	Collection string
	Operation  string
	At         time.Time
	Fields     map[string]interface{}
}

// NewRecord returns a record with an empty field map.
func NewRecord(id string) *Record {
	return &Record{ID: id, Fields: make(map[string]interface{})}
}

// Document returns the record as a flat document with its identifier under _id.
func (r *Record) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc[IDField] = r.ID
	return doc
}

// Get returns the value of a field. The identifier is reachable as _id.
func (r *Record) Get(name string) (interface{}, bool) {
	if name == IDField {
		return r.ID, r.ID != ""
	}
	v, ok := r.Fields[name]
	return v, ok
}

// MarshalJSON flattens Fields next to the system fields.
func (r *Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(r.Fields)+4)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["_id"] = r.ID
	if r.Collection != "" {
		m["_collection"] = r.Collection
	}
	if r.Operation != "" {
		m["_op"] = r.Operation
	}
	if !r.At.IsZero() {
		m["_at"] = r.At
	}
	return json.Marshal(m)
}

// UnmarshalJSON extracts system fields and keeps everything else in Fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	if v, ok := m["_id"].(string); ok {
		r.ID = v
	}
	if v, ok := m["_collection"].(string); ok {
		r.Collection = v
	}
	if v, ok := m["_op"].(string); ok {
		r.Operation = v
	}
	if v, ok := m["_at"].(string); ok {
		t, _ := time.Parse(time.RFC3339Nano, v)
		r.At = t
	}

	r.Fields = make(map[string]interface{}, len(m))
	for k, v := range m {
		if !strings.HasPrefix(k, "_") {
			r.Fields[k] = v
		}
	}
	return nil
}

// RecordFromDocument splits a flat document into identifier and fields.
// Other "_"-prefixed keys are dropped.
func RecordFromDocument(doc map[string]interface{}) *Record {
	r := NewRecord("")
	for k, v := range doc {
		if k == IDField {
			if s, ok := v.(string); ok {
				r.ID = s
			}
			continue
		}
		if strings.HasPrefix(k, "_") {
			continue
		}
		r.Fields[k] = v
	}
	return r
}
