package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// KeyField is the display field holding the tracker issue identifier.
const KeyField = "key"

// FieldBinding maps one display field onto a storage column.
type FieldBinding struct {
	Field  string
	Column string
}

// FieldMapping is an ordered list of display field to storage column
// bindings. Several fields may share a column; their order in the mapping is
// the order of their blocks inside that column.
type FieldMapping []FieldBinding

// Column returns the storage column of a display field.
func (m FieldMapping) Column(field string) (string, bool) {
	for _, b := range m {
		if b.Field == field {
			return b.Column, true
		}
	}
	return "", false
}

// Has reports whether field is declared in the mapping.
func (m FieldMapping) Has(field string) bool {
	_, ok := m.Column(field)
	return ok
}

// MapsColumn reports whether any display field is stored in column.
func (m FieldMapping) MapsColumn(column string) bool {
	for _, b := range m {
		if b.Column == column {
			return true
		}
	}
	return false
}

// KeyColumn returns the column holding the issue identifier.
func (m FieldMapping) KeyColumn() (string, bool) {
	return m.Column(KeyField)
}

// FieldsOf returns the display fields stored in column, in mapping order.
func (m FieldMapping) FieldsOf(column string) []string {
	var fields []string
	for _, b := range m {
		if b.Column == column {
			fields = append(fields, b.Field)
		}
	}
	return fields
}

// Validate checks that the mapping has no empty or duplicate fields.
func (m FieldMapping) Validate() error {
	seen := make(map[string]bool, len(m))
	for _, b := range m {
		if b.Field == "" || b.Column == "" {
			return fmt.Errorf("%w: empty field or column", ErrInvalidMapping)
		}
		if seen[b.Field] {
			return fmt.Errorf("%w: field %q mapped twice", ErrInvalidMapping, b.Field)
		}
		seen[b.Field] = true
	}
	return nil
}

// MarshalJSON writes the mapping as a JSON object in mapping order.
func (m FieldMapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(b.Field)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(b.Column)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of field to column, keeping key order.
func (m *FieldMapping) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected object", ErrInvalidMapping)
	}

	var out FieldMapping
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		field, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected field name", ErrInvalidMapping)
		}

		var column string
		if err := dec.Decode(&column); err != nil {
			return fmt.Errorf("%w: column for %q: %v", ErrInvalidMapping, field, err)
		}
		out = append(out, FieldBinding{Field: field, Column: column})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out
	return nil
}
