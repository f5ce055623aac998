package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/user/gridsync/internal/model"
)

// RecordsFile is the name of a dataset's operation log.
const RecordsFile = "records.jsonl"

// JSONLStore is the append-only operation log of each dataset. It is the
// source of truth the SQLite cache is rebuilt from.
type JSONLStore struct {
	baseDir string
}

// NewJSONLStore creates a new JSONL store.
func NewJSONLStore(baseDir string) *JSONLStore {
	return &JSONLStore{baseDir: baseDir}
}

// Path returns the log path of a dataset.
func (s *JSONLStore) Path(dataset string) string {
	return filepath.Join(s.baseDir, dataset, RecordsFile)
}

// Create makes an empty log for dataset. An existing log is left untouched.
func (s *JSONLStore) Create(dataset string) error {
	if err := os.MkdirAll(filepath.Join(s.baseDir, dataset), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}
	f, err := os.OpenFile(s.Path(dataset), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create records file: %w", err)
	}
	return f.Close()
}

// Append writes one operation line and syncs it to disk.
func (s *JSONLStore) Append(dataset string, records ...*model.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(s.baseDir, dataset), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	var buf bytes.Buffer
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(s.Path(dataset), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open records file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync records file: %w", err)
	}
	return f.Close()
}

// ReadAll reads every operation line in order.
// Returns an empty slice if the file doesn't exist.
func (s *JSONLStore) ReadAll(dataset string) ([]*model.Record, error) {
	file, err := os.Open(s.Path(dataset))
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Record{}, nil
		}
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}
	defer file.Close()

	var records []*model.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record model.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse record at line %d: %w", lineNum, err)
		}
		records = append(records, &record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading records file: %w", err)
	}
	return records, nil
}

// WriteAll replaces the log with the given records.
func (s *JSONLStore) WriteAll(dataset string, records []*model.Record) error {
	if err := os.MkdirAll(filepath.Join(s.baseDir, dataset), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	var buf bytes.Buffer
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := atomic.WriteFile(s.Path(dataset), &buf); err != nil {
		return fmt.Errorf("failed to write records file: %w", err)
	}
	return nil
}
