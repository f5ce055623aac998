// Package model provides core data types for gridsync.
package model

import "errors"

// Error types for store and dataset operations
var (
	ErrDatasetNotFound    = errors.New("dataset not found")
	ErrDatasetExists      = errors.New("dataset already exists")
	ErrInvalidDatasetName = errors.New("invalid dataset name")
	ErrRecordNotFound     = errors.New("record not found")
	ErrInvalidID          = errors.New("invalid record ID")
	ErrInvalidFieldName   = errors.New("invalid field name")
	ErrInvalidPredicate   = errors.New("invalid predicate")
	ErrInvalidMapping     = errors.New("invalid field mapping")
)
