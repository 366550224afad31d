package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrMissingCoordinates  = fmt.Errorf("coordinates missing: %w", ErrInvalidInput)
	ErrInvalidCoordinate   = fmt.Errorf("coordinate: %w", ErrInvalidInput)
	ErrUnknownIndexType    = fmt.Errorf("unknown index type: %w", ErrInvalidInput)
	ErrUnknownBoundaryType = fmt.Errorf("unknown boundary type: %w", ErrInvalidInput)
	ErrUnknownCollection   = fmt.Errorf("unknown collection: %w", ErrInvalidInput)
	ErrInvalidZoom         = fmt.Errorf("zoom: %w", ErrInvalidInput)
	ErrAlreadyRunning      = fmt.Errorf("reindex already running: %w", ErrConflict)
	ErrRepairRunning       = fmt.Errorf("repair already running: %w", ErrConflict)
	ErrBoundaryNotFound    = fmt.Errorf("boundary: %w", ErrNotFound)
	ErrUnsupportedGeometry = fmt.Errorf("geometry type: %w", ErrUnsupported)
	ErrEmptyGeometry       = fmt.Errorf("empty geometry: %w", ErrInvalidInput)
	ErrUnrepairable        = fmt.Errorf("unrepairable geometry: %w", ErrInvalidInput)
	ErrIndexAlreadyExists  = fmt.Errorf("index already exists: %w", ErrConflict)
	ErrReindexTimeout      = fmt.Errorf("reindex timed out: %w", ErrUnavailable)
	ErrStorageUnavailable  = fmt.Errorf("storage: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string // Field that failed validation
	Value      any    // The invalid value
	Constraint string // The constraint that was violated
	Message    string // Human-readable message
	Err        error  // Optional specific sentinel
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// StorageError represents an error during dataset storage operations.
type StorageError struct {
	Operation string // Operation that failed (open, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IndexError represents a structural failure of an index operation,
// either a spatial index on a collection or a physical search index.
type IndexError struct {
	Target    string // Collection or index name
	Operation string // create, delete, alias, ...
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("index error during %s on %s: %v", e.Operation, e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *IndexError) Unwrap() error {
	return e.Err
}

// AdvisoryIndexError is a spatial index creation failure caused by the quality
// of individual documents rather than by the collection or the server.
type AdvisoryIndexError struct {
	Collection string
	Err        error
}

// Error implements the error interface.
func (e *AdvisoryIndexError) Error() string {
	return fmt.Sprintf("advisory index warning on %s: %v", e.Collection, e.Err)
}

// Unwrap returns the underlying error.
func (e *AdvisoryIndexError) Unwrap() error {
	return e.Err
}

// BulkItemFailure describes one document rejected by the search engine.
type BulkItemFailure struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// BulkIndexError reports every document of a batch the engine rejected.
type BulkIndexError struct {
	Index       string
	FailedItems []BulkItemFailure
}

// Error implements the error interface.
func (e *BulkIndexError) Error() string {
	ids := make([]string, 0, min(len(e.FailedItems), 5))
	for i, item := range e.FailedItems {
		if i == 5 {
			ids = append(ids, "...")
			break
		}
		ids = append(ids, item.ID)
	}
	return fmt.Sprintf("bulk load into %s rejected %d document(s): %s",
		e.Index, len(e.FailedItems), strings.Join(ids, ", "))
}

// Unwrap returns the underlying error type.
func (e *BulkIndexError) Unwrap() error {
	return ErrInternal
}

// RecordError marks a failure scoped to a single source record. Streams
// yield it without terminating so callers can skip the record.
type RecordError struct {
	ID  string
	Err error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
