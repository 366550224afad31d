// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
)

// DatasetStorage defines the secondary port for boundary dataset files.
type DatasetStorage interface {
	// List returns every GeoJSON dataset in the storage.
	List(ctx context.Context) ([]StorageObject, error)

	// Open returns a reader for the given dataset.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a dataset exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// StorageObject represents a file in dataset storage.
type StorageObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeHTTP  StorageType = "http"
	StorageTypeLocal StorageType = "local"
)
