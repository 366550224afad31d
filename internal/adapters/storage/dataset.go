// Package storage provides the dataset storage adapters that boundary
// GeoJSON files are synced from.
package storage

import (
	"strings"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// datasetSuffix marks boundary dataset files.
const datasetSuffix = ".geojson"

// IsDataset reports whether an object key names a boundary dataset.
func IsDataset(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), datasetSuffix)
}

// relativeKey strips a storage prefix from an object key.
func relativeKey(key, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}

// joinKey adds a storage prefix to a relative key.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

func storageErr(op, key string, err error) error {
	return &domain.StorageError{Operation: op, Key: key, Err: err}
}
