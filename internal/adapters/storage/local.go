package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// LocalStorage implements output.DatasetStorage for a directory tree.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a local storage adapter rooted at basePath.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// List returns every dataset below the base directory. Keys use forward
// slashes.
func (s *LocalStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsDataset(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		objects = append(objects, output.StorageObject{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, storageErr("list", s.basePath, err)
	}
	return objects, nil
}

// Open implements output.DatasetStorage.
func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //#nosec G304 -- path is confined to basePath
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storageErr("open", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("open", key, err)
	}
	return f, nil
}

// Exists implements output.DatasetStorage.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, storageErr("stat", key, err)
}

// FullPath returns the filesystem path of key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// resolve maps a key to a path and rejects keys escaping the base directory.
func (s *LocalStorage) resolve(key string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", &domain.ValidationError{Field: "key", Value: key, Constraint: "must stay inside the dataset directory"}
	}
	return s.FullPath(key), nil
}
