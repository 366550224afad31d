// Package bleveindex implements the search engine port with embedded bleve
// indices. Aliases are bleve IndexAliases, so a swap is atomic for readers.
package bleveindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// aliasFile persists alias targets next to on-disk indices.
const aliasFile = "aliases.json"

// Engine implements output.SearchEngine.
type Engine struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	indices map[string]bleve.Index
	aliases map[string]bleve.IndexAlias
	targets map[string][]string
}

// New opens an engine rooted at dir. An empty dir keeps every index in
// memory. Indices and aliases found in dir are reopened.
func New(dir string, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		dir:     dir,
		logger:  logger,
		indices: make(map[string]bleve.Index),
		aliases: make(map[string]bleve.IndexAlias),
		targets: make(map[string][]string),
	}
	if dir == "" {
		return e, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	if err := e.reopen(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) reopen() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return fmt.Errorf("reading index directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		idx, err := bleve.Open(filepath.Join(e.dir, entry.Name()))
		if err != nil {
			e.logger.Warn("skipping unreadable index", "index", entry.Name(), "error", err)
			continue
		}
		e.indices[entry.Name()] = idx
	}

	data, err := os.ReadFile(filepath.Join(e.dir, aliasFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading aliases: %w", err)
	}

	var saved map[string][]string
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("decoding aliases: %w", err)
	}
	for alias, names := range saved {
		for _, name := range names {
			if idx, ok := e.indices[name]; ok {
				e.addToAlias(alias, name, idx)
			}
		}
	}
	return nil
}

// Close closes every open index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, idx := range e.indices {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	e.indices = make(map[string]bleve.Index)
	return errors.Join(errs...)
}

// Alias returns the searchable alias, or nil when it points nowhere.
func (e *Engine) Alias(name string) bleve.IndexAlias {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.aliases[name]
}

// CreateIndex implements output.SearchEngine.
func (e *Engine) CreateIndex(_ context.Context, name string, schema domain.IndexSchema) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indices[name]; ok {
		return fmt.Errorf("%s: %w", name, domain.ErrIndexAlreadyExists)
	}

	m := indexMapping(schema)
	var (
		idx bleve.Index
		err error
	)
	if e.dir == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.New(filepath.Join(e.dir, name), m)
	}
	if errors.Is(err, bleve.ErrorIndexPathExists) {
		return fmt.Errorf("%s: %w", name, domain.ErrIndexAlreadyExists)
	}
	if err != nil {
		return &domain.IndexError{Target: name, Operation: "create", Err: err}
	}

	e.indices[name] = idx
	return nil
}

// IndexExists implements output.SearchEngine.
func (e *Engine) IndexExists(_ context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indices[name]
	return ok, nil
}

// DeleteIndex implements output.SearchEngine. The index also leaves every
// alias pointing at it.
func (e *Engine) DeleteIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.indices[name]
	if !ok {
		return fmt.Errorf("index %s: %w", name, domain.ErrNotFound)
	}

	for alias, names := range e.targets {
		if slices.Contains(names, name) {
			e.aliases[alias].Remove(idx)
			e.targets[alias] = slices.DeleteFunc(names, func(n string) bool { return n == name })
		}
	}
	delete(e.indices, name)

	if err := idx.Close(); err != nil {
		e.logger.Warn("closing deleted index", "index", name, "error", err)
	}
	if e.dir != "" {
		if err := os.RemoveAll(filepath.Join(e.dir, name)); err != nil {
			return &domain.IndexError{Target: name, Operation: "delete", Err: err}
		}
	}
	return e.saveAliases()
}

// ResolveAlias implements output.SearchEngine.
func (e *Engine) ResolveAlias(_ context.Context, alias string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.targets[alias]), nil
}

// PutAlias implements output.SearchEngine.
func (e *Engine) PutAlias(_ context.Context, index, alias string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.indices[index]
	if !ok {
		return fmt.Errorf("index %s: %w", index, domain.ErrNotFound)
	}
	if slices.Contains(e.targets[alias], index) {
		return nil
	}
	e.addToAlias(alias, index, idx)
	return e.saveAliases()
}

func (e *Engine) addToAlias(alias, name string, idx bleve.Index) {
	a, ok := e.aliases[alias]
	if !ok {
		a = bleve.NewIndexAlias()
		e.aliases[alias] = a
	}
	a.Add(idx)
	e.targets[alias] = append(e.targets[alias], name)
}

// SwapAlias implements output.SearchEngine.
func (e *Engine) SwapAlias(_ context.Context, alias string, from []string, to string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	in, ok := e.indices[to]
	if !ok {
		return fmt.Errorf("index %s: %w", to, domain.ErrNotFound)
	}

	var out []bleve.Index
	var remaining []string
	for _, name := range e.targets[alias] {
		if name != to && slices.Contains(from, name) {
			out = append(out, e.indices[name])
			continue
		}
		if name != to {
			remaining = append(remaining, name)
		}
	}

	a, ok := e.aliases[alias]
	if !ok {
		a = bleve.NewIndexAlias()
		e.aliases[alias] = a
	}
	a.Swap([]bleve.Index{in}, out)
	e.targets[alias] = append(remaining, to)

	e.logger.Info("alias swapped", "alias", alias, "from", from, "to", to)
	return e.saveAliases()
}

// Bulk implements output.SearchEngine. Documents the mapping rejects are
// reported as failures and the rest of the batch is still written.
func (e *Engine) Bulk(ctx context.Context, index string, docs []domain.SearchDocument) ([]domain.BulkItemFailure, error) {
	e.mu.RLock()
	idx, ok := e.indices[index]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("index %s: %w", index, domain.ErrNotFound)
	}

	var failures []domain.BulkItemFailure
	batch := idx.NewBatch()
	for _, d := range docs {
		body, err := normalize(d.Body)
		if err == nil {
			err = batch.Index(d.ID, body)
		}
		if err != nil {
			failures = append(failures, domain.BulkItemFailure{
				ID:     d.ID,
				Status: 400,
				Type:   "mapper_parsing_exception",
				Reason: err.Error(),
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := idx.Batch(batch); err != nil {
		return nil, &domain.IndexError{Target: index, Operation: "bulk", Err: err}
	}
	return failures, nil
}

// normalize turns a document body into plain JSON values so that geometry
// types are seen as GeoJSON.
func normalize(body map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Refresh implements output.SearchEngine. Batches are searchable as soon as
// they are applied.
func (e *Engine) Refresh(ctx context.Context, index string) error {
	ok, _ := e.IndexExists(ctx, index)
	if !ok {
		return fmt.Errorf("index %s: %w", index, domain.ErrNotFound)
	}
	return nil
}

// ListIndices implements output.SearchEngine.
func (e *Engine) ListIndices(_ context.Context) ([]domain.IndexStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.indices))
	for name := range e.indices {
		names = append(names, name)
	}
	slices.Sort(names)

	stats := make([]domain.IndexStats, 0, len(names))
	for _, name := range names {
		count, err := e.indices[name].DocCount()
		if err != nil {
			return nil, &domain.IndexError{Target: name, Operation: "doc count", Err: err}
		}
		stats = append(stats, domain.IndexStats{
			Name:      name,
			DocsCount: int64(count),
			StoreSize: e.storeSize(name),
			Health:    "green",
		})
	}
	return stats, nil
}

func (e *Engine) storeSize(name string) string {
	if e.dir == "" {
		return ""
	}
	var total int64
	_ = filepath.WalkDir(filepath.Join(e.dir, name), func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return fmt.Sprintf("%db", total)
}

// Ping implements output.SearchEngine.
func (e *Engine) Ping(context.Context) error {
	return nil
}

// saveAliases writes alias targets for on-disk engines. Caller holds mu.
func (e *Engine) saveAliases() error {
	if e.dir == "" {
		return nil
	}
	data, err := json.Marshal(e.targets)
	if err != nil {
		return fmt.Errorf("encoding aliases: %w", err)
	}
	tmp := filepath.Join(e.dir, aliasFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing aliases: %w", err)
	}
	return os.Rename(tmp, filepath.Join(e.dir, aliasFile))
}

func indexMapping(schema domain.IndexSchema) mapping.IndexMapping {
	doc := bleve.NewDocumentStaticMapping()
	for _, f := range schema.Fields {
		switch f.Kind {
		case domain.FieldKeyword:
			doc.AddFieldMappingsAt(f.Name, bleve.NewKeywordFieldMapping())
		case domain.FieldText:
			fields := []*mapping.FieldMapping{bleve.NewTextFieldMapping()}
			if f.KeywordSubfield {
				kw := bleve.NewKeywordFieldMapping()
				kw.Name = f.Name + ".keyword"
				fields = append(fields, kw)
			}
			doc.AddFieldMappingsAt(f.Name, fields...)
		case domain.FieldGeoPoint:
			doc.AddFieldMappingsAt(f.Name, bleve.NewGeoPointFieldMapping())
		case domain.FieldGeoShape:
			doc.AddFieldMappingsAt(f.Name, bleve.NewGeoShapeFieldMapping())
		case domain.FieldObject:
			doc.AddSubDocumentMapping(f.Name, bleve.NewDocumentDisabledMapping())
		}
	}

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}
