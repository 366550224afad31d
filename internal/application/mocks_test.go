package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockEngine implements output.SearchEngine in memory.
type mockEngine struct {
	mu      sync.Mutex
	indices map[string][]domain.SearchDocument
	aliases map[string][]string // alias -> indices

	createErr  error
	refreshErr error
	swapErr    error
	deleteErr  map[string]error
	// reject returns a failure for documents the engine refuses.
	reject func(doc domain.SearchDocument) *domain.BulkItemFailure
	// bulkGate, when set, blocks every Bulk call until it is closed.
	bulkGate chan struct{}
	bulkSeen chan struct{}

	bulkCalls int
	deleted   []string
	swaps     int
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		indices:   make(map[string][]domain.SearchDocument),
		aliases:   make(map[string][]string),
		deleteErr: make(map[string]error),
	}
}

// seedLive creates index with docs and points alias at it.
func (m *mockEngine) seedLive(alias, index string, docs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range docs {
		m.indices[index] = append(m.indices[index], domain.SearchDocument{ID: fmt.Sprint(i)})
	}
	m.aliases[alias] = []string{index}
}

func (m *mockEngine) aliasTargets(alias string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.aliases[alias])
}

func (m *mockEngine) hasIndex(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.indices[name]
	return ok
}

func (m *mockEngine) CreateIndex(_ context.Context, name string, _ domain.IndexSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.indices[name]; ok {
		return fmt.Errorf("%s: %w", name, domain.ErrIndexAlreadyExists)
	}
	m.indices[name] = nil
	return nil
}

func (m *mockEngine) IndexExists(_ context.Context, name string) (bool, error) {
	return m.hasIndex(name), nil
}

func (m *mockEngine) DeleteIndex(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[name]; err != nil {
		return err
	}
	if _, ok := m.indices[name]; !ok {
		return fmt.Errorf("index %s: %w", name, domain.ErrNotFound)
	}
	delete(m.indices, name)
	for alias, targets := range m.aliases {
		m.aliases[alias] = slices.DeleteFunc(targets, func(t string) bool { return t == name })
		if len(m.aliases[alias]) == 0 {
			delete(m.aliases, alias)
		}
	}
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *mockEngine) ResolveAlias(_ context.Context, alias string) ([]string, error) {
	return m.aliasTargets(alias), nil
}

func (m *mockEngine) PutAlias(_ context.Context, index, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indices[index]; !ok {
		return fmt.Errorf("index %s: %w", index, domain.ErrNotFound)
	}
	if !slices.Contains(m.aliases[alias], index) {
		m.aliases[alias] = append(m.aliases[alias], index)
	}
	return nil
}

func (m *mockEngine) SwapAlias(_ context.Context, alias string, from []string, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.swapErr != nil {
		return m.swapErr
	}
	targets := slices.DeleteFunc(slices.Clone(m.aliases[alias]), func(t string) bool {
		return slices.Contains(from, t)
	})
	m.aliases[alias] = append(targets, to)
	m.swaps++
	return nil
}

func (m *mockEngine) Bulk(ctx context.Context, index string, docs []domain.SearchDocument) ([]domain.BulkItemFailure, error) {
	m.mu.Lock()
	m.bulkCalls++
	gate, seen := m.bulkGate, m.bulkSeen
	m.mu.Unlock()

	if gate != nil {
		if seen != nil {
			select {
			case seen <- struct{}{}:
			default:
			}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []domain.BulkItemFailure
	for _, d := range docs {
		if m.reject != nil {
			if f := m.reject(d); f != nil {
				failed = append(failed, *f)
				continue
			}
		}
		m.indices[index] = append(m.indices[index], d)
	}
	return failed, nil
}

func (m *mockEngine) Refresh(_ context.Context, _ string) error {
	return m.refreshErr
}

func (m *mockEngine) ListIndices(_ context.Context) ([]domain.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make([]domain.IndexStats, 0, len(m.indices))
	for _, name := range slices.Sorted(maps.Keys(m.indices)) {
		stats = append(stats, domain.IndexStats{Name: name, DocsCount: int64(len(m.indices[name])), Health: "green"})
	}
	return stats, nil
}

func (m *mockEngine) Ping(_ context.Context) error { return nil }

// mockSource implements output.EntitySource over fixed slices.
type mockSource struct {
	hospitals  []domain.Facility
	pharmacies []domain.Facility
	features   []domain.MapFeature
	points     []domain.SigunguPoint
	boundaries []domain.BoundaryFeature
	// errAt yields err instead of the record at that position.
	errAt int
	err   error
}

func seqOf[T any](items []T, errAt int, err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for i, item := range items {
			if err != nil && i == errAt {
				var zero T
				if !yield(zero, err) {
					return
				}
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (m *mockSource) Hospitals(_ context.Context) iter.Seq2[domain.Facility, error] {
	return seqOf(m.hospitals, m.errAt, m.err)
}

func (m *mockSource) Pharmacies(_ context.Context) iter.Seq2[domain.Facility, error] {
	return seqOf(m.pharmacies, m.errAt, m.err)
}

func (m *mockSource) MapFeatures(_ context.Context) iter.Seq2[domain.MapFeature, error] {
	return seqOf(m.features, m.errAt, m.err)
}

func (m *mockSource) SigunguPoints(_ context.Context) iter.Seq2[domain.SigunguPoint, error] {
	return seqOf(m.points, m.errAt, m.err)
}

func (m *mockSource) Boundaries(_ context.Context) iter.Seq2[domain.BoundaryFeature, error] {
	return seqOf(m.boundaries, m.errAt, m.err)
}

// mockBoundaryStore implements output.BoundaryStore in memory.
type mockBoundaryStore struct {
	mu          sync.Mutex
	collections map[string][]domain.BoundaryFeature
	spatial     map[string]bool
	createErr   map[string]error
	updateErr   error
	streamErr   error
	// badIDs are yielded as record errors while streaming.
	badIDs map[string]bool
	// vanished IDs match no document on update.
	vanished map[string]bool

	updates   map[string][]domain.GeometryUpdate
	upserts   map[string][]domain.BoundaryFeature
	findCalls int
	// contains decides which feature contains a coordinate.
	contains func(collection string, at domain.Coordinate) *domain.BoundaryFeature
}

func newMockBoundaryStore() *mockBoundaryStore {
	return &mockBoundaryStore{
		collections: make(map[string][]domain.BoundaryFeature),
		spatial:     make(map[string]bool),
		createErr:   make(map[string]error),
		badIDs:      make(map[string]bool),
		vanished:    make(map[string]bool),
		updates:     make(map[string][]domain.GeometryUpdate),
		upserts:     make(map[string][]domain.BoundaryFeature),
	}
}

func (m *mockBoundaryStore) Stream(_ context.Context, collection string, _ int) iter.Seq2[domain.BoundaryFeature, error] {
	m.mu.Lock()
	docs := slices.Clone(m.collections[collection])
	streamErr := m.streamErr
	m.mu.Unlock()

	return func(yield func(domain.BoundaryFeature, error) bool) {
		for _, d := range docs {
			if m.badIDs[d.ID] {
				if !yield(domain.BoundaryFeature{}, &domain.RecordError{ID: d.ID, Err: fmt.Errorf("bad bson")}) {
					return
				}
				continue
			}
			if !yield(d, nil) {
				return
			}
		}
		if streamErr != nil {
			yield(domain.BoundaryFeature{}, streamErr)
		}
	}
}

func (m *mockBoundaryStore) UpdateGeometries(_ context.Context, collection string, updates []domain.GeometryUpdate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	matched := 0
	for _, u := range updates {
		if m.vanished[u.ID] {
			continue
		}
		m.updates[collection] = append(m.updates[collection], u)
		matched++
	}
	return matched, nil
}

func (m *mockBoundaryStore) UpsertBoundaries(_ context.Context, collection string, features []domain.BoundaryFeature) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts[collection] = append(m.upserts[collection], features...)
	m.collections[collection] = append(m.collections[collection], features...)
	return len(features), nil
}

func (m *mockBoundaryStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[collection]
	return ok, nil
}

func (m *mockBoundaryStore) HasSpatialIndex(_ context.Context, collection string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spatial[collection], nil
}

func (m *mockBoundaryStore) CreateSpatialIndex(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[collection]; err != nil {
		return err
	}
	m.spatial[collection] = true
	return nil
}

func (m *mockBoundaryStore) FindContaining(_ context.Context, collection string, at domain.Coordinate) (*domain.BoundaryFeature, error) {
	m.mu.Lock()
	m.findCalls++
	m.mu.Unlock()
	if m.contains != nil {
		if f := m.contains(collection, at); f != nil {
			return f, nil
		}
	}
	return nil, domain.ErrBoundaryNotFound
}

func (m *mockBoundaryStore) FindIntersecting(_ context.Context, collection string, _ domain.BoundingBox, limit int) ([]domain.BoundaryFeature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return slices.Clone(docs), nil
}

func (m *mockBoundaryStore) Ping(_ context.Context) error { return nil }

// mockCache implements output.BoundaryCache in memory.
type mockCache struct {
	mu          sync.Mutex
	entries     map[string]domain.BoundaryMatch
	getErr      error
	invalidated []domain.BoundaryLevel
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]domain.BoundaryMatch)}
}

func cacheKey(level domain.BoundaryLevel, at domain.Coordinate) string {
	return string(level) + ":" + at.String()
}

func (m *mockCache) Get(_ context.Context, level domain.BoundaryLevel, at domain.Coordinate) (*domain.BoundaryMatch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	match, ok := m.entries[cacheKey(level, at)]
	if !ok {
		return nil, false, nil
	}
	return &match, true, nil
}

func (m *mockCache) Set(_ context.Context, level domain.BoundaryLevel, at domain.Coordinate, match domain.BoundaryMatch, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey(level, at)] = match
	return nil
}

func (m *mockCache) InvalidateLevel(_ context.Context, level domain.BoundaryLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, level)
	return nil
}

// mockLedger implements output.ReindexLedger in memory.
type mockLedger struct {
	mu      sync.Mutex
	runs    []domain.ReindexRun
	pending map[string]domain.PendingDeletion
}

func newMockLedger() *mockLedger {
	return &mockLedger{pending: make(map[string]domain.PendingDeletion)}
}

func (m *mockLedger) StartRun(_ context.Context, run domain.ReindexRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = int64(len(m.runs) + 1)
	m.runs = append(m.runs, run)
	return run.ID, nil
}

func (m *mockLedger) FinishRun(_ context.Context, run domain.ReindexRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID-1] = run
	return nil
}

func (m *mockLedger) RecentRuns(_ context.Context, limit int) ([]domain.ReindexRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := slices.Clone(m.runs)
	slices.Reverse(runs)
	return runs[:min(limit, len(runs))], nil
}

func (m *mockLedger) AddPendingDeletion(_ context.Context, p domain.PendingDeletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.pending[p.Index]; ok {
		p.Attempts = prev.Attempts + 1
	}
	m.pending[p.Index] = p
	return nil
}

func (m *mockLedger) PendingDeletions(_ context.Context) ([]domain.PendingDeletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Collect(maps.Values(m.pending)), nil
}

func (m *mockLedger) ResolvePendingDeletion(_ context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, index)
	return nil
}

// mockStorage implements output.DatasetStorage over in-memory files.
type mockStorage struct {
	files   map[string][]byte
	etags   map[string]string
	listErr error
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	objects := make([]output.StorageObject, 0, len(m.files))
	for _, key := range slices.Sorted(maps.Keys(m.files)) {
		objects = append(objects, output.StorageObject{Key: key, Size: int64(len(m.files[key])), ETag: m.etags[key]})
	}
	return objects, nil
}

func (m *mockStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.files[key]
	if !ok {
		return nil, &domain.StorageError{Operation: "open", Key: key, Err: domain.ErrNotFound}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.files[key]
	return ok, nil
}

// mockPinger implements Pinger.
type mockPinger struct {
	err error
}

func (m mockPinger) Ping(_ context.Context) error { return m.err }
