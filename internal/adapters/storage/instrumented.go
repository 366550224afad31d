package storage

import (
	"context"
	"io"
	"time"

	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// Instrumented records operation counts and latency of a DatasetStorage.
type Instrumented struct {
	next    output.DatasetStorage
	metrics output.MetricsCollector
}

// NewInstrumented wraps next.
func NewInstrumented(next output.DatasetStorage, metrics output.MetricsCollector) *Instrumented {
	return &Instrumented{next: next, metrics: metrics}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.IncStorageOperations(op, err == nil)
	s.metrics.ObserveStorageDuration(op, time.Since(start))
}

// List implements output.DatasetStorage.
func (s *Instrumented) List(ctx context.Context) ([]output.StorageObject, error) {
	start := time.Now()
	objects, err := s.next.List(ctx)
	s.observe("list", start, err)
	return objects, err
}

// Open implements output.DatasetStorage.
func (s *Instrumented) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	r, err := s.next.Open(ctx, key)
	s.observe("open", start, err)
	return r, err
}

// Exists implements output.DatasetStorage.
func (s *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.next.Exists(ctx, key)
	s.observe("exists", start, err)
	return ok, err
}
