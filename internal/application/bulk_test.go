package application

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"testing"

	"github.com/jobrunner/hospigeo/internal/domain"
)

func documents(n int) iter.Seq2[domain.SearchDocument, error] {
	return func(yield func(domain.SearchDocument, error) bool) {
		for i := range n {
			if !yield(domain.SearchDocument{ID: fmt.Sprintf("d-%d", i+1)}, nil) {
				return
			}
		}
	}
}

func TestBulkLoader_Batches(t *testing.T) {
	tests := []struct {
		name      string
		docs      int
		batchSize int
		wantCalls int
	}{
		{"empty", 0, 500, 0},
		{"partial batch", 10, 500, 1},
		{"exact batches", 1000, 500, 2},
		{"remainder", 1001, 500, 3},
		{"default size", 501, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newMockEngine()
			loader := NewBulkLoader(engine, tt.batchSize, testLogger())

			n, err := loader.Load(context.Background(), "idx", documents(tt.docs))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if n != tt.docs {
				t.Errorf("loaded = %d, want %d", n, tt.docs)
			}
			if engine.bulkCalls != tt.wantCalls {
				t.Errorf("bulk calls = %d, want %d", engine.bulkCalls, tt.wantCalls)
			}
		})
	}
}

func TestBulkLoader_ReportsEveryFailedItemOfBatch(t *testing.T) {
	engine := newMockEngine()
	bad := []string{"d-501", "d-777"}
	engine.reject = func(doc domain.SearchDocument) *domain.BulkItemFailure {
		if slices.Contains(bad, doc.ID) {
			return &domain.BulkItemFailure{ID: doc.ID, Status: 400, Type: "mapper_parsing_exception"}
		}
		return nil
	}
	loader := NewBulkLoader(engine, 500, testLogger())

	n, err := loader.Load(context.Background(), "idx", documents(1000))

	var bulkErr *domain.BulkIndexError
	if !errors.As(err, &bulkErr) {
		t.Fatalf("error = %v, want *BulkIndexError", err)
	}
	if bulkErr.Index != "idx" || len(bulkErr.FailedItems) != 2 {
		t.Errorf("bulk error = %+v", bulkErr)
	}
	for i, item := range bulkErr.FailedItems {
		if item.ID != bad[i] {
			t.Errorf("failed item %d = %q, want %q", i, item.ID, bad[i])
		}
	}
	if n != 500 {
		t.Errorf("loaded = %d, want only the first batch", n)
	}
	if engine.bulkCalls != 2 {
		t.Errorf("bulk calls = %d, failed batch must not be retried", engine.bulkCalls)
	}
}

func TestBulkLoader_FetchErrorAborts(t *testing.T) {
	engine := newMockEngine()
	loader := NewBulkLoader(engine, 2, testLogger())
	fetchErr := errors.New("cursor closed")

	docs := func(yield func(domain.SearchDocument, error) bool) {
		if !yield(domain.SearchDocument{ID: "a"}, nil) {
			return
		}
		if !yield(domain.SearchDocument{ID: "b"}, nil) {
			return
		}
		yield(domain.SearchDocument{}, fetchErr)
	}

	n, err := loader.Load(context.Background(), "idx", docs)
	if !errors.Is(err, fetchErr) {
		t.Fatalf("error = %v, want wrapped fetch error", err)
	}
	if n != 2 {
		t.Errorf("loaded = %d, want 2", n)
	}
}
