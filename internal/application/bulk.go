package application

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// DefaultBulkBatchSize is the number of documents per bulk request.
const DefaultBulkBatchSize = 500

// BulkLoader streams documents into a search index in fixed-size batches.
type BulkLoader struct {
	engine    output.SearchEngine
	batchSize int
	logger    *slog.Logger
}

// NewBulkLoader creates a loader. Non-positive batch sizes fall back to
// DefaultBulkBatchSize.
func NewBulkLoader(engine output.SearchEngine, batchSize int, logger *slog.Logger) *BulkLoader {
	if batchSize <= 0 {
		batchSize = DefaultBulkBatchSize
	}
	return &BulkLoader{engine: engine, batchSize: batchSize, logger: logger}
}

// Load indexes every document of docs into index and returns how many were
// accepted. A batch with any rejected item fails the load with a
// *domain.BulkIndexError listing every rejected item of that batch; it is not
// retried. A fetch error aborts the load.
func (l *BulkLoader) Load(ctx context.Context, index string, docs iter.Seq2[domain.SearchDocument, error]) (int, error) {
	loaded := 0
	batch := make([]domain.SearchDocument, 0, l.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		failed, err := l.engine.Bulk(ctx, index, batch)
		if err != nil {
			return fmt.Errorf("bulk request to %s: %w", index, err)
		}
		if len(failed) > 0 {
			return &domain.BulkIndexError{Index: index, FailedItems: failed}
		}

		loaded += len(batch)
		l.logger.Debug("bulk batch indexed", "index", index, "batch", len(batch), "loaded", loaded)
		batch = make([]domain.SearchDocument, 0, l.batchSize)
		return nil
	}

	for doc, err := range docs {
		if err != nil {
			return loaded, fmt.Errorf("fetching documents for %s: %w", index, err)
		}
		batch = append(batch, doc)
		if len(batch) == l.batchSize {
			if err := flush(); err != nil {
				return loaded, err
			}
		}
	}

	if err := flush(); err != nil {
		return loaded, err
	}
	return loaded, nil
}
