package output

import (
	"context"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// ReindexLedger defines the secondary port that persists reindex history and
// backup indices awaiting deletion.
type ReindexLedger interface {
	// StartRun records a running reindex and returns its id.
	StartRun(ctx context.Context, run domain.ReindexRun) (int64, error)

	// FinishRun records the outcome of a run identified by run.ID.
	FinishRun(ctx context.Context, run domain.ReindexRun) error

	// RecentRuns returns the latest runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]domain.ReindexRun, error)

	// AddPendingDeletion records a backup index whose deletion failed. Recording
	// an index twice increments its attempt counter.
	AddPendingDeletion(ctx context.Context, p domain.PendingDeletion) error

	// PendingDeletions lists indices awaiting deletion.
	PendingDeletions(ctx context.Context) ([]domain.PendingDeletion, error)

	// ResolvePendingDeletion removes an index from the pending list.
	ResolvePendingDeletion(ctx context.Context, index string) error
}

// NoOpLedger is a ReindexLedger that records nothing.
type NoOpLedger struct{}

// StartRun implements ReindexLedger.
func (NoOpLedger) StartRun(_ context.Context, _ domain.ReindexRun) (int64, error) { return 0, nil }

// FinishRun implements ReindexLedger.
func (NoOpLedger) FinishRun(_ context.Context, _ domain.ReindexRun) error { return nil }

// RecentRuns implements ReindexLedger.
func (NoOpLedger) RecentRuns(_ context.Context, _ int) ([]domain.ReindexRun, error) { return nil, nil }

// AddPendingDeletion implements ReindexLedger.
func (NoOpLedger) AddPendingDeletion(_ context.Context, _ domain.PendingDeletion) error { return nil }

// PendingDeletions implements ReindexLedger.
func (NoOpLedger) PendingDeletions(_ context.Context) ([]domain.PendingDeletion, error) {
	return nil, nil
}

// ResolvePendingDeletion implements ReindexLedger.
func (NoOpLedger) ResolvePendingDeletion(_ context.Context, _ string) error { return nil }
