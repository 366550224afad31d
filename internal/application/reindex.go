package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// DefaultReindexTimeout bounds a whole reindex run.
const DefaultReindexTimeout = 30 * time.Minute

// cleanupTimeout bounds best-effort cleanup that runs after the job context
// may already have expired.
const cleanupTimeout = 30 * time.Second

// ReindexService rebuilds search indices blue-green: build a new physical
// index, bulk-load it, then atomically swap the stable alias onto it.
type ReindexService struct {
	registry *IndexRegistry
	engine   output.SearchEngine
	loader   *BulkLoader
	tracker  *StatusTracker
	ledger   output.ReindexLedger
	metrics  output.MetricsCollector
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewReindexService creates a new reindex service.
func NewReindexService(
	registry *IndexRegistry,
	engine output.SearchEngine,
	loader *BulkLoader,
	tracker *StatusTracker,
	ledger output.ReindexLedger,
	metrics output.MetricsCollector,
	timeout time.Duration,
	logger *slog.Logger,
) *ReindexService {
	if timeout <= 0 {
		timeout = DefaultReindexTimeout
	}
	return &ReindexService{
		registry: registry,
		engine:   engine,
		loader:   loader,
		tracker:  tracker,
		ledger:   ledger,
		metrics:  metrics,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Reindex rebuilds the index of t. At most one reindex runs at a time across
// all entity types; a concurrent request fails with domain.ErrAlreadyRunning
// before anything is touched. A failed run leaves the alias on the index it
// pointed at before.
func (s *ReindexService) Reindex(ctx context.Context, t domain.EntityType) (*domain.ReindexSummary, error) {
	cfg, err := s.registry.Lookup(t)
	if err != nil {
		return nil, err
	}

	if !s.tracker.TryBegin(t) {
		running := s.tracker.Snapshot().CurrentType
		return nil, fmt.Errorf("reindex of %s in progress: %w", running, domain.ErrAlreadyRunning)
	}

	s.metrics.SetReindexRunning(true)
	defer s.metrics.SetReindexRunning(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := s.now()
	s.logger.Info("reindex started", "entity_type", t)

	run := domain.ReindexRun{EntityType: t, State: domain.JobRunning, StartedAt: started.UTC()}
	summary, err := s.run(ctx, cfg, started, &run)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", domain.ErrReindexTimeout, s.timeout, err)
	}

	duration := s.now().Sub(started)
	s.tracker.Finish(err)
	s.metrics.IncReindex(string(t), err == nil)
	s.metrics.ObserveReindexDuration(string(t), duration)
	s.finishRun(ctx, &run, summary, err)

	if err != nil {
		s.logger.Error("reindex failed", "entity_type", t, "duration", duration, "error", err)
		return nil, err
	}

	summary.Duration = duration
	s.metrics.AddDocumentsIndexed(string(t), summary.Documents)
	s.logger.Info("reindex completed",
		"entity_type", t,
		"index", summary.Index,
		"previous", summary.PreviousIndex,
		"documents", summary.Documents,
		"duration", duration,
	)
	return summary, nil
}

func (s *ReindexService) run(ctx context.Context, cfg IndexConfig, started time.Time, run *domain.ReindexRun) (*domain.ReindexSummary, error) {
	s.sweepPendingDeletions(ctx, cfg.EntityType, cfg.Alias)

	live, err := s.engine.ResolveAlias(ctx, cfg.Alias)
	if err != nil {
		return nil, fmt.Errorf("resolving alias %s: %w", cfg.Alias, err)
	}

	index, err := s.nextIndexName(ctx, cfg.EntityType, live, started)
	if err != nil {
		return nil, err
	}
	run.Index = index
	s.startRun(ctx, run)

	summary := &domain.ReindexSummary{
		EntityType: cfg.EntityType,
		Alias:      cfg.Alias,
		Index:      index,
	}

	if len(live) > 0 {
		backup := domain.BackupAliasName(cfg.EntityType, started)
		if err := s.engine.PutAlias(ctx, live[0], backup); err != nil {
			return nil, fmt.Errorf("tagging backup %s: %w", live[0], err)
		}
		summary.PreviousIndex = live[0]
		summary.BackupAlias = backup
		s.tracker.SetBackup(backup)
		s.logger.Info("backup tagged", "index", live[0], "backup_alias", backup)
	}

	if err := s.engine.CreateIndex(ctx, index, cfg.Schema); err != nil {
		if !errors.Is(err, domain.ErrIndexAlreadyExists) {
			return nil, fmt.Errorf("creating index %s: %w", index, err)
		}
		s.logger.Warn("index already exists, loading into it", "index", index)
	}
	s.tracker.Checkpoint(domain.ProgressCreated)

	n, err := s.loader.Load(ctx, index, cfg.Fetch(ctx))
	run.Documents = n
	if err != nil {
		s.discard(ctx, index)
		return nil, fmt.Errorf("loading %s: %w", index, err)
	}
	summary.Documents = n
	s.tracker.Checkpoint(domain.ProgressLoaded)

	if err := s.engine.Refresh(ctx, index); err != nil {
		s.discard(ctx, index)
		return nil, fmt.Errorf("refreshing %s: %w", index, err)
	}

	if err := s.engine.SwapAlias(ctx, cfg.Alias, live, index); err != nil {
		s.discard(ctx, index)
		return nil, fmt.Errorf("swapping alias %s to %s: %w", cfg.Alias, index, err)
	}
	s.tracker.Checkpoint(domain.ProgressSwapped)
	s.logger.Info("alias swapped", "alias", cfg.Alias, "index", index, "previous", live)

	for _, old := range live {
		if old != index {
			s.deleteBackup(ctx, cfg.EntityType, old)
		}
	}

	return summary, nil
}

// nextIndexName returns a physical index name that is neither live nor
// occupied. The dated name gets a time suffix when it is the live index;
// a stale index left under that name by an earlier failed run is deleted.
func (s *ReindexService) nextIndexName(ctx context.Context, t domain.EntityType, live []string, at time.Time) (string, error) {
	name := domain.PhysicalIndexName(t, at)
	if slices.Contains(live, name) {
		name = fmt.Sprintf("%s-%s", name, at.Format("150405"))
	}

	exists, err := s.engine.IndexExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("checking index %s: %w", name, err)
	}
	if exists {
		s.logger.Warn("deleting stale index", "index", name)
		if err := s.engine.DeleteIndex(ctx, name); err != nil {
			return "", fmt.Errorf("deleting stale index %s: %w", name, err)
		}
	}
	return name, nil
}

// discard deletes a half-built index. The alias never pointed at it.
func (s *ReindexService) discard(ctx context.Context, index string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.engine.DeleteIndex(ctx, index); err != nil {
		s.logger.Warn("failed to delete abandoned index", "index", index, "error", err)
	}
}

// deleteBackup removes the previous index after a successful swap. Failures
// are recorded in the ledger and retried by the next reindex.
func (s *ReindexService) deleteBackup(ctx context.Context, t domain.EntityType, index string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := s.engine.DeleteIndex(ctx, index)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("backup index deleted", "index", index)
		return
	}

	s.logger.Warn("failed to delete backup index", "index", index, "error", err)
	pending := domain.PendingDeletion{
		Index:      index,
		EntityType: t,
		Attempts:   1,
		LastError:  err.Error(),
		RecordedAt: s.now().UTC(),
	}
	if err := s.ledger.AddPendingDeletion(ctx, pending); err != nil {
		s.logger.Error("failed to record pending deletion", "index", index, "error", err)
	}
}

// sweepPendingDeletions retries backup deletions of t that failed earlier.
// Indices that are live again are left alone, and entries that do not name
// a dated physical index of t are dropped without deleting anything.
func (s *ReindexService) sweepPendingDeletions(ctx context.Context, t domain.EntityType, alias string) {
	all, err := s.ledger.PendingDeletions(ctx)
	if err != nil {
		s.logger.Warn("failed to read pending deletions", "error", err)
		return
	}
	pending := slices.DeleteFunc(all, func(p domain.PendingDeletion) bool { return p.EntityType != t })
	if len(pending) == 0 {
		return
	}

	live, err := s.engine.ResolveAlias(ctx, alias)
	if err != nil {
		s.logger.Warn("skipping pending deletions", "error", err)
		return
	}

	for _, p := range pending {
		if slices.Contains(live, p.Index) {
			continue
		}
		if !domain.IsPhysicalIndexOf(t, p.Index) {
			s.logger.Warn("dropping pending deletion of a foreign index", "index", p.Index, "entity_type", t)
			if err := s.ledger.ResolvePendingDeletion(ctx, p.Index); err != nil {
				s.logger.Error("failed to resolve pending deletion", "index", p.Index, "error", err)
			}
			continue
		}

		err := s.engine.DeleteIndex(ctx, p.Index)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			p.LastError = err.Error()
			if err := s.ledger.AddPendingDeletion(ctx, p); err != nil {
				s.logger.Error("failed to record pending deletion", "index", p.Index, "error", err)
			}
			s.logger.Warn("pending deletion failed again", "index", p.Index, "attempts", p.Attempts+1, "error", err)
			continue
		}

		if err := s.ledger.ResolvePendingDeletion(ctx, p.Index); err != nil {
			s.logger.Error("failed to resolve pending deletion", "index", p.Index, "error", err)
			continue
		}
		s.logger.Info("orphaned backup index deleted", "index", p.Index)
	}
}

func (s *ReindexService) startRun(ctx context.Context, run *domain.ReindexRun) {
	id, err := s.ledger.StartRun(ctx, *run)
	if err != nil {
		s.logger.Warn("failed to record reindex run", "entity_type", run.EntityType, "error", err)
		return
	}
	run.ID = id
}

func (s *ReindexService) finishRun(ctx context.Context, run *domain.ReindexRun, summary *domain.ReindexSummary, err error) {
	if run.ID == 0 {
		return
	}

	finished := s.now().UTC()
	run.FinishedAt = &finished
	run.State = domain.JobSucceeded
	if summary != nil {
		run.Documents = summary.Documents
	}
	if err != nil {
		run.State = domain.JobFailed
		run.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.ledger.FinishRun(ctx, *run); err != nil {
		s.logger.Warn("failed to record reindex outcome", "run", run.ID, "error", err)
	}
}

// Status returns a snapshot of the current reindex job.
func (s *ReindexService) Status() domain.ReindexJob {
	return s.tracker.Snapshot()
}

// ListIndices returns stats for every physical index.
func (s *ReindexService) ListIndices(ctx context.Context) ([]domain.IndexStats, error) {
	return s.engine.ListIndices(ctx)
}

// History returns the latest recorded reindex runs.
func (s *ReindexService) History(ctx context.Context, limit int) ([]domain.ReindexRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.ledger.RecentRuns(ctx, limit)
}
