package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRateLimited is returned when the sync API rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// syncCooldown is the minimum time between two manual syncs.
const syncCooldown = 30 * time.Second

// datasetSyncer is the part of DatasetImporter the sync service drives.
type datasetSyncer interface {
	Sync(ctx context.Context) (ImportStats, error)
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	DatasetsImported int       `json:"datasets_imported"`
	DatasetsSkipped  int       `json:"datasets_skipped"`
	BoundariesLoaded int       `json:"boundaries_loaded"`
	SyncedAt         time.Time `json:"synced_at"`
	NextScheduledAt  time.Time `json:"next_scheduled_at,omitempty"`
}

// SyncService periodically imports boundary datasets from dataset storage.
type SyncService struct {
	importer datasetSyncer
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Rate limiting for API triggers
	lastAPISync time.Time
	apiMutex    sync.Mutex

	// Prevents concurrent sync operations
	syncOpMutex sync.Mutex

	nextSync time.Time
	syncMu   sync.RWMutex
}

// NewSyncService creates a new sync service.
func NewSyncService(importer datasetSyncer, interval time.Duration, logger *slog.Logger) *SyncService {
	return &SyncService{
		importer: importer,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		// Allow an immediate first API call
		lastAPISync: time.Now().Add(-syncCooldown - time.Second),
	}
}

// Start begins the periodic sync scheduler.
func (s *SyncService) Start(ctx context.Context) {
	s.logger.Info("starting dataset sync", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextSync(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dataset sync stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("dataset sync stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled dataset sync triggered")
			if _, err := s.doSync(ctx); err != nil {
				s.logger.Error("dataset sync failed", "error", err)
			}
			s.setNextSync(time.Now().Add(s.interval))
		}
	}
}

// Stop gracefully stops the sync service.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping dataset sync")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerSync runs a sync now. Returns ErrRateLimited when called again
// within the cooldown.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.apiMutex.Lock()
	if time.Since(s.lastAPISync) < syncCooldown {
		s.apiMutex.Unlock()
		return SyncResult{}, ErrRateLimited
	}
	s.lastAPISync = time.Now()
	s.apiMutex.Unlock()

	return s.doSync(ctx)
}

// SyncNow runs a sync without rate limiting, for startup and the watcher.
func (s *SyncService) SyncNow(ctx context.Context) (SyncResult, error) {
	return s.doSync(ctx)
}

func (s *SyncService) doSync(ctx context.Context) (SyncResult, error) {
	s.syncOpMutex.Lock()
	defer s.syncOpMutex.Unlock()

	stats, err := s.importer.Sync(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	s.logger.Info("dataset sync completed",
		"imported", stats.Imported,
		"skipped", stats.Skipped,
		"boundaries", stats.Features,
	)

	return SyncResult{
		DatasetsImported: stats.Imported,
		DatasetsSkipped:  stats.Skipped,
		BoundariesLoaded: stats.Features,
		SyncedAt:         time.Now(),
		NextScheduledAt:  s.getNextSync(),
	}, nil
}

func (s *SyncService) setNextSync(t time.Time) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.nextSync = t
}

func (s *SyncService) getNextSync() time.Time {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}
