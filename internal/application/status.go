package application

import (
	"sync"
	"time"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// StatusTracker holds the process-wide reindex job record. It is both the
// single reindex gate and the only externally visible state of a run.
type StatusTracker struct {
	mu  sync.Mutex
	job domain.ReindexJob
	now func() time.Time
}

// NewStatusTracker creates an idle tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		job: domain.ReindexJob{State: domain.JobIdle},
		now: time.Now,
	}
}

// TryBegin marks a reindex of t as running. It returns false, leaving the
// record untouched, when another reindex is already running.
func (s *StatusTracker) TryBegin(t domain.EntityType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job.IsRunning {
		return false
	}

	now := s.now().UTC()
	s.job = domain.ReindexJob{
		IsRunning:   true,
		State:       domain.JobRunning,
		CurrentType: t,
		StartedAt:   &now,
		LastUpdate:  &now,
	}
	return true
}

// SetBackup records the backup alias of the running job.
func (s *StatusTracker) SetBackup(alias string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.job.IsRunning {
		return
	}
	s.job.BackupAlias = alias
	s.touch()
}

// Checkpoint advances the progress of the running job.
func (s *StatusTracker) Checkpoint(progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.job.IsRunning {
		return
	}
	s.job.Progress = progress
	s.touch()
}

// Finish ends the running job. The record keeps the outcome, progress and
// error of the finished run until the next TryBegin.
func (s *StatusTracker) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.job.IsRunning {
		return
	}
	s.job.IsRunning = false
	if err != nil {
		s.job.State = domain.JobFailed
		s.job.Error = err.Error()
	} else {
		s.job.State = domain.JobSucceeded
		s.job.Progress = domain.ProgressSwapped
	}
	s.touch()
}

// Snapshot returns a copy of the current record.
func (s *StatusTracker) Snapshot() domain.ReindexJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

func (s *StatusTracker) touch() {
	now := s.now().UTC()
	s.job.LastUpdate = &now
}
