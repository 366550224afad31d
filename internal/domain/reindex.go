package domain

import "time"

// JobState is the lifecycle state of a reindex job.
type JobState string

// Job states.
const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Reindex progress checkpoints.
const (
	ProgressCreated = 10
	ProgressLoaded  = 50
	ProgressSwapped = 100
)

// ReindexJob is a snapshot of the process-wide reindex state.
type ReindexJob struct {
	IsRunning   bool       `json:"isRunning"`
	State       JobState   `json:"state"`
	Progress    int        `json:"progress"`
	CurrentType EntityType `json:"currentIndex,omitempty"`
	BackupAlias string     `json:"backupAlias,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	LastUpdate  *time.Time `json:"lastUpdate,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ReindexSummary describes a completed reindex.
type ReindexSummary struct {
	EntityType    EntityType    `json:"entityType"`
	Alias         string        `json:"alias"`
	Index         string        `json:"index"`
	PreviousIndex string        `json:"previousIndex,omitempty"`
	BackupAlias   string        `json:"backupAlias,omitempty"`
	Documents     int           `json:"documents"`
	Duration      time.Duration `json:"duration"`
}

// IndexStats describes one physical search index.
type IndexStats struct {
	Name      string `json:"name"`
	DocsCount int64  `json:"docsCount"`
	StoreSize string `json:"storeSize"`
	Health    string `json:"health"`
}

// ReindexRun is a ledger entry for one reindex attempt.
type ReindexRun struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entityType"`
	Index      string     `json:"index"`
	State      JobState   `json:"state"`
	Documents  int        `json:"documents"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// PendingDeletion is a backup index whose deletion failed and must be retried.
type PendingDeletion struct {
	Index      string     `json:"index"`
	EntityType EntityType `json:"entityType"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"lastError"`
	RecordedAt time.Time  `json:"recordedAt"`
}

// SpatialIndexResult reports the outcome of ensuring one spatial index.
type SpatialIndexResult struct {
	Collection     string `json:"collection"`
	Success        bool   `json:"success"`
	AlreadyExisted bool   `json:"alreadyExisted,omitempty"`
	Warning        string `json:"warning,omitempty"`
	Error          string `json:"error,omitempty"`
}

// CollectionIndexStatus reports whether a boundary collection is queryable.
type CollectionIndexStatus struct {
	Collection      string        `json:"collection"`
	Level           BoundaryLevel `json:"level,omitempty"`
	Exists          bool          `json:"exists"`
	HasSpatialIndex bool          `json:"hasSpatialIndex"`
	Error           string        `json:"error,omitempty"`
}

// RepairResult reports the outcome of a boundary repair pass.
type RepairResult struct {
	Collection string `json:"collection"`
	Total      int    `json:"total"`
	Cleaned    int    `json:"cleaned"`
	Skipped    int    `json:"skipped"`
}
