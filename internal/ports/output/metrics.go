package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncReindex counts finished reindex runs per entity type and outcome.
	IncReindex(entityType string, success bool)

	// ObserveReindexDuration records how long a reindex took.
	ObserveReindexDuration(entityType string, duration time.Duration)

	// AddDocumentsIndexed counts documents accepted by the search engine.
	AddDocumentsIndexed(entityType string, n int)

	// SetReindexRunning flags whether a reindex is in flight.
	SetReindexRunning(running bool)

	// AddGeometriesRepaired counts geometries rewritten by a repair pass.
	AddGeometriesRepaired(collection string, n int)

	// IncLookup counts boundary lookups by level and outcome
	// ("found", "not_found", "cache_hit", "error").
	IncLookup(level string, outcome string)

	// ObserveLookupDuration records boundary lookup latency.
	ObserveLookupDuration(level string, duration time.Duration)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncReindex implements MetricsCollector.
func (n *NoOpMetrics) IncReindex(_ string, _ bool) {}

// ObserveReindexDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveReindexDuration(_ string, _ time.Duration) {}

// AddDocumentsIndexed implements MetricsCollector.
func (n *NoOpMetrics) AddDocumentsIndexed(_ string, _ int) {}

// SetReindexRunning implements MetricsCollector.
func (n *NoOpMetrics) SetReindexRunning(_ bool) {}

// AddGeometriesRepaired implements MetricsCollector.
func (n *NoOpMetrics) AddGeometriesRepaired(_ string, _ int) {}

// IncLookup implements MetricsCollector.
func (n *NoOpMetrics) IncLookup(_ string, _ string) {}

// ObserveLookupDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveLookupDuration(_ string, _ time.Duration) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
