package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

var reindexTime = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func newTestReindexService(engine *mockEngine, source *mockSource, ledger *mockLedger) *ReindexService {
	logger := testLogger()
	svc := NewReindexService(
		NewIndexRegistry(source, logger),
		engine,
		NewBulkLoader(engine, DefaultBulkBatchSize, logger),
		NewStatusTracker(),
		ledger,
		&output.NoOpMetrics{},
		time.Minute,
		logger,
	)
	svc.now = func() time.Time { return reindexTime }
	return svc
}

func hospitals(n int) []domain.Facility {
	out := make([]domain.Facility, n)
	for i := range out {
		out[i] = domain.Facility{
			ID:       fmt.Sprintf("h-%d", i+1),
			Ykiho:    fmt.Sprintf("JDQ%d", i+1),
			Name:     "서울대학교병원",
			Category: "상급종합",
			Location: domain.Coordinate{Lat: 37.5796, Lng: 126.9990},
		}
	}
	return out
}

func TestReindex_SwapsAliasToNewIndex(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("hospitals", "hospitals_2023-12-31", 3)
	ledger := newMockLedger()
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(1000)}, ledger)

	summary, err := svc.Reindex(context.Background(), domain.EntityHospitals)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}

	if summary.Index != "hospitals_2024-01-01" {
		t.Errorf("index = %q", summary.Index)
	}
	if summary.PreviousIndex != "hospitals_2023-12-31" {
		t.Errorf("previous = %q", summary.PreviousIndex)
	}
	if summary.BackupAlias != "hospitals_backup_2024-01-01" {
		t.Errorf("backup alias = %q", summary.BackupAlias)
	}
	if summary.Documents != 1000 {
		t.Errorf("documents = %d, want 1000", summary.Documents)
	}

	targets := engine.aliasTargets("hospitals")
	if len(targets) != 1 || targets[0] != "hospitals_2024-01-01" {
		t.Errorf("alias targets = %v, want exactly the new index", targets)
	}
	if engine.hasIndex("hospitals_2023-12-31") {
		t.Error("backup index should be deleted after the swap")
	}
	if engine.swaps != 1 {
		t.Errorf("alias updated %d times, want a single swap", engine.swaps)
	}

	job := svc.Status()
	if job.IsRunning || job.State != domain.JobSucceeded || job.Progress != 100 {
		t.Errorf("status = %+v", job)
	}

	runs, _ := svc.History(context.Background(), 10)
	if len(runs) != 1 || runs[0].State != domain.JobSucceeded || runs[0].Documents != 1000 {
		t.Errorf("history = %+v", runs)
	}
}

func TestReindex_FirstBuild(t *testing.T) {
	engine := newMockEngine()
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(2)}, newMockLedger())

	summary, err := svc.Reindex(context.Background(), domain.EntityHospitals)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if summary.PreviousIndex != "" || summary.BackupAlias != "" {
		t.Errorf("first build has no backup: %+v", summary)
	}
	if got := engine.aliasTargets("hospitals"); len(got) != 1 || got[0] != summary.Index {
		t.Errorf("alias targets = %v", got)
	}
}

func TestReindex_BulkFailureKeepsAlias(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("hospitals", "hospitals_2023-12-31", 3)
	engine.reject = func(doc domain.SearchDocument) *domain.BulkItemFailure {
		if doc.ID == "h-501" {
			return &domain.BulkItemFailure{ID: doc.ID, Status: 400, Type: "mapper_parsing_exception", Reason: "failed to parse field [location]"}
		}
		return nil
	}
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(1000)}, newMockLedger())

	_, err := svc.Reindex(context.Background(), domain.EntityHospitals)

	var bulkErr *domain.BulkIndexError
	if !errors.As(err, &bulkErr) {
		t.Fatalf("error = %v, want *BulkIndexError", err)
	}
	if len(bulkErr.FailedItems) != 1 || bulkErr.FailedItems[0].ID != "h-501" {
		t.Errorf("failed items = %+v, want only h-501", bulkErr.FailedItems)
	}

	targets := engine.aliasTargets("hospitals")
	if len(targets) != 1 || targets[0] != "hospitals_2023-12-31" {
		t.Errorf("alias targets = %v, want the pre-existing index", targets)
	}
	if engine.hasIndex("hospitals_2024-01-01") {
		t.Error("half-loaded index should be deleted")
	}
	if !engine.hasIndex("hospitals_2023-12-31") {
		t.Error("pre-existing index must survive a failed reindex")
	}

	job := svc.Status()
	if job.IsRunning || job.State != domain.JobFailed || job.Error == "" {
		t.Errorf("status = %+v", job)
	}
	if job.Progress != domain.ProgressCreated {
		t.Errorf("progress = %d, want %d", job.Progress, domain.ProgressCreated)
	}
}

func TestReindex_RejectsConcurrentRun(t *testing.T) {
	engine := newMockEngine()
	engine.bulkGate = make(chan struct{})
	engine.bulkSeen = make(chan struct{}, 1)
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(10)}, newMockLedger())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Reindex(context.Background(), domain.EntityHospitals)
		done <- err
	}()
	<-engine.bulkSeen

	before := svc.Status()
	indices, _ := engine.ListIndices(context.Background())

	_, err := svc.Reindex(context.Background(), domain.EntityPharmacies)
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("error = %v, want ErrAlreadyRunning", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("ErrAlreadyRunning should be a conflict")
	}

	after := svc.Status()
	if after.CurrentType != before.CurrentType || after.Progress != before.Progress || !after.IsRunning {
		t.Errorf("rejected request changed job state: before %+v after %+v", before, after)
	}
	indicesAfter, _ := engine.ListIndices(context.Background())
	if len(indicesAfter) != len(indices) {
		t.Errorf("rejected request touched indices: %v -> %v", indices, indicesAfter)
	}

	close(engine.bulkGate)
	if err := <-done; err != nil {
		t.Fatalf("first reindex failed: %v", err)
	}
}

func TestReindex_UnknownType(t *testing.T) {
	svc := newTestReindexService(newMockEngine(), &mockSource{}, newMockLedger())

	_, err := svc.Reindex(context.Background(), domain.EntityType("clinics"))
	if !errors.Is(err, domain.ErrUnknownIndexType) {
		t.Fatalf("error = %v, want ErrUnknownIndexType", err)
	}
	if job := svc.Status(); job.State != domain.JobIdle {
		t.Errorf("unknown type must not start a job: %+v", job)
	}
}

func TestReindex_SameDayRebuild(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("hospitals", "hospitals_2024-01-01", 3)
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(5)}, newMockLedger())

	summary, err := svc.Reindex(context.Background(), domain.EntityHospitals)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if summary.Index != "hospitals_2024-01-01-093000" {
		t.Errorf("index = %q, want time-suffixed name", summary.Index)
	}
	if got := engine.aliasTargets("hospitals"); len(got) != 1 || got[0] != summary.Index {
		t.Errorf("alias targets = %v", got)
	}
}

func TestReindex_DeletesStaleLeftover(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("hospitals", "hospitals_2023-12-31", 3)
	engine.indices["hospitals_2024-01-01"] = []domain.SearchDocument{{ID: "stale"}}
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(4)}, newMockLedger())

	if _, err := svc.Reindex(context.Background(), domain.EntityHospitals); err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	docs := engine.indices["hospitals_2024-01-01"]
	if len(docs) != 4 {
		t.Errorf("new index has %d docs, want 4 fresh ones", len(docs))
	}
	for _, d := range docs {
		if d.ID == "stale" {
			t.Error("stale document leaked into the new index")
		}
	}
}

func TestReindex_BackupDeletionFailureIsRetried(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("hospitals", "hospitals_2023-12-31", 3)
	engine.deleteErr["hospitals_2023-12-31"] = errors.New("cluster_block_exception")
	ledger := newMockLedger()
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(2)}, ledger)

	if _, err := svc.Reindex(context.Background(), domain.EntityHospitals); err != nil {
		t.Fatalf("backup deletion failure must not fail the reindex: %v", err)
	}
	if _, ok := ledger.pending["hospitals_2023-12-31"]; !ok {
		t.Fatal("failed deletion should be recorded as pending")
	}

	delete(engine.deleteErr, "hospitals_2023-12-31")
	if _, err := svc.Reindex(context.Background(), domain.EntityHospitals); err != nil {
		t.Fatalf("second Reindex() error = %v", err)
	}
	if engine.hasIndex("hospitals_2023-12-31") {
		t.Error("orphaned backup should be deleted by the next reindex")
	}
	if len(ledger.pending) != 0 {
		t.Errorf("pending = %v, want none", ledger.pending)
	}
}

func TestReindex_SweepOnlyTouchesOwnIndices(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("hospitals", "hospitals_2023-12-31", 3)
	engine.seedLive("pharmacies", "pharmacies_2023-12-30", 3)
	engine.seedLive("hospitals_archive", "hospitals_archive", 1)

	ledger := newMockLedger()
	ledger.pending["pharmacies_2023-12-30"] = domain.PendingDeletion{Index: "pharmacies_2023-12-30", EntityType: domain.EntityPharmacies}
	ledger.pending["hospitals_archive"] = domain.PendingDeletion{Index: "hospitals_archive", EntityType: domain.EntityHospitals}
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(2)}, ledger)

	if _, err := svc.Reindex(context.Background(), domain.EntityHospitals); err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}

	if !engine.hasIndex("pharmacies_2023-12-30") {
		t.Error("another type's pending index must not be swept")
	}
	if _, ok := ledger.pending["pharmacies_2023-12-30"]; !ok {
		t.Error("another type's pending entry must be kept")
	}
	if !engine.hasIndex("hospitals_archive") {
		t.Error("an index that is not a dated physical index must not be deleted")
	}
	if _, ok := ledger.pending["hospitals_archive"]; ok {
		t.Error("the foreign entry should be dropped from the ledger")
	}
}

func TestReindex_FetchErrorFailsJob(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("pharmacies", "pharmacies_2023-12-31", 1)
	source := &mockSource{
		pharmacies: make([]domain.Facility, 20),
		errAt:      10,
		err:        errors.New("cursor killed"),
	}
	svc := newTestReindexService(engine, source, newMockLedger())

	_, err := svc.Reindex(context.Background(), domain.EntityPharmacies)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if got := engine.aliasTargets("pharmacies"); len(got) != 1 || got[0] != "pharmacies_2023-12-31" {
		t.Errorf("alias targets = %v", got)
	}
}

func TestReindex_Timeout(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("hospitals", "hospitals_2023-12-31", 1)
	engine.bulkGate = make(chan struct{})
	svc := newTestReindexService(engine, &mockSource{hospitals: hospitals(3)}, newMockLedger())
	svc.timeout = 50 * time.Millisecond

	_, err := svc.Reindex(context.Background(), domain.EntityHospitals)
	if !errors.Is(err, domain.ErrReindexTimeout) {
		t.Fatalf("error = %v, want ErrReindexTimeout", err)
	}
	if got := engine.aliasTargets("hospitals"); len(got) != 1 || got[0] != "hospitals_2023-12-31" {
		t.Errorf("alias targets = %v", got)
	}
	if engine.hasIndex("hospitals_2024-01-01") {
		t.Error("timed-out index should be deleted")
	}
	if job := svc.Status(); job.IsRunning || job.State != domain.JobFailed {
		t.Errorf("status = %+v", job)
	}
}

func TestReindex_BoundariesSkipUnrepairable(t *testing.T) {
	square := orb.Polygon{{{126.9, 37.5}, {127.0, 37.5}, {127.0, 37.6}, {126.9, 37.6}, {126.9, 37.5}}}
	source := &mockSource{boundaries: []domain.BoundaryFeature{
		{ID: "1", Code: "11110", Name: "종로구", Geometry: square},
		{ID: "2", Code: "11140", Name: "중구", Geometry: orb.Point{127, 37.5}},
		{ID: "3", Code: "11170", Name: "용산구", Geometry: square},
	}}
	engine := newMockEngine()
	svc := newTestReindexService(engine, source, newMockLedger())

	summary, err := svc.Reindex(context.Background(), domain.EntityBoundaries)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if summary.Documents != 2 {
		t.Errorf("documents = %d, want 2", summary.Documents)
	}
}

func TestReindex_ListIndices(t *testing.T) {
	engine := newMockEngine()
	engine.seedLive("map", "map_2023-12-31", 4)
	svc := newTestReindexService(engine, &mockSource{}, newMockLedger())

	stats, err := svc.ListIndices(context.Background())
	if err != nil {
		t.Fatalf("ListIndices() error = %v", err)
	}
	if len(stats) != 1 || stats[0].Name != "map_2023-12-31" || stats[0].DocsCount != 4 {
		t.Errorf("stats = %+v", stats)
	}
}
