package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

var testCollections = BoundaryCollections{Prefix: domain.DefaultBoundaryPrefix, Search: "sggu_boundaries"}

func boundaryDocs(n int, bad ...int) []domain.BoundaryFeature {
	docs := make([]domain.BoundaryFeature, n)
	for i := range docs {
		x := 126.0 + float64(i)*0.01
		docs[i] = domain.BoundaryFeature{
			ID:       fmt.Sprintf("b-%d", i),
			Code:     fmt.Sprint(11000 + i),
			Geometry: orb.Polygon{{{x, 37}, {x + 0.005, 37}, {x + 0.005, 37.005}, {x, 37.005}}},
		}
	}
	for _, i := range bad {
		docs[i].Geometry = orb.Polygon{{{1, 1}, {1, 1}, {2, 2}}}
	}
	return docs
}

func newTestRepairService(store *mockBoundaryStore, cache *mockCache) *RepairService {
	return NewRepairService(store, cache, &output.NoOpMetrics{}, testCollections, 1000, 40, testLogger())
}

func TestRepair_SkipsUnrepairable(t *testing.T) {
	store := newMockBoundaryStore()
	store.collections["sggu_boundaries_sig"] = boundaryDocs(100, 3, 50, 99)
	cache := newMockCache()
	svc := newTestRepairService(store, cache)

	result, err := svc.Repair(context.Background(), "sggu_boundaries_sig")
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if result.Total != 100 || result.Cleaned != 97 || result.Skipped != 3 {
		t.Errorf("result = %+v, want total=100 cleaned=97", result)
	}
	if got := len(store.updates["sggu_boundaries_sig"]); got != 97 {
		t.Errorf("written updates = %d, want 97", got)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != domain.LevelCity {
		t.Errorf("invalidated = %v, want [sig]", cache.invalidated)
	}
}

func TestRepair_SkipsUndecodableRecords(t *testing.T) {
	store := newMockBoundaryStore()
	store.collections["sggu_boundaries_emd"] = boundaryDocs(10)
	store.badIDs["b-4"] = true
	svc := newTestRepairService(store, newMockCache())

	result, err := svc.Repair(context.Background(), "sggu_boundaries_emd")
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if result.Total != 10 || result.Cleaned != 9 {
		t.Errorf("result = %+v", result)
	}
}

func TestRepair_UnmatchedWritesAreSkipped(t *testing.T) {
	store := newMockBoundaryStore()
	store.collections["sggu_boundaries_sig"] = boundaryDocs(10)
	store.vanished["b-2"] = true
	store.vanished["b-7"] = true
	svc := newTestRepairService(store, newMockCache())

	result, err := svc.Repair(context.Background(), "sggu_boundaries_sig")
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if result.Total != 10 || result.Cleaned != 8 || result.Skipped != 2 {
		t.Errorf("result = %+v, want total=10 cleaned=8 skipped=2", result)
	}
	if got := len(store.updates["sggu_boundaries_sig"]); got != result.Cleaned {
		t.Errorf("written updates = %d, cleaned = %d", got, result.Cleaned)
	}
}

func TestRepair_UpdatesCarryStoredKey(t *testing.T) {
	store := newMockBoundaryStore()
	docs := boundaryDocs(2)
	docs[0].Key = int32(42)
	docs[1].Key = "5f1d7a2b9c3e4d5f6a7b8c9d"
	store.collections["sggu_boundaries_li"] = docs
	svc := newTestRepairService(store, newMockCache())

	if _, err := svc.Repair(context.Background(), "sggu_boundaries_li"); err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	updates := store.updates["sggu_boundaries_li"]
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if updates[0].Key != int32(42) || updates[1].Key != "5f1d7a2b9c3e4d5f6a7b8c9d" {
		t.Errorf("keys = %#v, %#v", updates[0].Key, updates[1].Key)
	}
}

func TestRepair_FatalErrors(t *testing.T) {
	t.Run("cursor failure", func(t *testing.T) {
		store := newMockBoundaryStore()
		store.collections["sggu_boundaries_li"] = boundaryDocs(5)
		store.streamErr = errors.New("cursor not found")
		svc := newTestRepairService(store, newMockCache())

		if _, err := svc.Repair(context.Background(), "sggu_boundaries_li"); err == nil {
			t.Error("expected cursor failure to abort")
		}
	})

	t.Run("write failure", func(t *testing.T) {
		store := newMockBoundaryStore()
		store.collections["sggu_boundaries_li"] = boundaryDocs(5)
		store.updateErr = errors.New("not primary")
		svc := newTestRepairService(store, newMockCache())

		if _, err := svc.Repair(context.Background(), "sggu_boundaries_li"); err == nil {
			t.Error("expected write failure to abort")
		}
	})
}

func TestRepair_UnknownCollection(t *testing.T) {
	svc := newTestRepairService(newMockBoundaryStore(), newMockCache())

	_, err := svc.Repair(context.Background(), "hospitals")
	if !errors.Is(err, domain.ErrUnknownCollection) {
		t.Errorf("error = %v, want ErrUnknownCollection", err)
	}
}

func TestRepair_RejectsWhileBusy(t *testing.T) {
	svc := newTestRepairService(newMockBoundaryStore(), newMockCache())
	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, err := svc.Repair(context.Background(), "sggu_boundaries_sig")
	if !errors.Is(err, domain.ErrRepairRunning) {
		t.Errorf("error = %v, want ErrRepairRunning", err)
	}
}

func TestRepair_RepairAll(t *testing.T) {
	store := newMockBoundaryStore()
	store.collections["sggu_boundaries_ctprvn"] = boundaryDocs(3)
	store.collections["sggu_boundaries_sig"] = boundaryDocs(4, 0)
	svc := newTestRepairService(store, newMockCache())

	results, err := svc.RepairAll(context.Background())
	if err != nil {
		t.Fatalf("RepairAll() error = %v", err)
	}
	if len(results) != len(domain.AllBoundaryLevels) {
		t.Fatalf("results = %d, want one per level", len(results))
	}
	if results[0].Cleaned != 3 || results[1].Cleaned != 3 || results[1].Skipped != 1 {
		t.Errorf("results = %+v", results)
	}
}
