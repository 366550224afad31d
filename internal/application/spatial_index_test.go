package application

import (
	"context"
	"errors"
	"testing"

	"github.com/jobrunner/hospigeo/internal/domain"
)

func TestEnsureSpatialIndex(t *testing.T) {
	const coll = "sggu_boundaries_sig"

	tests := []struct {
		name        string
		setup       func(*mockBoundaryStore)
		wantSuccess bool
		wantExisted bool
		wantWarning bool
		wantErr     bool
	}{
		{
			name:        "creates index",
			setup:       func(m *mockBoundaryStore) { m.collections[coll] = nil },
			wantSuccess: true,
		},
		{
			name: "already exists",
			setup: func(m *mockBoundaryStore) {
				m.collections[coll] = nil
				m.spatial[coll] = true
			},
			wantSuccess: true,
			wantExisted: true,
		},
		{
			name: "advisory failure downgraded",
			setup: func(m *mockBoundaryStore) {
				m.collections[coll] = nil
				m.createErr[coll] = &domain.AdvisoryIndexError{Collection: coll, Err: errors.New("Can't extract geo keys: Duplicate vertices")}
			},
			wantSuccess: true,
			wantWarning: true,
		},
		{
			name: "structural failure",
			setup: func(m *mockBoundaryStore) {
				m.collections[coll] = nil
				m.createErr[coll] = errors.New("not authorized")
			},
			wantErr: true,
		},
		{
			name:    "missing collection",
			setup:   func(*mockBoundaryStore) {},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockBoundaryStore()
			tt.setup(store)
			svc := NewSpatialIndexService(store, testCollections, testLogger())

			res, err := svc.EnsureSpatialIndex(context.Background(), coll)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Success != tt.wantSuccess || res.AlreadyExisted != tt.wantExisted || (res.Warning != "") != tt.wantWarning {
				t.Errorf("result = %+v", res)
			}
			if tt.wantErr && res.Error == "" {
				t.Error("failed result should carry the error message")
			}
		})
	}
}

func TestEnsureSpatialIndex_UnknownCollection(t *testing.T) {
	svc := NewSpatialIndexService(newMockBoundaryStore(), testCollections, testLogger())

	_, err := svc.EnsureSpatialIndex(context.Background(), "users")
	if !errors.Is(err, domain.ErrUnknownCollection) {
		t.Errorf("error = %v, want ErrUnknownCollection", err)
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown collection should be a validation error")
	}
}

func TestEnsureAll(t *testing.T) {
	store := newMockBoundaryStore()
	for _, c := range testCollections.All() {
		store.collections[c] = nil
	}
	store.spatial["sggu_boundaries_ctprvn"] = true
	store.createErr["sggu_boundaries_li"] = errors.New("disk full")
	svc := NewSpatialIndexService(store, testCollections, testLogger())

	results := svc.EnsureAll(context.Background())
	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}

	byName := make(map[string]domain.SpatialIndexResult)
	for _, r := range results {
		byName[r.Collection] = r
	}
	if !byName["sggu_boundaries_ctprvn"].AlreadyExisted {
		t.Error("ctprvn index should already exist")
	}
	if byName["sggu_boundaries_li"].Success {
		t.Error("li should fail")
	}
	for _, c := range []string{"sggu_boundaries_sig", "sggu_boundaries_emd", "sggu_boundaries"} {
		if !byName[c].Success {
			t.Errorf("%s: %+v", c, byName[c])
		}
	}
}

func TestSpatialIndexStatus(t *testing.T) {
	store := newMockBoundaryStore()
	store.collections["sggu_boundaries_sig"] = nil
	store.spatial["sggu_boundaries_sig"] = true
	store.collections["sggu_boundaries_emd"] = nil
	svc := NewSpatialIndexService(store, testCollections, testLogger())

	statuses := svc.Status(context.Background())
	if len(statuses) != 5 {
		t.Fatalf("statuses = %d", len(statuses))
	}
	for _, st := range statuses {
		switch st.Collection {
		case "sggu_boundaries_sig":
			if !st.Exists || !st.HasSpatialIndex || st.Level != domain.LevelCity {
				t.Errorf("sig = %+v", st)
			}
		case "sggu_boundaries_emd":
			if !st.Exists || st.HasSpatialIndex {
				t.Errorf("emd = %+v", st)
			}
		default:
			if st.Exists {
				t.Errorf("%s should not exist", st.Collection)
			}
		}
	}
}
