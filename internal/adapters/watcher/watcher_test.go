package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestToOperation(t *testing.T) {
	tests := []struct {
		name     string
		op       fsnotify.Op
		expected Operation
	}{
		{"Remove returns OpDelete", fsnotify.Remove, OpDelete},
		{"Rename returns OpDelete", fsnotify.Rename, OpDelete},
		{"Create returns OpCreate", fsnotify.Create, OpCreate},
		{"Write returns OpModify", fsnotify.Write, OpModify},
		{"Chmod returns OpModify", fsnotify.Chmod, OpModify},
		{"Remove takes precedence over Write", fsnotify.Remove | fsnotify.Write, OpDelete},
		{"Create takes precedence over Write", fsnotify.Create | fsnotify.Write, OpCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toOperation(tt.op); got != tt.expected {
				t.Errorf("toOperation(%v) = %v, want %v", tt.op, got, tt.expected)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		pending, next, want Operation
	}{
		{OpCreate, OpModify, OpCreate},
		{OpModify, OpModify, OpModify},
		{OpModify, OpDelete, OpDelete},
		{OpDelete, OpCreate, OpCreate},
		{OpDelete, OpModify, OpModify},
	}
	for _, tt := range tests {
		if got := merge(tt.pending, tt.next); got != tt.want {
			t.Errorf("merge(%v, %v) = %v, want %v", tt.pending, tt.next, got, tt.want)
		}
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op       Operation
		expected string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.op.String(); got != tt.expected {
				t.Errorf("Operation.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func newTestWatcher(t *testing.T, cfg Config, h Handler) *Watcher {
	t.Helper()
	w, err := New(cfg, h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func TestDebounce(t *testing.T) {
	w := newTestWatcher(t, Config{
		Debounce: time.Second,
		Match:    func(p string) bool { return strings.HasSuffix(p, ".geojson") },
	}, nil)
	defer func() { _ = w.fsWatcher.Close() }()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	w.record("/data/sig.geojson", OpCreate)
	w.record("/data/sig.geojson", OpModify)
	w.record("/data/notes.txt", OpCreate)

	clock = clock.Add(500 * time.Millisecond)
	w.record("/data/emd.geojson", OpModify)
	if got := w.due(); len(got) != 0 {
		t.Fatalf("due() before debounce = %v", got)
	}

	clock = clock.Add(600 * time.Millisecond)
	got := w.due()
	if len(got) != 1 || got[0].Path != "/data/sig.geojson" || got[0].Operation != OpCreate {
		t.Fatalf("due() = %+v, want one create of sig.geojson", got)
	}

	clock = clock.Add(time.Second)
	got = w.due()
	if len(got) != 1 || got[0].Path != "/data/emd.geojson" {
		t.Fatalf("due() = %+v, want emd.geojson", got)
	}
}

func TestWatcherDeliversFileEvents(t *testing.T) {
	dir := t.TempDir()

	var (
		mu     sync.Mutex
		events []Event
	)
	done := make(chan struct{}, 1)
	w := newTestWatcher(t, Config{
		Paths:    []string{dir},
		Debounce: 50 * time.Millisecond,
		Match:    func(p string) bool { return strings.HasSuffix(p, ".geojson") },
	}, func(_ context.Context, e Event) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		cancel()
		_ = w.Stop()
	}()

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sig.geojson"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || filepath.Base(events[0].Path) != "sig.geojson" {
		t.Errorf("events = %+v", events)
	}
}
