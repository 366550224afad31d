// Package watcher triggers dataset imports when boundary files change on
// disk.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a debounced change to one dataset file.
type Event struct {
	Path      string
	Operation Operation
}

// Operation is the kind of change.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called once per debounced event. Calls are serialized.
type Handler func(ctx context.Context, event Event) error

type pendingEvent struct {
	seen time.Time
	op   Operation
}

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
	// Match selects the files to report. Nil reports every file.
	Match func(path string) bool
}

// Watcher coalesces bursts of file system events per path and hands them to
// a handler after the path has been quiet for the debounce interval.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingEvent

	events chan Event
	wg     sync.WaitGroup
}

// New creates a watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Match == nil {
		cfg.Match = func(string) bool { return true }
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		pending:   make(map[string]*pendingEvent),
		events:    make(chan Event, 64),
	}, nil
}

// Start begins watching the configured directories. Directories that cannot
// be watched are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.cfg.Paths {
		if err := w.AddPath(path); err != nil {
			w.logger.Warn("failed to watch path", "path", path, "error", err)
		}
	}

	w.wg.Add(3)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)
	go w.dispatchLoop(ctx)
	return nil
}

// Stop closes the underlying watcher and waits for the loops to exit. The
// context passed to Start must be cancelled as well.
func (w *Watcher) Stop() error {
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

// AddPath adds a directory to watch.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}
	w.logger.Info("watching directory", "path", absPath)
	return nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.record(event.Name, toOperation(event.Op))
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// record merges op into the pending event of path.
func (w *Watcher) record(path string, op Operation) {
	if !w.cfg.Match(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[path]
	if !ok {
		w.pending[path] = &pendingEvent{seen: w.now(), op: op}
		return
	}
	p.seen = w.now()
	p.op = merge(p.op, op)
}

// merge folds a new operation into a pending one. A delete wins unless the
// file is recreated afterwards.
func merge(pending, next Operation) Operation {
	switch {
	case next == OpDelete:
		return OpDelete
	case pending == OpDelete && next == OpCreate:
		return OpCreate
	case pending == OpDelete:
		return OpModify
	default:
		return pending
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range w.due() {
				select {
				case w.events <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// due removes and returns the events that have been quiet long enough.
func (w *Watcher) due() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var out []Event
	for path, p := range w.pending {
		if now.Sub(p.seen) < w.cfg.Debounce {
			continue
		}
		delete(w.pending, path)
		out = append(out, Event{Path: path, Operation: p.op})
	}
	return out
}

func (w *Watcher) dispatchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.events:
			w.logger.Info("dataset changed", "path", e.Path, "operation", e.Operation.String())
			if err := w.handler(ctx, e); err != nil {
				w.logger.Error("dataset handler failed",
					"path", e.Path,
					"operation", e.Operation.String(),
					"error", err,
				)
			}
		}
	}
}

func toOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}
