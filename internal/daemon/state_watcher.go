package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/fieldstate/internal/logfields"
	"git.home.luguber.info/inful/fieldstate/internal/state"
)

// selfWriteGrace is how long after the store's own write to a component a
// file event on that component is attributed to the store rather than to an
// external editor.
const selfWriteGrace = 2 * time.Second

// StateWatcher monitors the state directory for out-of-band modification of
// component files. The store rewrites its files constantly, so events close
// to the store's own writes are filtered out; everything else is journaled
// as an external change.
type StateWatcher struct {
	store    *state.Store
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopChan chan struct{}
	stopped  bool
}

// NewStateWatcher creates a watcher over the store's data directory.
func NewStateWatcher(store *state.Store) (*StateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &StateWatcher{
		store:    store,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins monitoring the state directory.
func (w *StateWatcher) Start(ctx context.Context) error {
	dir := w.store.DataDir()
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch state directory %s: %w", dir, err)
	}
	slog.Info("Starting state directory watcher", logfields.Path(dir))
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *StateWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true

	slog.Info("Stopping state directory watcher")
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing file watcher", logfields.Error(err))
	}
	return nil
}

func (w *StateWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("State watcher error", logfields.Error(err))
		}
	}
}

func (w *StateWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	component, ok := componentForFile(event.Name)
	if !ok {
		return
	}
	// The store's own temp-write/rename/rotate sequence produces a burst of
	// events right after LastWrite; those are not external.
	if time.Since(w.store.LastWrite(component)) < selfWriteGrace {
		return
	}

	slog.Warn("State file changed outside the store",
		logfields.Component(component),
		logfields.Path(event.Name),
		slog.String("op", event.Op.String()))
	w.store.RecordExternalChange(ctx, component,
		fmt.Sprintf("%s %s", event.Op, filepath.Base(event.Name)))
}

// componentForFile maps a file in the state directory back to its component
// name. Primary files, temp files, and backup slots all attribute to the
// same component; anything else (journal.db, stray files) is ignored.
func componentForFile(path string) (string, bool) {
	base := filepath.Base(path)

	// Strip ".tmp" or ".bakN" suffixes down to the primary name.
	if strings.HasSuffix(base, ".tmp") {
		base = strings.TrimSuffix(base, ".tmp")
	} else if i := strings.LastIndex(base, ".bak"); i > 0 && i == len(base)-5 {
		base = base[:i]
	}

	if !strings.HasSuffix(base, state.FileExt) {
		return "", false
	}
	return strings.TrimSuffix(base, state.FileExt), true
}
