// Package watcher monitors the compared roots and reports image changes via callbacks.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CageChen/imagediff/internal/config"
	"github.com/CageChen/imagediff/internal/logging"
)

// EventType represents the type of file system event
type EventType int

// File system event types.
const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "update"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event represents a file system change event
type Event struct {
	Type EventType
	Path string
}

// Callback is called with the batch of events collected during one debounce window.
type Callback func([]Event)

// Watcher monitors image changes below a set of local directories. Events are
// collected until no new event arrived for the debounce interval and then
// delivered as one batch.
type Watcher struct {
	watcher   *fsnotify.Watcher
	cfg       *config.Config
	roots     []string
	debounce  time.Duration
	logger    *slog.Logger
	callbacks []Callback
	mu        sync.Mutex
	pending   []Event
	timer     *time.Timer
	done      chan struct{}
	stopOnce  sync.Once
}

// New creates a watcher for the given local roots.
func New(cfg *config.Config, roots []string, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		cfg:      cfg,
		roots:    roots,
		debounce: cfg.Debounce,
		logger:   logging.OrNop(logger),
		done:     make(chan struct{}),
	}, nil
}

// OnChange registers a callback for batches of change events
func (w *Watcher) OnChange(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start adds every directory below the roots and begins delivering events.
func (w *Watcher) Start() error {
	for _, root := range w.roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				w.logger.Warn("cannot walk directory", "path", path, "error", err)
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && w.cfg.IsExcluded(path) {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("cannot watch directory", "path", path, "error", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	go w.eventLoop()
	return nil
}

// Stop stops the watcher and drops pending events.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.cfg.IsExcluded(event.Name) {
		return
	}

	dir := isDir(event.Name)
	if !dir && !w.cfg.IsImageFile(event.Name) && !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	var eventType EventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = EventCreate
		if dir {
			// New directories may already contain images.
			_ = w.watcher.Add(event.Name)
		}
	case event.Op.Has(fsnotify.Write):
		eventType = EventWrite
	case event.Op.Has(fsnotify.Remove):
		eventType = EventRemove
	case event.Op.Has(fsnotify.Rename):
		eventType = EventRename
	default:
		return
	}

	w.enqueue(Event{Type: eventType, Path: event.Name})
}

func (w *Watcher) enqueue(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, e)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	select {
	case <-w.done:
		return
	default:
	}

	w.mu.Lock()
	events := w.pending
	w.pending = nil
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if len(events) == 0 {
		return
	}
	w.logger.Debug("filesystem changed", "events", len(events))
	for _, cb := range callbacks {
		cb(events)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
