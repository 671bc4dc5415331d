package models

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a new file must be quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// EventKind says what happened to a model file.
type EventKind int

const (
	ModelAdded EventKind = iota
	ModelRemoved
)

func (k EventKind) String() string {
	if k == ModelAdded {
		return "added"
	}
	return "removed"
}

// Event reports a model file appearing in or leaving the models directory.
type Event struct {
	Kind  EventKind
	Model Model
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period for new files.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// Watcher reports model files added to or removed from a directory. A file
// is reported as added once writes to it have stopped for the debounce
// period, so a model still being copied in is not picked up early.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	known map[string]bool

	events chan Event
	fire   chan string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWatcher starts watching dir. Files already present are not reported.
func NewWatcher(dir string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		known:    make(map[string]bool),
		events:   make(chan Event, 16),
		fire:     make(chan string, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.fsw = fsw

	existing, err := NewLibrary(nil, dir).scan(func(string) bool { return true })
	if err == nil {
		for _, m := range existing {
			w.known[m.Path] = true
		}
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("watching models directory", "dir", dir)
	return w, nil
}

// Events delivers model events. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher and waits for its loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	defer close(w.events)

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !IsModelFile(ev.Name) {
				continue
			}

			switch {
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				if t, ok := timers[ev.Name]; ok {
					t.Reset(w.debounce)
					continue
				}
				name := ev.Name
				timers[name] = time.AfterFunc(w.debounce, func() {
					select {
					case w.fire <- name:
					case <-w.done:
					}
				})

			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				if t, ok := timers[ev.Name]; ok {
					t.Stop()
					delete(timers, ev.Name)
				}
				if w.known[ev.Name] {
					delete(w.known, ev.Name)
					w.emit(Event{Kind: ModelRemoved, Model: modelAt(ev.Name)})
				}
			}

		case name := <-w.fire:
			delete(timers, name)
			if w.known[name] {
				continue
			}
			if info, err := os.Stat(name); err != nil || info.IsDir() {
				continue
			}
			w.known[name] = true
			w.emit(Event{Kind: ModelAdded, Model: modelAt(name)})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("models watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) emit(ev Event) {
	w.logger.Debug("model file changed", "kind", ev.Kind.String(), "model", ev.Model.Name)
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func modelAt(path string) Model {
	return Model{Name: filepath.Base(path), Path: path}
}
