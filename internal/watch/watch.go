// Package watch reports writes to the task database made by other taskd
// processes.
//
// SQLite in WAL mode appends to <db>-wal on every commit and rewrites the
// main file on checkpoint, so watching the database directory for writes to
// either file is enough to notice foreign changes.
package watch

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Op represents the type of file system operation.
type Op int

const (
	// OpCreate indicates a new file was created.
	OpCreate Op = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
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

// Event is a change to one of the watched files.
type Event struct {
	Path string
	Op   Op
}

// Watcher watches a directory for changes to a fixed set of file names.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dir     string
	names   []string
}

// New creates a Watcher. Call Start before reading Events.
func New() (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher: watcher,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// DatabaseFiles returns the files SQLite writes for the database at path.
func DatabaseFiles(path string) (dir string, names []string) {
	base := filepath.Base(path)
	return filepath.Dir(path), []string{base, base + "-wal"}
}

// Start watches dir for changes to files named names.
func (w *Watcher) Start(dir string, names ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := w.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", abs, err)
	}

	w.dir = abs
	w.names = names
	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()

	close(w.events)
	close(w.errors)

	return nil
}

// Events returns the channel of file events. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ev, ok := w.convert(event)
			if !ok {
				continue
			}
			select {
			case w.events <- ev:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convert maps an fsnotify event for a watched file to an Event.
func (w *Watcher) convert(event fsnotify.Event) (Event, bool) {
	if filepath.Dir(event.Name) != w.dir || !slices.Contains(w.names, filepath.Base(event.Name)) {
		return Event{}, false
	}

	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return Event{}, false
	}

	return Event{Path: event.Name, Op: op}, true
}
