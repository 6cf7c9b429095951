// Package watch monitors a single source file for changes and triggers a
// callback once the file has been stable for a debounce interval. It backs
// the `--watch` flag on `speattest attest`, which re-runs certification
// whenever the input text/file changes on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event reports that a watched file has changed and stabilized.
type Event struct {
	Path      string
	Size      int64
	ModTime   time.Time
	Timestamp time.Time
}

// Watcher monitors one file and emits an Event each time it changes and
// then holds still for the configured debounce interval.
type Watcher struct {
	path      string
	debounce  time.Duration
	fsWatcher *fsnotify.Watcher

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Watcher for path, debouncing changes by debounceMs
// milliseconds (a non-positive value defaults to 300ms).
func New(path string, debounceMs int) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if debounceMs <= 0 {
		debounceMs = 300
	}

	return &Watcher{
		path:      absPath,
		debounce:  time.Duration(debounceMs) * time.Millisecond,
		fsWatcher: fsWatcher,
		events:    make(chan Event, 8),
		errors:    make(chan error, 8),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of stabilized-change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching the file's parent directory (fsnotify watches
// directories, not individual files, so renames-over and editor swap files
// are still picked up).
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop shuts the watcher down and releases its resources.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var debounceTimer *time.Timer
	for {
		select {
		case <-w.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.emit)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) emit() {
	info, err := os.Stat(w.path)
	if err != nil {
		select {
		case w.errors <- err:
		default:
		}
		return
	}

	event := Event{
		Path:      w.path,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Timestamp: time.Now(),
	}

	select {
	case w.events <- event:
	default:
	}
}

// Run watches path until ctx is canceled, invoking onChange once per
// stabilized change. It is the synchronous entry point cmd/speattest uses
// for `--watch`.
func Run(ctx context.Context, path string, debounceMs int, onChange func(Event)) error {
	w, err := New(path, debounceMs)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			onChange(ev)
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			return err
		}
	}
}
