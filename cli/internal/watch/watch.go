// Package watch reruns a callback when project or request files change.
package watch

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/satishbabariya/contentql/internal/debug"
)

// Debounce is the quiet period after the last write before the callback runs
const Debounce = 500 * time.Millisecond

// Watcher watches a set of files for changes
type Watcher struct {
	// OnError receives callback and notifier errors; it defaults to the debug log
	OnError func(error)

	files    map[string]bool
	callback func() error
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher calling callback whenever one of files is written
func NewWatcher(callback func() error, files ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		files:    make(map[string]bool, len(files)),
		OnError:  func(err error) { debug.Error("watch", "error", err) },
		callback: callback,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	dirs := make(map[string]bool)
	for _, file := range files {
		path, err := filepath.Abs(file)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", file, err)
		}
		w.files[path] = true
		// Editors replace files on save, so the directory is watched
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	return w, nil
}

// Start runs the callback once and then after every burst of changes
func (w *Watcher) Start() error {
	w.run()
	go w.loop()
	return nil
}

func (w *Watcher) run() {
	if err := w.callback(); err != nil {
		w.OnError(err)
	}
}

func (w *Watcher) loop() {
	timer := time.NewTimer(Debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if path, err := filepath.Abs(event.Name); err == nil && w.files[path] {
				timer.Reset(Debounce)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			w.run()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.OnError(err)
		case <-w.done:
			timer.Stop()
			return
		}
	}
}

// Stop ends the watch loop and releases the notifier
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}
