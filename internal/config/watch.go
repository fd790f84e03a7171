package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
// The parent directory is watched rather than the file itself because Save
// replaces the file by rename, which drops a file-level watch on most platforms.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(Config, error)

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
	closeCh chan struct{}
	doneCh  chan struct{}
}

// Watch starts watching path. onChange runs on a timer goroutine with the
// freshly loaded config (or the Load error) after writes settle for debounce.
// A zero debounce uses 250ms.
func Watch(path string, debounce time.Duration, onChange func(Config, error)) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("config watch: onChange callback is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watch: resolve path: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watch: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			slog.Debug("[DEBUG-CONFIG] close watcher after add failure", "error", closeErr)
		}
		return nil, fmt.Errorf("config watch: add %s: %w", filepath.Dir(absPath), err)
	}

	w := &Watcher{
		path:     filepath.Clean(absPath),
		debounce: debounce,
		onChange: onChange,
		fsw:      fsw,
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	cfg, err := Load(w.path)
	slog.Debug("[DEBUG-CONFIG] config file changed on disk", "path", w.path, "error", err)
	w.onChange(cfg, err)
}

// Close stops the watcher. Pending reloads are discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	<-w.doneCh
	return w.fsw.Close()
}
