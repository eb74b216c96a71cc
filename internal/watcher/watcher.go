// Package watcher watches content directories and feeds newly created slide
// files to the ingester. The corpus is append-only, so only file creation is
// acted on; writes to already-ingested files and removals are ignored.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches directory roots and invokes a callback for new files.
type Watcher struct {
	roots      []string
	extensions []string
	onCreate   func(path string)
	debounce   time.Duration
	watcher    *fsnotify.Watcher
	logger     *zap.Logger // optional; when set, logs debug events

	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	seen        map[string]struct{}
	started     bool
	done        chan struct{}
	stopOnce    sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. onCreate is called once per newly
// created file whose extension is in extensions (empty = all), after writes
// to it have settled.
func NewWatcher(roots []string, extensions []string, onCreate func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		roots:       roots,
		extensions:  extensions,
		onCreate:    onCreate,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		seen:        make(map[string]struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns immediately; events are handled until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions))
	}
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			_ = watcher.Close()
			return err
		}
	}
	go w.run(ctx)
	return nil
}

// addTree registers root and all its subdirectories, remembering existing
// files so they are not re-reported as new.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		w.mu.Lock()
		w.seen[filepath.Clean(path)] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	path := filepath.Clean(ev.Name)
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		// New subdirectory: watch it and pick up files created inside.
		if ev.Has(fsnotify.Create) {
			_ = w.addNewTree(path)
		}
		return
	}
	if !matchExtension(path, w.extensions) {
		return
	}
	w.mu.Lock()
	_, known := w.seen[path]
	w.mu.Unlock()
	if known {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher new file", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	w.debounceCreate(path)
}

// addNewTree watches a directory created after Start, without marking its
// files as seen: they are new and should be reported.
func (w *Watcher) addNewTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		w.debounceCreate(filepath.Clean(path))
		return nil
	})
}

// debounceCreate schedules the callback once writes to path settle.
func (w *Watcher) debounceCreate(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		if _, dup := w.seen[path]; dup {
			w.mu.Unlock()
			return
		}
		w.seen[path] = struct{}{}
		w.mu.Unlock()
		if w.onCreate != nil {
			w.onCreate(path)
		}
	})
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		for _, t := range w.debounceMap {
			t.Stop()
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
	})
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
