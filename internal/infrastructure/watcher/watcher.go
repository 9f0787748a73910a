// Package watcher reports coverage upload files written to a directory.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultExtensions are the coverage upload file types watched by default.
var DefaultExtensions = []string{".out", ".info", ".lcov", ".xml"}

// Watcher monitors a directory tree for coverage files.
type Watcher struct {
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	extensions []string
	logger     *zap.Logger
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before it is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithExtensions sets the file extensions to watch.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = exts
	}
}

// WithLogger sets the logger for watch errors.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// New creates a new file watcher.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:    fsw,
		debounce:   500 * time.Millisecond,
		extensions: DefaultExtensions,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// WatchDir adds a directory and its subdirectories to the watch list.
// Hidden directories below root are skipped.
func (w *Watcher) WatchDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(filepath.Base(path)) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func skipDir(base string) bool {
	return strings.HasPrefix(base, ".") || base == "vendor" || base == "node_modules"
}

// Events returns a channel of coverage file paths. A path is emitted once
// writes to it have been quiet for the debounce duration; paths settling
// together are emitted in sorted order. The channel closes when ctx is done
// or the watcher is closed.
func (w *Watcher) Events(ctx context.Context) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		pending := make(map[string]struct{})
		var timer *time.Timer
		var timerCh <-chan time.Time
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create == fsnotify.Create {
					w.watchNewDir(event.Name)
				}
				if !isWriteEvent(event.Op) || !w.hasRelevantExtension(event.Name) {
					continue
				}
				pending[event.Name] = struct{}{}

				// Debounce: reset timer on each event
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C

			case <-timerCh:
				timerCh = nil
				paths := make([]string, 0, len(pending))
				for p := range pending {
					paths = append(paths, p)
				}
				sort.Strings(paths)
				clear(pending)
				for _, p := range paths {
					select {
					case out <- p:
					case <-ctx.Done():
						return
					}
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()

	return out
}

func (w *Watcher) watchNewDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || skipDir(filepath.Base(path)) {
		return
	}
	if err := w.WatchDir(path); err != nil {
		w.logger.Warn("watch new directory", zap.String("dir", path), zap.Error(err))
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func isWriteEvent(op fsnotify.Op) bool {
	return op&fsnotify.Write == fsnotify.Write ||
		op&fsnotify.Create == fsnotify.Create
}

func (w *Watcher) hasRelevantExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
