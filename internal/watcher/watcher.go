// Package watcher feeds files dropped into inbox directories to the ingestion pipeline.
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
	"github.com/hyperjump/benkyo/pkg/utils"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// IngestFunc receives the path of a file that should be added to the knowledge base.
type IngestFunc func(ctx context.Context, path string)

// Watcher watches inbox directories and calls an IngestFunc once a created or
// written file has been quiet for the debounce interval. Removals are logged and
// otherwise ignored; the knowledge base has no per-document delete.
type Watcher struct {
	mu         sync.Mutex
	dirs       []string
	watched    map[string][]string // inbox -> directories registered with fsnotify
	extensions []string
	recursive  bool
	ingest     IngestFunc
	debounce   time.Duration
	pending    map[string]*time.Timer
	fsw        *fsnotify.Watcher
	ctx        context.Context
	done       chan struct{}
	stopOnce   sync.Once
	logger     *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over dirs. Only files whose extension is in extensions
// are ingested; an empty list accepts every file.
func New(dirs, extensions []string, recursive bool, ingest IngestFunc, opts ...Option) *Watcher {
	w := &Watcher{
		watched:    make(map[string][]string),
		extensions: extensions,
		recursive:  recursive,
		ingest:     ingest,
		debounce:   defaultDebounce,
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, dir := range dirs {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		w.dirs = append(w.dirs, filepath.Clean(dir))
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start registers the inbox directories, creating missing ones, and processes
// events until ctx is cancelled or Stop is called. ctx is also passed to every
// IngestFunc call.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.ctx = ctx
	for _, dir := range w.dirs {
		if err := w.watchLocked(dir); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.logger.Info("watching inbox directories", zap.Strings("dirs", w.dirs), zap.Bool("recursive", w.recursive))
	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := ev.Name
	if !w.inInbox(path) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.newDirectory(path)
			return
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if matchExtension(path, w.extensions) {
			w.logger.Info("file left inbox; its fragments stay in the knowledge base", zap.String("path", path))
		}
	}
}

// newDirectory starts watching a directory created inside an inbox and ingests what it already holds.
func (w *Watcher) newDirectory(dir string) {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	if w.recursive {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if err := fsw.Add(path); err != nil {
					w.logger.Warn("cannot watch directory", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		})
	} else if err := fsw.Add(dir); err != nil {
		w.logger.Warn("cannot watch directory", zap.String("path", dir), zap.Error(err))
	}
	w.sync(dir)
}

func (w *Watcher) inInbox(path string) bool {
	w.mu.Lock()
	dirs := append([]string(nil), w.dirs...)
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, dir := range dirs {
		if inDir(filepath.Clean(dir), clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
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

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.logger.Debug("ingesting inbox file", zap.String("path", path))
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// AddDirectory adds an inbox while running. When syncExisting is set the files it
// already holds are ingested in the background.
func (w *Watcher) AddDirectory(dir string, syncExisting bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	for _, d := range w.dirs {
		if filepath.Clean(d) == abs {
			return nil
		}
	}
	if err := w.watchLocked(abs); err != nil {
		return err
	}
	w.dirs = append(w.dirs, abs)
	w.logger.Info("inbox added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.sync(abs)
	}
	return nil
}

func (w *Watcher) watchLocked(dir string) error {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	var registered []string
	if w.recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := w.fsw.Add(path); err != nil {
				return err
			}
			registered = append(registered, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		registered = append(registered, dir)
	}
	w.watched[dir] = registered
	return nil
}

// sync ingests the matching files already present under dir.
func (w *Watcher) sync(dir string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.ingest(ctx, path)
		}
		return ctx.Err()
	})
}

// RemoveDirectory stops watching an inbox. Fragments already ingested from it stay.
func (w *Watcher) RemoveDirectory(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	for i, d := range w.dirs {
		if filepath.Clean(d) != abs {
			continue
		}
		for _, p := range w.watched[abs] {
			_ = w.fsw.Remove(p)
		}
		delete(w.watched, abs)
		w.dirs = append(w.dirs[:i], w.dirs[i+1:]...)
		w.logger.Info("inbox removed", zap.String("path", abs))
		return nil
	}
	return nil
}

// Directories returns the current inbox directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.dirs...)
}

// SyncExistingFiles ingests the files already present in every inbox. Call it after Start.
func (w *Watcher) SyncExistingFiles() {
	for _, dir := range w.Directories() {
		w.sync(dir)
	}
}

// Stop stops watching and drops pending ingests.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
