package skeleton

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"stubtree/internal/manifest"
)

// Watcher rebuilds the skeleton whenever a manifest, config file or the
// lock file changes. Application-source edits never retrigger a build:
// only files that participate in the skeleton are watched for.
type Watcher struct {
	builder *Builder
	log     *zap.Logger
	watcher *fsnotify.Watcher

	mu          sync.Mutex
	debounceMap map[string]time.Time
	debounceDur time.Duration
	rebuilds    int

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	stopped bool
}

// ErrWatcherStopped is returned by Start after Stop: the underlying
// filesystem watcher is closed and a Watcher is not reusable.
var ErrWatcherStopped = errors.New("watcher already stopped")

// NewWatcher wraps a Builder in a filesystem watcher.
func NewWatcher(b *Builder, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		builder:     b,
		log:         log,
		watcher:     fw,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // settle rapid editor saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start runs one initial build, registers the watch directories and starts
// the event loop. Non-blocking. A Watcher is one-shot: once stopped it
// cannot be started again.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrWatcherStopped
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if _, err := w.builder.Run(ctx); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.refreshWatches()

	go w.run(ctx)
	return nil
}

// Stop stops the event loop and waits for it to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.log.Error("closing watcher", zap.Error(err))
	}
}

// Rebuilds reports how many rebuilds have run since Start.
func (w *Watcher) Rebuilds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rebuilds
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			w.log.Error("watch error", zap.Error(err))
		case <-ticker.C:
			w.processDebounced(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// The skeleton and its staging siblings are this pipeline's own
	// output; reacting to them would rebuild forever.
	if w.inOutput(event.Name) {
		return
	}

	// New directories are added to the watch list immediately so a
	// manifest created inside them still triggers later.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			base := filepath.Base(event.Name)
			if base != ".git" && base != "target" {
				_ = w.watcher.Add(event.Name)
			}
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !w.relevant(event.Name) {
		return
	}

	w.log.Debug("relevant change", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// inOutput reports whether p lies at or under the output directory or one
// of its .stage-* staging siblings.
func (w *Watcher) inOutput(p string) bool {
	out := w.builder.out
	if p == out || strings.HasPrefix(p, out+string(filepath.Separator)) {
		return true
	}
	return strings.HasPrefix(p, out+".stage-")
}

// relevant reports whether a changed path participates in the skeleton.
func (w *Watcher) relevant(p string) bool {
	if w.inOutput(p) {
		return false
	}
	rel, err := filepath.Rel(w.builder.root, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == filepath.ToSlash(w.builder.cfg.Lockfile) {
		return true
	}
	switch path.Base(rel) {
	case manifest.FileName, "rust-toolchain", "rust-toolchain.toml":
		return true
	case "config", "config.toml":
		return path.Base(path.Dir(rel)) == ".cargo"
	}
	return false
}

// processDebounced coalesces all settled events into a single rebuild.
func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	settled := false
	for p, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			delete(w.debounceMap, p)
			settled = true
		}
	}
	w.mu.Unlock()
	if !settled {
		return
	}

	if _, err := w.builder.Run(ctx); err != nil {
		w.log.Error("rebuild failed", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.rebuilds++
	w.mu.Unlock()
	w.refreshWatches()
}

// refreshWatches points the watcher at every non-pruned directory of the
// tree, so a manifest appearing in a previously uninteresting directory
// still raises an event. Adds are idempotent; stale directories disappear
// with their inodes.
func (w *Watcher) refreshWatches() {
	scan, err := w.builder.scan()
	if err != nil {
		w.log.Warn("watch refresh scan failed", zap.Error(err))
		return
	}

	dirs := append([]string{"."}, scan.Dirs...)
	for _, dir := range dirs {
		abs := filepath.Join(w.builder.root, filepath.FromSlash(dir))
		if err := w.watcher.Add(abs); err != nil {
			w.log.Debug("cannot watch", zap.String("dir", abs), zap.Error(err))
		}
	}
}
