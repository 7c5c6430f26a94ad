package modforge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ManifestWatcher watches module manifest files under the modules root and
// marks the compiled artifact stale when one changes, so the next
// IsCompilationNeeded-driven check recompiles. An optional callback fires
// on each change for hosts that want to recompile immediately.
type ManifestWatcher struct {
	root     string
	cache    CachePort
	onChange func(module string)
	logger   Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mutex sync.RWMutex
	stale bool
}

// NewManifestWatcher creates a watcher over the modules root. cache may be
// nil; onChange may be nil.
func NewManifestWatcher(root string, cache CachePort, onChange func(module string), logger Logger) *ManifestWatcher {
	return &ManifestWatcher{
		root:     root,
		cache:    cache,
		onChange: onChange,
		logger:   logger,
	}
}

// Start begins watching. The modules root and each existing module
// directory are watched; manifest writes, creates, renames and removals
// all mark the compiled artifact stale.
func (w *ManifestWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(w.root); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch modules root '%s': %w", w.root, err)
	}
	matches, err := filepath.Glob(filepath.Join(w.root, "*"))
	if err == nil {
		for _, match := range matches {
			// Non-directory entries error out of Add; harmless.
			_ = watcher.Add(match)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(watchCtx)

	w.logger.Info("Watching module manifests", "root", w.root)
	return nil
}

// Stop ends watching and releases the underlying watcher.
func (w *ManifestWatcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			return fmt.Errorf("failed to close filesystem watcher: %w", err)
		}
	}
	return nil
}

// Stale reports whether a manifest change has been observed since the last
// ClearStale.
func (w *ManifestWatcher) Stale() bool {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.stale
}

// ClearStale resets the stale marker, typically after a recompile.
func (w *ManifestWatcher) ClearStale() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.stale = false
}

func (w *ManifestWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Filesystem watcher error", "error", err)
		}
	}
}

func (w *ManifestWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// New module directory appearing under the root gets watched too.
	if event.Op.Has(fsnotify.Create) && filepath.Dir(event.Name) == w.root {
		_ = w.watcher.Add(event.Name)
	}

	if filepath.Base(event.Name) != ManifestFileName {
		return
	}

	module := filepath.Base(filepath.Dir(event.Name))
	w.logger.Info("Module manifest changed", "module", module, "op", strings.ToLower(event.Op.String()))

	w.mutex.Lock()
	w.stale = true
	w.mutex.Unlock()

	if w.cache != nil {
		if err := w.cache.Delete(ctx, compiledCacheKey); err != nil {
			w.logger.Warn("Failed to invalidate compiled cache entry", "error", err)
		}
	}
	if w.onChange != nil {
		w.onChange(module)
	}
}
