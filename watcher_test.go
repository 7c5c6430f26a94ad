package modforge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherMarksStaleOnManifestWrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := writeModule(t, root, "blog", manifestJSON("blog"))

	var (
		mutex   sync.Mutex
		changed []string
	)
	watcher := NewManifestWatcher(root, nil, func(module string) {
		mutex.Lock()
		defer mutex.Unlock()
		changed = append(changed, module)
	}, &testLogger{})
	require.NoError(t, watcher.Start(ctx))
	defer func() { require.NoError(t, watcher.Stop()) }()

	assert.False(t, watcher.Stale())

	require.NoError(t, os.WriteFile(filepath.Join(path, ManifestFileName),
		[]byte(manifestJSON("blog", "core")), 0o644))

	require.Eventually(t, watcher.Stale, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(changed) > 0 && changed[0] == "blog"
	}, 2*time.Second, 10*time.Millisecond)

	watcher.ClearStale()
	assert.False(t, watcher.Stale())
}

func TestWatcherPicksUpNewModuleDirectories(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	watcher := NewManifestWatcher(root, nil, nil, &testLogger{})
	require.NoError(t, watcher.Start(ctx))
	defer func() { require.NoError(t, watcher.Stop()) }()

	// A module created after Start is watched too.
	path := filepath.Join(root, "fresh")
	require.NoError(t, os.MkdirAll(path, 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(path, ManifestFileName),
		[]byte(manifestJSON("fresh")), 0o644))

	require.Eventually(t, watcher.Stale, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherInvalidatesCompiledCacheEntry(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := writeModule(t, root, "shop", manifestJSON("shop"))

	cache := NewMemoryCache()
	require.NoError(t, cache.Set(ctx, compiledCacheKey, &CompiledArtifact{}, time.Hour))

	watcher := NewManifestWatcher(root, cache, nil, &testLogger{})
	require.NoError(t, watcher.Start(ctx))
	defer func() { require.NoError(t, watcher.Stop()) }()

	require.NoError(t, os.WriteFile(filepath.Join(path, ManifestFileName),
		[]byte(manifestJSON("shop", "core")), 0o644))

	require.Eventually(t, func() bool {
		_, ok := cache.Get(ctx, compiledCacheKey)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := writeModule(t, root, "shop", manifestJSON("shop"))

	watcher := NewManifestWatcher(root, nil, nil, &testLogger{})
	require.NoError(t, watcher.Start(ctx))
	defer func() { require.NoError(t, watcher.Stop()) }()

	require.NoError(t, os.WriteFile(filepath.Join(path, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.False(t, watcher.Stale())
}
