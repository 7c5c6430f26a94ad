package modforge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverValidModules(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "blog", manifestJSON("blog"))
	writeModule(t, root, "shop", manifestJSON("shop", "blog"))

	logger := &testLogger{}
	discovery := NewDiscovery(NewFSModuleSource(root, logger), nil, logger)

	descriptors, err := discovery.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, "blog", descriptors[0].Name)
	assert.Equal(t, "shop", descriptors[1].Name)
	assert.Equal(t, []string{"blog"}, descriptors[1].Dependencies)
	assert.Equal(t, StateNotInstalled, descriptors[0].State)
	assert.Equal(t, filepath.Join(root, "blog"), descriptors[0].Path)
}

func TestDiscoverSilentlyExcludesNonModules(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "real", manifestJSON("real"))

	// Missing one layer directory: not a module, not an error.
	partial := filepath.Join(root, "partial")
	require.NoError(t, os.MkdirAll(filepath.Join(partial, "domain"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(partial, ManifestFileName), []byte(manifestJSON("partial")), 0o644))

	// Directory with layers but no manifest.
	for _, layer := range LayerDirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "no_manifest", layer), 0o755))
	}

	// Plain file in the root.
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.txt"), []byte("hi"), 0o644))

	logger := &testLogger{}
	discovery := NewDiscovery(NewFSModuleSource(root, logger), nil, logger)

	descriptors, err := discovery.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "real", descriptors[0].Name)
}

func TestDiscoverSurfacesManifestErrors(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "broken", `{"name": "broken", "dependencies": "oops"}`)

	logger := &testLogger{}
	discovery := NewDiscovery(NewFSModuleSource(root, logger), nil, logger)

	_, err := discovery.Discover(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifestFieldType)
	assert.Contains(t, err.Error(), "broken")
}

func TestDiscoverAttachesPersistedState(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "blog", manifestJSON("blog"))

	logger := &testLogger{}
	states := NewStateStore(t.TempDir(), nil, logger)
	require.NoError(t, states.SetState(context.Background(), "blog", StateEnabled))

	discovery := NewDiscovery(NewFSModuleSource(root, logger), states, logger)
	descriptors, err := discovery.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, StateEnabled, descriptors[0].State)
}

func TestFindModule(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "blog", manifestJSON("blog"))

	logger := &testLogger{}
	discovery := NewDiscovery(NewFSModuleSource(root, logger), nil, logger)

	module, found, err := discovery.FindModule(context.Background(), "blog")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "blog", module.Name)

	_, found, err = discovery.FindModule(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDiscoverMissingRootIsEmpty(t *testing.T) {
	logger := &testLogger{}
	discovery := NewDiscovery(NewFSModuleSource(filepath.Join(t.TempDir(), "nope"), logger), nil, logger)

	descriptors, err := discovery.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestMapModuleSource(t *testing.T) {
	source := NewMapModuleSource()
	source.Add("b", []byte(manifestJSON("b")))
	source.Add("a", []byte(manifestJSON("a")))

	candidates, err := source.List(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "a", candidates[0].Name)
	assert.Equal(t, "b", candidates[1].Name)

	_, err = source.ManifestModTime(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}
