package modforge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compiledTestSystem(t *testing.T) *System {
	t.Helper()
	sys := newTestSystem(t, map[string]string{
		"a": manifestJSON("A", "B"),
		"b": manifestJSON("B", "C"),
		"c": manifestJSON("C"),
		"x": manifestJSON("X"),
	})
	require.True(t, sys.Compiler.Compile(context.Background(), CompileOptions{}).Success)
	return sys
}

func TestCompiledRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	sys := compiledTestSystem(t)

	modules, err := sys.Registry.GetAllModules(ctx)
	require.NoError(t, err)
	require.Len(t, modules, 4)
	for _, name := range []string{"A", "B", "C", "X"} {
		assert.Contains(t, modules, name)
	}
	assert.Equal(t, []string{"B"}, modules["A"].Dependencies)

	graph, err := sys.Registry.GetDependencyGraph(ctx)
	require.NoError(t, err)
	require.NotNil(t, graph)
	assert.Equal(t, []string{"B"}, graph.Adjacency["A"])
	assert.Equal(t, []string{"C", "X"}, graph.Wave(0))
	assert.Equal(t, []string{"B"}, graph.Wave(1))
	assert.Equal(t, []string{"A"}, graph.Wave(2))

	wave0, err := sys.Registry.GetModulesByWave(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "X"}, wave0)

	outOfRange, err := sys.Registry.GetModulesByWave(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, outOfRange)
}

func TestCompiledRegistryGetModule(t *testing.T) {
	ctx := context.Background()
	sys := compiledTestSystem(t)

	module, found, err := sys.Registry.GetModule(ctx, "B")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"C"}, module.Dependencies)

	_, found, err = sys.Registry.GetModule(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCompiledRegistryEmptyWhenNeverCompiled(t *testing.T) {
	ctx := context.Background()
	logger := &testLogger{}
	registry := NewCompiledRegistry(t.TempDir(), nil, logger)

	modules, err := registry.GetAllModules(ctx)
	require.NoError(t, err)
	assert.Empty(t, modules, "absence of an artifact is empty results, not an error")

	graph, err := registry.GetDependencyGraph(ctx)
	require.NoError(t, err)
	assert.Nil(t, graph)

	bindings, err := registry.GetServiceBindings(ctx, "anything")
	require.NoError(t, err)
	assert.Nil(t, bindings)

	assert.False(t, registry.IsValid(ctx))
}

func TestCompiledRegistryIsValid(t *testing.T) {
	ctx := context.Background()
	sys := compiledTestSystem(t)
	assert.True(t, sys.Registry.IsValid(ctx))
}

func TestCompiledRegistryCacheFastPath(t *testing.T) {
	ctx := context.Background()
	sys := compiledTestSystem(t)

	// Warm the cache, then delete the files; reads keep serving.
	modules, err := sys.Registry.GetAllModules(ctx)
	require.NoError(t, err)
	require.Len(t, modules, 4)

	for _, name := range CompiledArtifactFiles {
		require.NoError(t, os.Remove(filepath.Join(sys.Config.StorageDir, name)))
	}

	modules, err = sys.Registry.GetAllModules(ctx)
	require.NoError(t, err)
	assert.Len(t, modules, 4, "cached artifact still served after file removal")

	// Refresh invalidates the cache first, exposing the removal.
	require.NoError(t, sys.Registry.Refresh(ctx))
	modules, err = sys.Registry.GetAllModules(ctx)
	require.NoError(t, err)
	assert.Empty(t, modules)
}

func TestCompiledRegistryByContext(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := writeModule(t, root, "api_mod", manifestJSON("api_mod", "core"))
	writeModule(t, root, "core", manifestJSON("core"))

	routesDir := filepath.Join(path, "presentation", "routes")
	require.NoError(t, os.MkdirAll(routesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(routesDir, "api.json"),
		[]byte(`[{"method": "GET", "path": "/things", "handler": "things.index"}]`), 0o644))

	cfg := NewConfig()
	cfg.ModulesRoot = root
	cfg.StorageDir = t.TempDir()
	sys := NewSystem(cfg, &testLogger{})
	require.True(t, sys.Compiler.Compile(ctx, CompileOptions{}).Success)

	apiModules, err := sys.Registry.GetModulesByContext(ctx, ContextAPI)
	require.NoError(t, err)
	assert.Equal(t, []string{"api_mod", "core"}, apiModules,
		"context sets are transitively closed over dependencies")

	webModules, err := sys.Registry.GetModulesByContext(ctx, ContextWeb)
	require.NoError(t, err)
	assert.Empty(t, webModules)

	bindings, err := sys.Registry.GetServiceBindings(ctx, "api_mod")
	require.NoError(t, err)
	assert.Nil(t, bindings)

	routes, err := sys.Registry.GetRouteManifest(ctx, "api_mod")
	require.NoError(t, err)
	require.NotNil(t, routes)
	require.Len(t, routes.API, 1)
	assert.Equal(t, "things.index", routes.API[0].Handler)
}
