package modforge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addPresentation drops a declaration file under a module's presentation
// layer, creating parent directories as needed.
func addPresentation(t *testing.T, modulePath string, parts ...string) {
	t.Helper()
	target := filepath.Join(append([]string{modulePath, "presentation"}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("[]"), 0o644))
}

func TestAnalyzeModuleStructuralClassification(t *testing.T) {
	root := t.TempDir()
	analyzer := NewContextAnalyzer(&testLogger{})

	apiPath := writeModule(t, root, "api_mod", manifestJSON("api_mod"))
	addPresentation(t, apiPath, "routes", "api.json")

	webPath := writeModule(t, root, "web_mod", manifestJSON("web_mod"))
	addPresentation(t, webPath, "routes", "web.json")

	cliPath := writeModule(t, root, "cli_mod", manifestJSON("cli_mod"))
	addPresentation(t, cliPath, "console", "commands.json")

	adminPath := writeModule(t, root, "admin_mod", manifestJSON("admin_mod"))
	addPresentation(t, adminPath, "routes", "admin.json")

	testPath := writeModule(t, root, "test_mod", manifestJSON("test_mod"))
	require.NoError(t, os.MkdirAll(filepath.Join(testPath, "tests"), 0o755))

	plainPath := writeModule(t, root, "plain_mod", manifestJSON("plain_mod"))

	cases := []struct {
		path string
		name string
		want []Context
	}{
		{apiPath, "api_mod", []Context{ContextAPI}},
		{webPath, "web_mod", []Context{ContextWeb}},
		{cliPath, "cli_mod", []Context{ContextCLI}},
		{adminPath, "admin_mod", []Context{ContextAdmin}},
		{testPath, "test_mod", []Context{ContextTesting}},
		{plainPath, "plain_mod", nil},
	}
	for _, tc := range cases {
		module := &ModuleDescriptor{Name: tc.name, Path: tc.path}
		assert.Equal(t, tc.want, analyzer.AnalyzeModule(module), tc.name)
	}
}

func TestAnalyzeModuleMultipleContexts(t *testing.T) {
	root := t.TempDir()
	analyzer := NewContextAnalyzer(&testLogger{})

	path := writeModule(t, root, "everything", manifestJSON("everything"))
	addPresentation(t, path, "routes", "api.json")
	addPresentation(t, path, "routes", "web.json")
	addPresentation(t, path, "console", "commands.json")

	contexts := analyzer.AnalyzeModule(&ModuleDescriptor{Name: "everything", Path: path})
	assert.Equal(t, []Context{ContextAPI, ContextWeb, ContextCLI}, contexts)
}

func TestContextMapClosesOverDependencies(t *testing.T) {
	root := t.TempDir()
	analyzer := NewContextAnalyzer(&testLogger{})

	apiPath := writeModule(t, root, "billing", manifestJSON("billing", "accounts"))
	addPresentation(t, apiPath, "routes", "api.json")
	depPath := writeModule(t, root, "accounts", manifestJSON("accounts", "core"))
	corePath := writeModule(t, root, "core", manifestJSON("core"))

	modules := map[string]*ModuleDescriptor{
		"billing":  {Name: "billing", Path: apiPath, Dependencies: []string{"accounts"}},
		"accounts": {Name: "accounts", Path: depPath, Dependencies: []string{"core"}},
		"core":     {Name: "core", Path: corePath},
	}

	contextMap := analyzer.ContextMap(modules)
	assert.Equal(t, []string{"accounts", "billing", "core"}, contextMap[ContextAPI],
		"dependency chain is pulled into the context")
	assert.Empty(t, contextMap[ContextWeb])
	assert.Empty(t, contextMap[ContextCLI])
}

func TestGetLoadingStrategyPartition(t *testing.T) {
	root := t.TempDir()
	analyzer := NewContextAnalyzer(&testLogger{})

	apiPath := writeModule(t, root, "shop", manifestJSON("shop", "core"))
	addPresentation(t, apiPath, "routes", "api.json")
	corePath := writeModule(t, root, "core", manifestJSON("core"))
	searchPath := writeModule(t, root, "search", manifestJSON("search"))
	reportsPath := writeModule(t, root, "reports", manifestJSON("reports"))

	modules := map[string]*ModuleDescriptor{
		"shop": {
			Name:                 "shop",
			Path:                 apiPath,
			Dependencies:         []string{"core"},
			OptionalDependencies: []string{"search", "missing_opt"},
		},
		"core":    {Name: "core", Path: corePath},
		"search":  {Name: "search", Path: searchPath},
		"reports": {Name: "reports", Path: reportsPath},
	}

	strategy := analyzer.GetLoadingStrategy(ContextAPI, modules)
	assert.Equal(t, []string{"core", "shop"}, strategy.EagerModules)
	assert.Equal(t, []string{"search"}, strategy.LazyModules,
		"only optional dependencies actually present become lazy")
	assert.Equal(t, []string{"reports"}, strategy.DeferredModules)
}

func TestGetMemoryOptimizedConfig(t *testing.T) {
	analyzer := NewContextAnalyzer(&testLogger{})

	assert.Equal(t, MemoryConfig{ParallelLoading: true, ChunkSize: 10}, analyzer.GetMemoryOptimizedConfig(ContextAPI))
	assert.Equal(t, MemoryConfig{ParallelLoading: true, ChunkSize: 8}, analyzer.GetMemoryOptimizedConfig(ContextWeb))
	assert.Equal(t, MemoryConfig{ParallelLoading: true, ChunkSize: 6}, analyzer.GetMemoryOptimizedConfig(ContextAdmin))
	assert.Equal(t, MemoryConfig{ParallelLoading: false, ChunkSize: 5}, analyzer.GetMemoryOptimizedConfig(ContextCLI))
	assert.Equal(t, MemoryConfig{ParallelLoading: false, ChunkSize: 3}, analyzer.GetMemoryOptimizedConfig(ContextTesting))
	assert.Equal(t, MemoryConfig{ParallelLoading: true, ChunkSize: 5}, analyzer.GetMemoryOptimizedConfig(Context("worker")))
}
