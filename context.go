package modforge

import (
	"os"
	"path/filepath"
	"sort"
)

// Context names a runtime situation that determines which modules must be
// active.
type Context string

const (
	ContextAPI     Context = "api"
	ContextWeb     Context = "web"
	ContextCLI     Context = "cli"
	ContextAdmin   Context = "admin"
	ContextTesting Context = "testing"
)

// AllContexts lists every known runtime context.
var AllContexts = []Context{ContextAPI, ContextWeb, ContextCLI, ContextAdmin, ContextTesting}

// LoadingStrategy partitions a context's modules by when they load: eager
// modules load synchronously at startup in dependency order, lazy modules
// load in parallel where the wave allows, deferred modules are registered
// for on-demand loading only.
type LoadingStrategy struct {
	EagerModules    []string `json:"eager_modules"`
	LazyModules     []string `json:"lazy_modules"`
	DeferredModules []string `json:"deferred_modules"`
}

// MemoryConfig tunes the loader for a context.
type MemoryConfig struct {
	ParallelLoading bool `json:"parallel_loading"`
	ChunkSize       int  `json:"chunk_size"`
}

// ContextAnalyzer classifies modules into runtime contexts from their
// directory structure alone; no module code is ever executed.
type ContextAnalyzer struct {
	logger Logger
}

// NewContextAnalyzer creates a context analyzer.
func NewContextAnalyzer(logger Logger) *ContextAnalyzer {
	return &ContextAnalyzer{logger: logger}
}

// AnalyzeModule returns the contexts module is relevant to, inferred from
// the presence of route files, console command declarations and test
// directories under the module root.
func (a *ContextAnalyzer) AnalyzeModule(module *ModuleDescriptor) []Context {
	var contexts []Context

	if fileExists(filepath.Join(module.Path, "presentation", "routes", "api.json")) {
		contexts = append(contexts, ContextAPI)
	}
	if fileExists(filepath.Join(module.Path, "presentation", "routes", "web.json")) {
		contexts = append(contexts, ContextWeb)
	}
	if fileExists(filepath.Join(module.Path, "presentation", "console", "commands.json")) ||
		dirExists(filepath.Join(module.Path, "presentation", "console")) {
		contexts = append(contexts, ContextCLI)
	}
	if fileExists(filepath.Join(module.Path, "presentation", "routes", "admin.json")) ||
		dirExists(filepath.Join(module.Path, "presentation", "admin")) {
		contexts = append(contexts, ContextAdmin)
	}
	if dirExists(filepath.Join(module.Path, "tests")) {
		contexts = append(contexts, ContextTesting)
	}

	a.logger.Debug("Analyzed module contexts", "module", module.Name, "contexts", contexts)
	return contexts
}

// ContextMap classifies every module in modules, returning context →
// sorted module names. Each context's set is transitively closed over hard
// dependencies: a module is never loaded without its dependencies present,
// even when the dependency wasn't classified into that context itself.
func (a *ContextAnalyzer) ContextMap(modules map[string]*ModuleDescriptor) map[Context][]string {
	classified := make(map[Context]map[string]bool)
	for _, context := range AllContexts {
		classified[context] = make(map[string]bool)
	}

	for _, module := range modules {
		for _, context := range a.AnalyzeModule(module) {
			classified[context][module.Name] = true
		}
	}

	result := make(map[Context][]string, len(classified))
	for context, members := range classified {
		closed := make(map[string]bool)
		for name := range members {
			closeOverDeps(name, modules, closed)
		}
		names := make([]string, 0, len(closed))
		for name := range closed {
			names = append(names, name)
		}
		sort.Strings(names)
		result[context] = names
	}
	return result
}

// GetLoadingStrategy partitions the modules relevant to currentContext.
// The context's transitively closed set loads eagerly; present optional
// dependencies of that set load lazily; everything else is deferred.
func (a *ContextAnalyzer) GetLoadingStrategy(currentContext Context, modules map[string]*ModuleDescriptor) *LoadingStrategy {
	contextMap := a.ContextMap(modules)

	eager := make(map[string]bool)
	for _, name := range contextMap[currentContext] {
		eager[name] = true
	}

	lazy := make(map[string]bool)
	for name := range eager {
		for _, opt := range modules[name].OptionalDependencies {
			if _, present := modules[opt]; present && !eager[opt] {
				lazy[opt] = true
			}
		}
	}

	strategy := &LoadingStrategy{
		EagerModules:    sortedKeys(eager),
		LazyModules:     sortedKeys(lazy),
		DeferredModules: nil,
	}
	for name := range modules {
		if !eager[name] && !lazy[name] {
			strategy.DeferredModules = append(strategy.DeferredModules, name)
		}
	}
	sort.Strings(strategy.DeferredModules)
	return strategy
}

// GetMemoryOptimizedConfig returns loader tuning for a context. CLI and
// test runs stay sequential with small chunks; request-serving contexts
// load in parallel.
func (a *ContextAnalyzer) GetMemoryOptimizedConfig(currentContext Context) MemoryConfig {
	switch currentContext {
	case ContextAPI:
		return MemoryConfig{ParallelLoading: true, ChunkSize: 10}
	case ContextWeb:
		return MemoryConfig{ParallelLoading: true, ChunkSize: 8}
	case ContextAdmin:
		return MemoryConfig{ParallelLoading: true, ChunkSize: 6}
	case ContextCLI:
		return MemoryConfig{ParallelLoading: false, ChunkSize: 5}
	case ContextTesting:
		return MemoryConfig{ParallelLoading: false, ChunkSize: 3}
	default:
		return MemoryConfig{ParallelLoading: true, ChunkSize: 5}
	}
}

func closeOverDeps(name string, modules map[string]*ModuleDescriptor, out map[string]bool) {
	if out[name] {
		return
	}
	module, ok := modules[name]
	if !ok {
		return
	}
	out[name] = true
	for _, dep := range module.Dependencies {
		closeOverDeps(dep, modules, out)
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
