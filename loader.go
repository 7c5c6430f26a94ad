package modforge

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// LoadingResult summarizes a loader run. A run with individual module
// failures is still successful overall; a single broken module must not
// prevent the rest of the application from starting.
type LoadingResult struct {
	Success       bool     `json:"success"`
	ModulesLoaded int      `json:"modules_loaded"`
	Failed        []string `json:"failed,omitempty"`
	LoadingTimeMs int64    `json:"loading_time_ms"`
	MemoryUsage   uint64   `json:"memory_usage"`
}

// ServiceContainer is the binding registry mutated by module activation.
// Within a wave concurrent writers target disjoint keys by the graph
// invariant, but that holds only for correct manifests, so writes are
// mutex-guarded regardless.
type ServiceContainer struct {
	bindings map[string]ServiceBinding
	owners   map[string]string
	mutex    sync.RWMutex
}

// NewServiceContainer creates an empty binding registry.
func NewServiceContainer() *ServiceContainer {
	return &ServiceContainer{
		bindings: make(map[string]ServiceBinding),
		owners:   make(map[string]string),
	}
}

// Register records a binding on behalf of module. A later registration for
// the same abstract name wins, mirroring container override semantics.
func (c *ServiceContainer) Register(module string, binding ServiceBinding) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.bindings[binding.Abstract] = binding
	c.owners[binding.Abstract] = module
}

// Resolve returns the binding registered under abstract.
func (c *ServiceContainer) Resolve(abstract string) (ServiceBinding, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	binding, ok := c.bindings[abstract]
	return binding, ok
}

// Owner returns the module that registered abstract.
func (c *ServiceContainer) Owner(abstract string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	owner, ok := c.owners[abstract]
	return owner, ok
}

// Len returns the number of registered bindings.
func (c *ServiceContainer) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.bindings)
}

// HandlerResolver maps a compiled handler identifier to an http.Handler.
// The host application supplies this; handler identifiers are opaque to the
// loader.
type HandlerResolver func(handlerID string) http.Handler

// RouteRegistrar mounts compiled route manifests onto a chi router. Mounts
// are mutex-guarded since same-wave modules register concurrently.
type RouteRegistrar struct {
	router  chi.Router
	resolve HandlerResolver
	mutex   sync.Mutex
	count   int
}

// NewRouteRegistrar creates a registrar over router. resolve may be nil,
// in which case unresolved handlers get a 501 placeholder.
func NewRouteRegistrar(router chi.Router, resolve HandlerResolver) *RouteRegistrar {
	return &RouteRegistrar{router: router, resolve: resolve}
}

// Mount registers every route in manifest under the module's path prefix.
func (r *RouteRegistrar) Mount(module string, manifest *RouteManifest) error {
	if manifest == nil || manifest.Empty() {
		return nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for prefix, routes := range map[string][]RouteDefinition{
		"/api":   manifest.API,
		"":       manifest.Web,
		"/admin": manifest.Admin,
	} {
		for _, route := range routes {
			handler := r.handlerFor(route.Handler)
			pattern := prefix + route.Path
			method := strings.ToUpper(route.Method)
			r.router.Method(method, pattern, handler)
			r.count++
		}
	}
	return nil
}

// RouteCount returns the number of mounted routes.
func (r *RouteRegistrar) RouteCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.count
}

func (r *RouteRegistrar) handlerFor(handlerID string) http.Handler {
	if r.resolve != nil {
		if handler := r.resolve(handlerID); handler != nil {
			return handler
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, fmt.Sprintf("handler %s not implemented", handlerID), http.StatusNotImplemented)
	})
}

// ModuleActivator performs one module's activation: binding registration,
// provider setup, route mounting. The default activator registers compiled
// bindings into the container and mounts compiled routes; tests and hosts
// with richer providers can replace it.
type ModuleActivator func(ctx context.Context, module *ModuleDescriptor, bindings []ServiceBinding, routes *RouteManifest) error

// ParallelLoader activates modules from the compiled registry in
// dependency-respecting order. Modules within a wave carry no ordering
// constraint relative to each other and may activate concurrently; waves
// activate strictly in increasing order, each wave completing before the
// next begins.
type ParallelLoader struct {
	registry  *CompiledRegistry
	analyzer  *ContextAnalyzer
	container *ServiceContainer
	routes    *RouteRegistrar
	subject   Subject
	logger    Logger

	activate  ModuleActivator
	allStates bool

	mutex  sync.Mutex
	loaded map[string]bool
}

// LoaderOption configures a ParallelLoader.
type LoaderOption func(*ParallelLoader)

// WithActivator replaces the default activation step.
func WithActivator(activate ModuleActivator) LoaderOption {
	return func(l *ParallelLoader) { l.activate = activate }
}

// WithRouteRegistrar attaches a route registrar for compiled route
// mounting.
func WithRouteRegistrar(routes *RouteRegistrar) LoaderOption {
	return func(l *ParallelLoader) { l.routes = routes }
}

// WithAllStates loads every compiled module regardless of lifecycle state,
// instead of only enabled ones.
func WithAllStates() LoaderOption {
	return func(l *ParallelLoader) { l.allStates = true }
}

// WithLoaderSubject attaches an event subject for load notifications.
func WithLoaderSubject(subject Subject) LoaderOption {
	return func(l *ParallelLoader) { l.subject = subject }
}

// NewParallelLoader creates a loader over registry.
func NewParallelLoader(registry *CompiledRegistry, analyzer *ContextAnalyzer, container *ServiceContainer, logger Logger, opts ...LoaderOption) *ParallelLoader {
	l := &ParallelLoader{
		registry:  registry,
		analyzer:  analyzer,
		container: container,
		logger:    logger,
		loaded:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.activate == nil {
		l.activate = l.defaultActivate
	}
	return l
}

// LoadModules activates every loadable module sequentially in install
// order.
func (l *ParallelLoader) LoadModules(ctx context.Context) (*LoadingResult, error) {
	artifact, err := l.registry.Artifact(ctx)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		l.logger.Warn("No compiled artifact, nothing to load")
		return &LoadingResult{Success: true}, nil
	}

	started := time.Now()
	result := &LoadingResult{Success: true}
	for _, name := range artifact.Graph.Order {
		if err := ctx.Err(); err != nil {
			l.logger.Warn("Loading deadline reached, remaining modules deferred", "after", name)
			break
		}
		l.loadOne(ctx, artifact, name, result)
	}
	l.finish(result, started)
	return result, nil
}

// LoadModulesByWaves activates modules wave by wave, with modules inside a
// wave running on their own goroutines. No module begins activation until
// every module in a lower wave has completed or definitively failed.
func (l *ParallelLoader) LoadModulesByWaves(ctx context.Context) (*LoadingResult, error) {
	artifact, err := l.registry.Artifact(ctx)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		l.logger.Warn("No compiled artifact, nothing to load")
		return &LoadingResult{Success: true}, nil
	}
	return l.loadWaves(ctx, artifact, artifact.Graph.Waves), nil
}

// LoadModulesByContext activates only the compiled module set for one
// runtime context, wave-respecting within that subset.
func (l *ParallelLoader) LoadModulesByContext(ctx context.Context, contextName Context) (*LoadingResult, error) {
	artifact, err := l.registry.Artifact(ctx)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		l.logger.Warn("No compiled artifact, nothing to load")
		return &LoadingResult{Success: true}, nil
	}

	subset := make(map[string]bool)
	for _, name := range artifact.Contexts[contextName] {
		subset[name] = true
	}

	waves := make([][]string, 0, len(artifact.Graph.Waves))
	for _, wave := range artifact.Graph.Waves {
		var filtered []string
		for _, name := range wave {
			if subset[name] {
				filtered = append(filtered, name)
			}
		}
		if len(filtered) > 0 {
			waves = append(waves, filtered)
		}
	}

	config := l.analyzer.GetMemoryOptimizedConfig(contextName)
	if !config.ParallelLoading {
		started := time.Now()
		result := &LoadingResult{Success: true}
		for _, wave := range waves {
			for _, name := range wave {
				if err := ctx.Err(); err != nil {
					l.logger.Warn("Loading deadline reached, remaining modules deferred")
					l.finish(result, started)
					return result, nil
				}
				l.loadOne(ctx, artifact, name, result)
			}
		}
		l.finish(result, started)
		return result, nil
	}
	return l.loadWaves(ctx, artifact, waves), nil
}

// IsLoaded reports whether name has been activated in this process.
func (l *ParallelLoader) IsLoaded(name string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.loaded[name]
}

// LoadedModules returns the sorted names of modules activated so far.
func (l *ParallelLoader) LoadedModules() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	names := make([]string, 0, len(l.loaded))
	for name := range l.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *ParallelLoader) loadWaves(ctx context.Context, artifact *CompiledArtifact, waves [][]string) *LoadingResult {
	started := time.Now()
	result := &LoadingResult{Success: true}

	for waveIndex, wave := range waves {
		if err := ctx.Err(); err != nil {
			l.logger.Warn("Loading deadline reached, remaining waves deferred", "wave", waveIndex)
			break
		}

		var wg sync.WaitGroup
		for _, name := range wave {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				l.loadOne(ctx, artifact, name, result)
			}(name)
		}
		// Wave barrier: later waves may depend on bindings this wave
		// registered.
		wg.Wait()

		l.logger.Debug("Wave completed", "wave", waveIndex, "modules", len(wave))
	}

	l.finish(result, started)
	return result
}

// loadOne activates a single module. Failures are contained: logged,
// recorded on the result, and never allowed to abort the batch.
func (l *ParallelLoader) loadOne(ctx context.Context, artifact *CompiledArtifact, name string, result *LoadingResult) {
	module, ok := artifact.Registry.Modules[name]
	if !ok {
		return
	}
	if !l.allStates && module.State != StateEnabled {
		l.logger.Debug("Skipping module not enabled", "module", name, "state", module.State.String())
		return
	}

	// Reserve the name before activating so overlapping runs never
	// activate the same module twice; the reservation is dropped on
	// failure so a later run may retry.
	l.mutex.Lock()
	if l.loaded[name] {
		l.mutex.Unlock()
		return
	}
	l.loaded[name] = true
	l.mutex.Unlock()

	err := l.activate(ctx, module, artifact.Bindings[name], artifact.Routes[name])
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if err != nil {
		delete(l.loaded, name)
		l.logger.Warn("Module activation failed, continuing without it", "module", name, "error", err)
		result.Failed = append(result.Failed, name)
		notify(ctx, l.subject, l.logger, NewModuleEvent(EventTypeModuleLoadFailed, name, map[string]any{
			"error": err.Error(),
		}))
		return
	}

	result.ModulesLoaded++
	notify(ctx, l.subject, l.logger, NewModuleEvent(EventTypeModuleLoaded, name, nil))
}

func (l *ParallelLoader) defaultActivate(_ context.Context, module *ModuleDescriptor, bindings []ServiceBinding, routes *RouteManifest) error {
	for _, binding := range bindings {
		l.container.Register(module.Name, binding)
	}
	if l.routes != nil {
		if err := l.routes.Mount(module.Name, routes); err != nil {
			return fmt.Errorf("failed to mount routes for '%s': %w", module.Name, err)
		}
	}
	return nil
}

func (l *ParallelLoader) finish(result *LoadingResult, started time.Time) {
	sort.Strings(result.Failed)
	result.LoadingTimeMs = time.Since(started).Milliseconds()

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	result.MemoryUsage = stats.HeapAlloc
}
