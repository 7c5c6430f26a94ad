package modforge

import (
	"context"
	"fmt"
)

// System wires every component from a Config: filesystem source, state
// store, discovery, resolver, lifecycle manager, compiler, compiled
// registry and loader, sharing one cache and one observer registry. It is
// the composition root used by the CLI and by embedding hosts; components
// remain individually constructable for finer-grained wiring.
type System struct {
	Config    *Config
	Cache     *MemoryCache
	Source    *FSModuleSource
	States    *StateStore
	Discovery *Discovery
	Resolver  *Resolver
	Analyzer  *ContextAnalyzer
	Manager   *Manager
	Compiler  *Compiler
	Registry  *CompiledRegistry
	Loader    *ParallelLoader
	Container *ServiceContainer
	Observers *ObserverRegistry

	watcher   *ManifestWatcher
	scheduler *CompileScheduler
	logger    Logger
}

// NewSystem builds a fully wired system. logger may be nil to use the
// default slog logger.
func NewSystem(cfg *Config, logger Logger, opts ...LoaderOption) *System {
	if logger == nil {
		logger = NewSlogLogger(nil)
	}

	cache := NewMemoryCache()
	source := NewFSModuleSource(cfg.ModulesRoot, logger)
	states := NewStateStore(cfg.StorageDir, cache, logger)
	discovery := NewDiscovery(source, states, logger)
	resolver := NewResolver(logger)
	analyzer := NewContextAnalyzer(logger)
	observers := NewObserverRegistry(logger)
	manager := NewManager(discovery, resolver, states, observers, logger)
	compiler := NewCompiler(discovery, resolver, analyzer, source, cfg.StorageDir, cache, observers, logger)
	registry := NewCompiledRegistry(cfg.StorageDir, cache, logger)
	if cfg.CacheTTL > 0 {
		registry.SetCacheTTL(cfg.CacheTTL)
	}
	container := NewServiceContainer()
	loader := NewParallelLoader(registry, analyzer, container, logger,
		append([]LoaderOption{WithLoaderSubject(observers)}, opts...)...)

	return &System{
		Config:    cfg,
		Cache:     cache,
		Source:    source,
		States:    states,
		Discovery: discovery,
		Resolver:  resolver,
		Analyzer:  analyzer,
		Manager:   manager,
		Compiler:  compiler,
		Registry:  registry,
		Loader:    loader,
		Container: container,
		Observers: observers,
		logger:    logger,
	}
}

// Start brings up the background pieces configured on: cache cleanup, the
// manifest watcher and the compile scheduler.
func (s *System) Start(ctx context.Context) error {
	if err := s.Cache.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cache: %w", err)
	}

	if s.Config.WatchManifests {
		s.watcher = NewManifestWatcher(s.Config.ModulesRoot, s.Cache, nil, s.logger)
		if err := s.watcher.Start(ctx); err != nil {
			return err
		}
	}
	if s.Config.CompileSchedule != "" {
		s.scheduler = NewCompileScheduler(s.Compiler, s.Config.CompileSchedule, s.logger)
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts the background pieces down.
func (s *System) Stop(ctx context.Context) error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			return err
		}
	}
	return s.Cache.Close(ctx)
}

// LoadAtStartup compiles if needed and activates modules wave by wave,
// honoring the configured load deadline: past the deadline, remaining
// modules stay deferred rather than blocking startup.
func (s *System) LoadAtStartup(ctx context.Context) (*LoadingResult, error) {
	needed, err := s.Compiler.IsCompilationNeeded(ctx)
	if err != nil {
		return nil, err
	}
	if needed {
		result := s.Compiler.Compile(ctx, CompileOptions{})
		if !result.Success {
			return nil, fmt.Errorf("startup compilation failed: %s", result.Error)
		}
		if err := s.Registry.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	loadCtx := ctx
	if s.Config.LoadDeadline > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, s.Config.LoadDeadline)
		defer cancel()
	}
	return s.Loader.LoadModulesByWaves(loadCtx)
}
