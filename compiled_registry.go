package modforge

import (
	"context"
	"errors"
	"sync"
	"time"
)

const compiledCacheKey = "modforge.compiled"

// DefaultCompiledCacheTTL bounds the fast-path cache entry for the
// compiled artifact.
const DefaultCompiledCacheTTL = time.Hour

// CompiledRegistry is a read-only view over the compiled artifact with
// graceful degradation: reads try the cache first, then the artifact files,
// and when no artifact has ever been compiled every lookup returns empty
// results. Callers treat "no compiled data" as "fall back to live
// discovery", never as a fatal condition.
type CompiledRegistry struct {
	dir    string
	cache  CachePort
	ttl    time.Duration
	logger Logger
	mutex  sync.Mutex
}

// NewCompiledRegistry creates a reader over the artifact files in dir.
// cache may be nil to always read from disk.
func NewCompiledRegistry(dir string, cache CachePort, logger Logger) *CompiledRegistry {
	return &CompiledRegistry{dir: dir, cache: cache, ttl: DefaultCompiledCacheTTL, logger: logger}
}

// SetCacheTTL overrides the fast-path cache lifetime.
func (r *CompiledRegistry) SetCacheTTL(ttl time.Duration) {
	r.ttl = ttl
}

// Artifact returns the loaded artifact, or nil when nothing has been
// compiled yet.
func (r *CompiledRegistry) Artifact(ctx context.Context) (*CompiledArtifact, error) {
	return r.load(ctx)
}

// GetAllModules returns the compiled module table, empty when no artifact
// exists.
func (r *CompiledRegistry) GetAllModules(ctx context.Context) (map[string]*ModuleDescriptor, error) {
	artifact, err := r.load(ctx)
	if err != nil || artifact == nil {
		return map[string]*ModuleDescriptor{}, err
	}
	return artifact.Registry.Modules, nil
}

// GetModule returns the named module's compiled descriptor.
func (r *CompiledRegistry) GetModule(ctx context.Context, name string) (*ModuleDescriptor, bool, error) {
	modules, err := r.GetAllModules(ctx)
	if err != nil {
		return nil, false, err
	}
	module, ok := modules[name]
	return module, ok, nil
}

// GetModulesByContext returns the compiled module list for a runtime
// context.
func (r *CompiledRegistry) GetModulesByContext(ctx context.Context, contextName Context) ([]string, error) {
	artifact, err := r.load(ctx)
	if err != nil || artifact == nil {
		return nil, err
	}
	return artifact.Contexts[contextName], nil
}

// GetModulesByWave returns the modules in wave n.
func (r *CompiledRegistry) GetModulesByWave(ctx context.Context, n int) ([]string, error) {
	artifact, err := r.load(ctx)
	if err != nil || artifact == nil || artifact.Graph == nil {
		return nil, err
	}
	return artifact.Graph.Wave(n), nil
}

// GetDependencyGraph returns the compiled graph, nil when no artifact
// exists.
func (r *CompiledRegistry) GetDependencyGraph(ctx context.Context) (*DependencyGraph, error) {
	artifact, err := r.load(ctx)
	if err != nil || artifact == nil {
		return nil, err
	}
	return artifact.Graph, nil
}

// GetServiceBindings returns the compiled binding table for one module.
func (r *CompiledRegistry) GetServiceBindings(ctx context.Context, name string) ([]ServiceBinding, error) {
	artifact, err := r.load(ctx)
	if err != nil || artifact == nil {
		return nil, err
	}
	return artifact.Bindings[name], nil
}

// GetRouteManifest returns the compiled route manifest for one module.
func (r *CompiledRegistry) GetRouteManifest(ctx context.Context, name string) (*RouteManifest, error) {
	artifact, err := r.load(ctx)
	if err != nil || artifact == nil {
		return nil, err
	}
	return artifact.Routes[name], nil
}

// IsValid reports whether an artifact is present and carries the minimum
// required keys.
func (r *CompiledRegistry) IsValid(ctx context.Context) bool {
	artifact, err := r.load(ctx)
	return err == nil && artifact.Valid()
}

// Refresh atomically invalidates the cache entry and forces the next read
// to reload from the artifact files. This is the one strong-consistency
// operation between the file artifact and the fast cache.
func (r *CompiledRegistry) Refresh(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.cache != nil {
		if err := r.cache.Delete(ctx, compiledCacheKey); err != nil {
			return err
		}
	}
	_, err := r.loadLocked(ctx)
	return err
}

func (r *CompiledRegistry) load(ctx context.Context) (*CompiledArtifact, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.loadLocked(ctx)
}

func (r *CompiledRegistry) loadLocked(ctx context.Context) (*CompiledArtifact, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, compiledCacheKey); ok {
			if artifact, ok := cached.(*CompiledArtifact); ok {
				return artifact, nil
			}
		}
	}

	artifact, err := readArtifact(r.dir)
	if err != nil {
		if errors.Is(err, ErrNotCompiled) {
			r.logger.Debug("No compiled artifact present, returning empty results")
			return nil, nil
		}
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, compiledCacheKey, artifact, r.ttl); err != nil {
			r.logger.Warn("Failed to cache compiled artifact", "error", err)
		}
	}
	return artifact, nil
}
