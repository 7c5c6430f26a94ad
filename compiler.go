package modforge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CompileOptions tunes a compile run. Compile itself always performs a
// full rebuild; Force exists for callers that gate on IsCompilationNeeded
// and want to record that the gate was bypassed.
type CompileOptions struct {
	Force bool
}

// CompilationResult summarizes a compile run.
type CompilationResult struct {
	Success           bool   `json:"success"`
	ModulesCompiled   int    `json:"modules_compiled"`
	CompilationTimeMs int64  `json:"compilation_time_ms"`
	Error             string `json:"error,omitempty"`
}

// Compiler precomputes everything module activation needs at process start:
// the sorted dependency graph, wave partition, service-binding tables,
// route manifests and context maps, serialized as named artifact files
// under the storage directory.
//
// Compilation is idempotent and always full: every run regenerates all
// artifacts from current discovery state, never patching incrementally. A
// detected cycle aborts the whole compile before anything is written, so a
// partial artifact never replaces a valid one.
type Compiler struct {
	discovery *Discovery
	resolver  *Resolver
	analyzer  *ContextAnalyzer
	source    ModuleSource
	dir       string
	cache     CachePort
	subject   Subject
	logger    Logger
}

// NewCompiler creates a module compiler writing artifacts to dir. cache and
// subject may be nil.
func NewCompiler(discovery *Discovery, resolver *Resolver, analyzer *ContextAnalyzer,
	source ModuleSource, dir string, cache CachePort, subject Subject, logger Logger) *Compiler {
	return &Compiler{
		discovery: discovery,
		resolver:  resolver,
		analyzer:  analyzer,
		source:    source,
		dir:       dir,
		cache:     cache,
		subject:   subject,
		logger:    logger,
	}
}

// Compile runs the full pipeline: discover, build the graph, partition
// waves, extract bindings and routes, classify contexts, and persist the
// artifact files.
func (c *Compiler) Compile(ctx context.Context, options CompileOptions) CompilationResult {
	started := time.Now()
	notify(ctx, c.subject, c.logger, NewModuleEvent(EventTypeCompileStarted, "", nil))

	artifact, err := c.build(ctx)
	if err == nil {
		err = c.write(ctx, artifact)
	}
	if err != nil {
		c.logger.Error("Compilation failed", "error", err)
		notify(ctx, c.subject, c.logger, NewModuleEvent(EventTypeCompileFailed, "", map[string]any{
			"error": err.Error(),
		}))
		return CompilationResult{
			Success:           false,
			CompilationTimeMs: time.Since(started).Milliseconds(),
			Error:             err.Error(),
		}
	}

	count := len(artifact.Registry.Modules)
	c.logger.Info("Compilation completed",
		"modules", count,
		"waves", artifact.Graph.WaveCount(),
		"durationMs", time.Since(started).Milliseconds())
	notify(ctx, c.subject, c.logger, NewModuleEvent(EventTypeCompileCompleted, "", map[string]any{
		"modules": count,
	}))

	return CompilationResult{
		Success:           true,
		ModulesCompiled:   count,
		CompilationTimeMs: time.Since(started).Milliseconds(),
	}
}

func (c *Compiler) build(ctx context.Context) (*CompiledArtifact, error) {
	descriptors, err := c.discovery.Discover(ctx)
	if err != nil {
		return nil, err
	}
	modules := DescriptorSet(descriptors)

	graph, err := BuildGraph(c.resolver, modules)
	if err != nil {
		var depErr *DependencyError
		if errors.As(err, &depErr) {
			return nil, fmt.Errorf("compilation aborted: %w", err)
		}
		return nil, err
	}

	bindings := make(map[string][]ServiceBinding, len(modules))
	routes := make(map[string]*RouteManifest, len(modules))
	for name, module := range modules {
		moduleBindings, err := ExtractServiceBindings(module)
		if err != nil {
			return nil, err
		}
		bindings[name] = moduleBindings

		routeManifest, err := ExtractRouteManifest(module)
		if err != nil {
			return nil, err
		}
		routes[name] = routeManifest
	}

	return &CompiledArtifact{
		Registry: CompiledRegistryData{
			CompiledAt:  time.Now().UTC(),
			Version:     ArtifactVersion,
			ModuleCount: len(modules),
			Modules:     modules,
		},
		Graph:    graph,
		Bindings: bindings,
		Routes:   routes,
		Contexts: c.analyzer.ContextMap(modules),
	}, nil
}

// write persists every artifact file via temp file plus rename, then
// invalidates the reader's cache entry so the new artifact is picked up.
func (c *Compiler) write(ctx context.Context, artifact *CompiledArtifact) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}

	files := map[string]any{
		CompiledRegistryFile: artifact.Registry,
		CompiledGraphFile:    artifact.Graph,
		CompiledBindingsFile: artifact.Bindings,
		CompiledRoutesFile:   artifact.Routes,
		CompiledContextsFile: artifact.Contexts,
	}

	// Marshal everything up front so an encoding failure leaves the
	// previous artifact untouched.
	encoded := make(map[string][]byte, len(files))
	for name, value := range files {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("%w: encoding %s: %v", ErrArtifactWrite, name, err)
		}
		encoded[name] = data
	}

	// Stage every temp file before the first rename, so an I/O failure
	// can never leave a hybrid of old and new files behind.
	staged := make([]string, 0, len(encoded))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}
	for name, data := range encoded {
		tmp := filepath.Join(c.dir, name) + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			cleanup()
			return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
		}
		staged = append(staged, tmp)
	}
	for name := range encoded {
		path := filepath.Join(c.dir, name)
		if err := os.Rename(path+".tmp", path); err != nil {
			cleanup()
			return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
		}
	}

	if c.cache != nil {
		if err := c.cache.Delete(ctx, compiledCacheKey); err != nil {
			c.logger.Warn("Failed to invalidate compiled cache entry", "error", err)
		}
	}
	return nil
}

// IsCompilationNeeded reports whether no artifact exists yet or any
// module's manifest has been modified after the artifact's compile
// timestamp.
func (c *Compiler) IsCompilationNeeded(ctx context.Context) (bool, error) {
	registry, err := c.readRegistryData()
	if err != nil {
		if errors.Is(err, ErrNotCompiled) {
			return true, nil
		}
		return true, err
	}

	candidates, err := c.source.List(ctx)
	if err != nil {
		return true, fmt.Errorf("staleness check failed: %w", err)
	}
	if len(candidates) != registry.ModuleCount {
		return true, nil
	}
	for _, candidate := range candidates {
		modTime, err := c.source.ManifestModTime(ctx, candidate.Name)
		if err != nil {
			return true, nil
		}
		if modTime.After(registry.CompiledAt) {
			return true, nil
		}
	}
	return false, nil
}

// ValidateCompiledFiles performs a structural sanity check over the
// on-disk artifact: every file present and parseable, required keys set,
// declared module count matching the module table.
func (c *Compiler) ValidateCompiledFiles() bool {
	artifact, err := readArtifact(c.dir)
	if err != nil {
		return false
	}
	return artifact.Valid()
}

// ClearCompiledCache deletes every generated artifact file and the cached
// reader entry, forcing the next access back to live discovery.
func (c *Compiler) ClearCompiledCache(ctx context.Context) bool {
	cleared := true
	for _, name := range CompiledArtifactFiles {
		err := os.Remove(filepath.Join(c.dir, name))
		if err != nil && !os.IsNotExist(err) {
			c.logger.Error("Failed to remove artifact file", "file", name, "error", err)
			cleared = false
		}
	}
	if c.cache != nil {
		if err := c.cache.Delete(ctx, compiledCacheKey); err != nil {
			c.logger.Warn("Failed to invalidate compiled cache entry", "error", err)
		}
	}
	return cleared
}

func (c *Compiler) readRegistryData() (*CompiledRegistryData, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, CompiledRegistryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotCompiled
		}
		return nil, fmt.Errorf("failed to read compiled registry: %w", err)
	}
	var registry CompiledRegistryData
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactInvalid, err)
	}
	return &registry, nil
}

// readArtifact loads every artifact file from dir into memory.
func readArtifact(dir string) (*CompiledArtifact, error) {
	artifact := &CompiledArtifact{}
	targets := map[string]any{
		CompiledRegistryFile: &artifact.Registry,
		CompiledGraphFile:    &artifact.Graph,
		CompiledBindingsFile: &artifact.Bindings,
		CompiledRoutesFile:   &artifact.Routes,
		CompiledContextsFile: &artifact.Contexts,
	}
	for name, target := range targets {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotCompiled
			}
			return nil, fmt.Errorf("failed to read artifact file %s: %w", name, err)
		}
		if err := json.Unmarshal(data, target); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, name, err)
		}
	}
	return artifact, nil
}
