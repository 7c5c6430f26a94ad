package modforge

import "time"

// ArtifactVersion is the compiled artifact schema version. Readers reject
// artifacts written under a different schema.
const ArtifactVersion = "1"

// Compiled artifact file names under the storage directory. These are
// regenerated by every compile, never hand-edited.
const (
	CompiledRegistryFile = "compiled_registry.json"
	CompiledGraphFile    = "compiled_graph.json"
	CompiledBindingsFile = "compiled_bindings.json"
	CompiledRoutesFile   = "compiled_routes.json"
	CompiledContextsFile = "compiled_contexts.json"
)

// CompiledArtifactFiles lists every file a compile produces.
var CompiledArtifactFiles = []string{
	CompiledRegistryFile,
	CompiledGraphFile,
	CompiledBindingsFile,
	CompiledRoutesFile,
	CompiledContextsFile,
}

// CompiledRegistryData is the artifact's module table: descriptor data
// only, no live objects.
type CompiledRegistryData struct {
	CompiledAt  time.Time                    `json:"compiled_at"`
	Version     string                       `json:"version"`
	ModuleCount int                          `json:"module_count"`
	Modules     map[string]*ModuleDescriptor `json:"modules"`
}

// CompiledArtifact is the full in-memory form of a compile's output: the
// module table, the dependency graph with waves, the per-module binding and
// route tables, and the context maps.
type CompiledArtifact struct {
	Registry CompiledRegistryData        `json:"registry"`
	Graph    *DependencyGraph            `json:"graph"`
	Bindings map[string][]ServiceBinding `json:"bindings"`
	Routes   map[string]*RouteManifest   `json:"routes"`
	Contexts map[Context][]string        `json:"contexts"`
}

// Valid reports whether the artifact carries the minimum required keys: a
// compile timestamp, the current schema version and a module table whose
// declared count matches its size.
func (a *CompiledArtifact) Valid() bool {
	if a == nil || a.Registry.CompiledAt.IsZero() {
		return false
	}
	if a.Registry.Version != ArtifactVersion {
		return false
	}
	if a.Registry.Modules == nil || a.Registry.ModuleCount != len(a.Registry.Modules) {
		return false
	}
	return a.Graph != nil
}
