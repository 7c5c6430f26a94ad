package modforge

import (
	"sort"
)

// Resolver implements dependency validation, cycle detection and install
// ordering over a set of module descriptors. It is stateless; every method
// operates on the descriptor set passed in.
type Resolver struct {
	logger Logger
}

// NewResolver creates a dependency resolver.
func NewResolver(logger Logger) *Resolver {
	return &Resolver{logger: logger}
}

// ValidateDependencies returns the declared hard dependencies of module
// that are not present in available, preserving declaration order.
func (r *Resolver) ValidateDependencies(module *ModuleDescriptor, available map[string]*ModuleDescriptor) []string {
	var missing []string
	for _, dep := range module.Dependencies {
		if _, ok := available[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	return missing
}

// HasCircularDependency reports whether a dependency cycle is reachable
// from module. Traversal is depth-first with a currently-visiting set;
// revisiting a node on the active path means a cycle. Dependencies absent
// from available terminate their branch (missing, not circular).
func (r *Resolver) HasCircularDependency(module *ModuleDescriptor, available map[string]*ModuleDescriptor) bool {
	visiting := make(map[string]bool)
	done := make(map[string]bool)

	var visit func(name string) bool
	visit = func(name string) bool {
		if visiting[name] {
			return true
		}
		if done[name] {
			return false
		}
		descriptor, ok := available[name]
		if !ok {
			return false
		}

		visiting[name] = true
		for _, dep := range descriptor.Dependencies {
			if visit(dep) {
				return true
			}
		}
		visiting[name] = false
		done[name] = true
		return false
	}

	return visit(module.Name)
}

// InstallOrder computes a total installation order over modules via
// depth-first topological sort: every module appears exactly once, after
// all of its dependencies. Node iteration is lexicographic, so the order is
// deterministic for any input ordering and compiled caches stay
// reproducible.
//
// A missing dependency or a cycle aborts with a DependencyError; a partial
// or incorrect order is never returned.
func (r *Resolver) InstallOrder(modules map[string]*ModuleDescriptor) ([]string, error) {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []string
	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		if visiting[name] {
			return &DependencyError{Module: name, Cycle: cyclePath(path, name)}
		}
		if visited[name] {
			return nil
		}

		visiting[name] = true
		path = append(path, name)

		deps := append([]string(nil), modules[name].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := modules[dep]; !ok {
				return &DependencyError{Module: name, Missing: []string{dep}}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		visiting[name] = false
		path = path[:len(path)-1]
		visited[name] = true
		result = append(result, name)
		return nil
	}

	for _, name := range names {
		if !visited[name] {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}

	r.logger.Debug("Computed install order", "order", result)
	return result, nil
}

// CanRemove reports whether name has no enabled dependents in modules.
// Optional dependencies never block removal.
func (r *Resolver) CanRemove(name string, modules map[string]*ModuleDescriptor) bool {
	for _, module := range modules {
		if module.State == StateEnabled && module.DependsOn(name) {
			return false
		}
	}
	return true
}

// Dependents returns, sorted, every module in modules that declares name as
// a hard dependency, regardless of state.
func (r *Resolver) Dependents(name string, modules map[string]*ModuleDescriptor) []string {
	var dependents []string
	for _, module := range modules {
		if module.DependsOn(name) {
			dependents = append(dependents, module.Name)
		}
	}
	sort.Strings(dependents)
	return dependents
}

// EnabledDependents returns, sorted, the dependents of name whose state is
// Enabled.
func (r *Resolver) EnabledDependents(name string, modules map[string]*ModuleDescriptor) []string {
	var dependents []string
	for _, module := range modules {
		if module.State == StateEnabled && module.DependsOn(name) {
			dependents = append(dependents, module.Name)
		}
	}
	sort.Strings(dependents)
	return dependents
}

// InstalledDependents returns, sorted, the dependents of name whose state
// is Installed, Enabled or Disabled.
func (r *Resolver) InstalledDependents(name string, modules map[string]*ModuleDescriptor) []string {
	var dependents []string
	for _, module := range modules {
		if module.State != StateNotInstalled && module.DependsOn(name) {
			dependents = append(dependents, module.Name)
		}
	}
	sort.Strings(dependents)
	return dependents
}

// cyclePath trims the visiting path to the segment forming the cycle and
// closes it with the repeated node, e.g. [a b c b] -> [b c b].
func cyclePath(path []string, repeated string) []string {
	for i, name := range path {
		if name == repeated {
			cycle := append([]string(nil), path[i:]...)
			return append(cycle, repeated)
		}
	}
	return []string{repeated, repeated}
}
