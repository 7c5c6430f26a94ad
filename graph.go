package modforge

import (
	"sort"
)

// DependencyGraph is the derived adjacency view over a descriptor set,
// together with the total install order and the wave partition. Wave 0
// holds modules with no dependencies; wave k holds modules whose
// dependencies all lie in waves below k. Every module appears in exactly
// one wave.
type DependencyGraph struct {
	// Adjacency maps each module name to its hard dependencies.
	Adjacency map[string][]string `json:"adjacency"`

	// Order is the deterministic topological install order.
	Order []string `json:"order"`

	// Waves partitions Order into levels loadable in parallel.
	Waves [][]string `json:"waves"`

	// Levels maps each module name to its wave index.
	Levels map[string]int `json:"levels"`
}

// BuildGraph constructs the dependency graph for modules, including the
// install order and wave partition. Optional dependencies contribute an
// ordering edge only when the optional module is actually present, so a
// present optional loads before its consumer without ever being required.
func BuildGraph(resolver *Resolver, modules map[string]*ModuleDescriptor) (*DependencyGraph, error) {
	order, err := resolver.InstallOrder(modules)
	if err != nil {
		return nil, err
	}

	adjacency := make(map[string][]string, len(modules))
	for name, module := range modules {
		deps := append([]string(nil), module.Dependencies...)
		sort.Strings(deps)
		adjacency[name] = deps
	}

	levels := make(map[string]int, len(modules))
	visiting := make(map[string]bool)

	var level func(name string) int
	level = func(name string) int {
		if l, ok := levels[name]; ok {
			return l
		}
		// An optional edge can close a loop the resolver never checks,
		// since optionals don't constrain the install order. Breaking
		// the edge here keeps optionals non-blocking.
		if visiting[name] {
			return 0
		}
		visiting[name] = true
		l := 0
		for _, dep := range effectiveDeps(modules[name], modules) {
			if dl := level(dep) + 1; dl > l {
				l = dl
			}
		}
		visiting[name] = false
		levels[name] = l
		return l
	}
	for _, name := range order {
		level(name)
	}

	maxLevel := 0
	for _, level := range levels {
		if level > maxLevel {
			maxLevel = level
		}
	}

	waves := make([][]string, maxLevel+1)
	for _, name := range order {
		level := levels[name]
		waves[level] = append(waves[level], name)
	}
	for _, wave := range waves {
		sort.Strings(wave)
	}
	if len(modules) == 0 {
		waves = [][]string{}
	}

	return &DependencyGraph{
		Adjacency: adjacency,
		Order:     order,
		Waves:     waves,
		Levels:    levels,
	}, nil
}

// effectiveDeps returns the hard dependencies plus any optional
// dependencies present in the set, for level computation.
func effectiveDeps(module *ModuleDescriptor, modules map[string]*ModuleDescriptor) []string {
	deps := append([]string(nil), module.Dependencies...)
	for _, opt := range module.OptionalDependencies {
		if _, ok := modules[opt]; ok {
			deps = append(deps, opt)
		}
	}
	return deps
}

// Wave returns the modules in wave n, or nil when n is out of range.
func (g *DependencyGraph) Wave(n int) []string {
	if n < 0 || n >= len(g.Waves) {
		return nil
	}
	return g.Waves[n]
}

// WaveCount returns the number of waves in the partition.
func (g *DependencyGraph) WaveCount() int {
	return len(g.Waves)
}
