package modforge

import (
	"context"
	"fmt"
)

// Discovery turns module-source candidates into validated descriptors with
// their current lifecycle state attached. Discovery never mutates registry
// state; it only reads the source and queries the state store.
type Discovery struct {
	source ModuleSource
	states *StateStore
	logger Logger
}

// NewDiscovery creates a discovery service over source, attaching states
// from states.
func NewDiscovery(source ModuleSource, states *StateStore, logger Logger) *Discovery {
	return &Discovery{source: source, states: states, logger: logger}
}

// Discover returns a descriptor for every valid module candidate, sorted by
// candidate name. A structurally invalid directory is not an error, but a
// malformed manifest is: install and enable depend on manifest correctness,
// so validation failures are surfaced rather than skipped.
func (d *Discovery) Discover(ctx context.Context) ([]*ModuleDescriptor, error) {
	candidates, err := d.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("module discovery failed: %w", err)
	}

	descriptors := make([]*ModuleDescriptor, 0, len(candidates))
	for _, candidate := range candidates {
		manifest, err := ParseManifest(candidate.Manifest)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest in '%s': %w", candidate.Name, err)
		}

		state := StateNotInstalled
		if d.states != nil {
			state, err = d.states.GetState(ctx, manifest.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to read state for '%s': %w", manifest.Name, err)
			}
		}

		descriptors = append(descriptors, manifest.Descriptor(candidate.Path, state))
		d.logger.Debug("Discovered module",
			"module", manifest.Name,
			"version", manifest.Version,
			"state", state.String(),
			"dependencies", len(manifest.Dependencies))
	}

	return descriptors, nil
}

// FindModule discovers and returns the named module, or false if no valid
// candidate carries that manifest name.
func (d *Discovery) FindModule(ctx context.Context, name string) (*ModuleDescriptor, bool, error) {
	descriptors, err := d.Discover(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, descriptor := range descriptors {
		if descriptor.Name == name {
			return descriptor, true, nil
		}
	}
	return nil, false, nil
}

// DescriptorSet indexes descriptors by name for the resolver and compiler.
func DescriptorSet(descriptors []*ModuleDescriptor) map[string]*ModuleDescriptor {
	set := make(map[string]*ModuleDescriptor, len(descriptors))
	for _, descriptor := range descriptors {
		set[descriptor.Name] = descriptor
	}
	return set
}
