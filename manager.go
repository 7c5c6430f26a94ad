package modforge

import (
	"context"
	"fmt"
)

// Manager exposes the lifecycle operations consumed by the CLI and HTTP
// bootstrap layers: install, enable, disable, remove and the query surface.
// Transitions are guarded by the state machine, recursive over hard
// dependencies, and announced as CloudEvents on success.
type Manager struct {
	discovery *Discovery
	resolver  *Resolver
	states    *StateStore
	subject   Subject
	logger    Logger
}

// NewManager creates a lifecycle manager. subject may be nil when no event
// observers are wanted.
func NewManager(discovery *Discovery, resolver *Resolver, states *StateStore, subject Subject, logger Logger) *Manager {
	return &Manager{
		discovery: discovery,
		resolver:  resolver,
		states:    states,
		subject:   subject,
		logger:    logger,
	}
}

// Install transitions name from NotInstalled to Installed, installing its
// hard dependencies first, recursively. Missing dependencies and cycles
// abort with a DependencyError before any state changes.
func (m *Manager) Install(ctx context.Context, name string) error {
	modules, err := m.discoverSet(ctx)
	if err != nil {
		return err
	}

	module, ok := modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if module.State != StateNotInstalled {
		return &StateConflictError{Module: name, Operation: "install", Reason: ErrAlreadyInstalled}
	}

	if missing := m.resolver.ValidateDependencies(module, modules); len(missing) > 0 {
		return &DependencyError{Module: name, Missing: missing}
	}
	if m.resolver.HasCircularDependency(module, modules) {
		order := map[string]*ModuleDescriptor{}
		collectClosure(module, modules, order)
		if _, err := m.resolver.InstallOrder(order); err != nil {
			return err
		}
	}

	return m.installRecursive(ctx, module, modules, map[string]bool{})
}

func (m *Manager) installRecursive(ctx context.Context, module *ModuleDescriptor, modules map[string]*ModuleDescriptor, seen map[string]bool) error {
	if seen[module.Name] {
		return nil
	}
	seen[module.Name] = true

	for _, dep := range module.Dependencies {
		depModule, ok := modules[dep]
		if !ok {
			return &DependencyError{Module: module.Name, Missing: []string{dep}}
		}
		if depModule.State == StateNotInstalled {
			if err := m.installRecursive(ctx, depModule, modules, seen); err != nil {
				return err
			}
		}
	}

	if module.State != StateNotInstalled {
		return nil
	}
	if err := m.states.SetState(ctx, module.Name, StateInstalled); err != nil {
		return fmt.Errorf("failed to persist install of '%s': %w", module.Name, err)
	}
	module.State = StateInstalled

	m.logger.Info("Installed module", "module", module.Name, "version", module.Version)
	notify(ctx, m.subject, m.logger, NewModuleEvent(EventTypeModuleInstalled, module.Name, map[string]any{
		"version": module.Version,
	}))
	return nil
}

// Enable transitions name from Installed or Disabled to Enabled, enabling
// its hard dependencies first, recursively. Enabling an enabled module is a
// no-op. A declared conflict that is currently enabled blocks the
// transition.
func (m *Manager) Enable(ctx context.Context, name string) error {
	modules, err := m.discoverSet(ctx)
	if err != nil {
		return err
	}

	module, ok := modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}

	// Manifests can change after install, so a cycle may appear among
	// already-installed modules. Fail loudly instead of letting the seen
	// map silently break the recursion.
	if m.resolver.HasCircularDependency(module, modules) {
		order := map[string]*ModuleDescriptor{}
		collectClosure(module, modules, order)
		if _, err := m.resolver.InstallOrder(order); err != nil {
			return err
		}
	}
	return m.enableRecursive(ctx, module, modules, map[string]bool{})
}

func (m *Manager) enableRecursive(ctx context.Context, module *ModuleDescriptor, modules map[string]*ModuleDescriptor, seen map[string]bool) error {
	if module.State == StateEnabled || seen[module.Name] {
		return nil
	}
	seen[module.Name] = true

	if module.State == StateNotInstalled {
		return &StateConflictError{Module: module.Name, Operation: "enable", Reason: ErrNotInstalled}
	}

	for _, conflict := range module.Conflicts {
		if other, ok := modules[conflict]; ok && other.State == StateEnabled {
			return &StateConflictError{
				Module:    module.Name,
				Operation: "enable",
				Blocking:  []string{conflict},
				Reason:    ErrConflictingModule,
			}
		}
	}

	for _, dep := range module.Dependencies {
		depModule, ok := modules[dep]
		if !ok {
			return &DependencyError{Module: module.Name, Missing: []string{dep}}
		}
		if err := m.enableRecursive(ctx, depModule, modules, seen); err != nil {
			return err
		}
	}

	if err := m.states.SetState(ctx, module.Name, StateEnabled); err != nil {
		return fmt.Errorf("failed to persist enable of '%s': %w", module.Name, err)
	}
	module.State = StateEnabled

	m.logger.Info("Enabled module", "module", module.Name)
	notify(ctx, m.subject, m.logger, NewModuleEvent(EventTypeModuleEnabled, module.Name, nil))
	return nil
}

// Disable transitions name from Enabled to Disabled. The transition is
// blocked while any other enabled module depends on name.
func (m *Manager) Disable(ctx context.Context, name string) error {
	modules, err := m.discoverSet(ctx)
	if err != nil {
		return err
	}

	module, ok := modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if module.State != StateEnabled {
		return &StateConflictError{Module: name, Operation: "disable", Reason: ErrNotEnabled}
	}

	if dependents := m.resolver.EnabledDependents(name, modules); len(dependents) > 0 {
		return &StateConflictError{
			Module:    name,
			Operation: "disable",
			Blocking:  dependents,
			Reason:    ErrHasEnabledDependents,
		}
	}

	if err := m.states.SetState(ctx, name, StateDisabled); err != nil {
		return fmt.Errorf("failed to persist disable of '%s': %w", name, err)
	}

	m.logger.Info("Disabled module", "module", name)
	notify(ctx, m.subject, m.logger, NewModuleEvent(EventTypeModuleDisabled, name, nil))
	return nil
}

// Remove returns name to NotInstalled, disabling it first when enabled.
// Removal is blocked while any other installed module depends on name.
func (m *Manager) Remove(ctx context.Context, name string) error {
	modules, err := m.discoverSet(ctx)
	if err != nil {
		return err
	}

	module, ok := modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if module.State == StateNotInstalled {
		return &StateConflictError{Module: name, Operation: "remove", Reason: ErrNotInstalled}
	}

	if dependents := m.resolver.InstalledDependents(name, modules); len(dependents) > 0 {
		return &StateConflictError{
			Module:    name,
			Operation: "remove",
			Blocking:  dependents,
			Reason:    ErrHasInstalledDependents,
		}
	}

	if module.State == StateEnabled {
		if err := m.Disable(ctx, name); err != nil {
			return err
		}
	}

	if err := m.states.Remove(ctx, name); err != nil {
		return fmt.Errorf("failed to remove '%s' from state registry: %w", name, err)
	}

	m.logger.Info("Removed module", "module", name)
	notify(ctx, m.subject, m.logger, NewModuleEvent(EventTypeModuleRemoved, name, nil))
	return nil
}

// List returns descriptors for every discovered module.
func (m *Manager) List(ctx context.Context) ([]*ModuleDescriptor, error) {
	return m.discovery.Discover(ctx)
}

// IsInstalled reports whether name is in the Installed, Enabled or Disabled
// state.
func (m *Manager) IsInstalled(ctx context.Context, name string) (bool, error) {
	state, err := m.states.GetState(ctx, name)
	if err != nil {
		return false, err
	}
	return state != StateNotInstalled, nil
}

// IsEnabled reports whether name is Enabled.
func (m *Manager) IsEnabled(ctx context.Context, name string) (bool, error) {
	state, err := m.states.GetState(ctx, name)
	if err != nil {
		return false, err
	}
	return state == StateEnabled, nil
}

// GetInfo returns the descriptor for name.
func (m *Manager) GetInfo(ctx context.Context, name string) (*ModuleDescriptor, error) {
	module, found, err := m.discovery.FindModule(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return module, nil
}

// GetState returns the persisted lifecycle state for name.
func (m *Manager) GetState(ctx context.Context, name string) (ModuleState, error) {
	return m.states.GetState(ctx, name)
}

// GetDependencies returns the hard dependencies declared by name.
func (m *Manager) GetDependencies(ctx context.Context, name string) ([]string, error) {
	module, err := m.GetInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	return module.Dependencies, nil
}

// GetDependents returns every discovered module that declares name as a
// hard dependency, regardless of state.
func (m *Manager) GetDependents(ctx context.Context, name string) ([]string, error) {
	modules, err := m.discoverSet(ctx)
	if err != nil {
		return nil, err
	}
	return m.resolver.Dependents(name, modules), nil
}

func (m *Manager) discoverSet(ctx context.Context) (map[string]*ModuleDescriptor, error) {
	descriptors, err := m.discovery.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return DescriptorSet(descriptors), nil
}

// collectClosure gathers module and its transitive hard dependencies into
// out, so cycle reporting can run the sorter over just the affected
// subgraph.
func collectClosure(module *ModuleDescriptor, modules map[string]*ModuleDescriptor, out map[string]*ModuleDescriptor) {
	if _, ok := out[module.Name]; ok {
		return
	}
	out[module.Name] = module
	for _, dep := range module.Dependencies {
		if depModule, ok := modules[dep]; ok {
			collectClosure(depModule, modules, out)
		}
	}
}
