package modforge

import "fmt"

// ModuleState represents a module's position in the lifecycle state machine.
// A healthy module ends up Enabled; NotInstalled is both the initial state
// and the state after removal.
type ModuleState int

const (
	// StateNotInstalled means the module has been discovered but never
	// installed, or has been removed.
	StateNotInstalled ModuleState = iota

	// StateInstalled means the module and its dependencies are installed
	// but the module has not been enabled yet.
	StateInstalled

	// StateEnabled means the module is active: its bindings, routes and
	// subscriptions participate in the running application.
	StateEnabled

	// StateDisabled means the module was enabled and has been switched
	// off without being removed.
	StateDisabled
)

var stateNames = map[ModuleState]string{
	StateNotInstalled: "not_installed",
	StateInstalled:    "installed",
	StateEnabled:      "enabled",
	StateDisabled:     "disabled",
}

func (s ModuleState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParseModuleState converts a persisted state name back to a ModuleState.
// Unknown names map to StateNotInstalled, matching the behavior for modules
// the registry has never seen.
func ParseModuleState(name string) ModuleState {
	for state, n := range stateNames {
		if n == name {
			return state
		}
	}
	return StateNotInstalled
}

// ModuleDescriptor is an immutable snapshot of a discovered module's
// identity and declared relationships. Descriptors are produced by
// discovery and never mutated afterwards; lifecycle state is attached at
// discovery time from the state registry.
type ModuleDescriptor struct {
	// Name is the unique identifier, also used as the namespace key for
	// compiled bindings and routes.
	Name string `json:"name"`

	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
	Author      string `json:"author,omitempty"`

	// Dependencies are module names this module requires to function.
	// Order is preserved from the manifest.
	Dependencies []string `json:"dependencies"`

	// OptionalDependencies are used when present but never block install
	// or enable.
	OptionalDependencies []string `json:"optional_dependencies"`

	// Conflicts are module names that must not be enabled at the same
	// time as this module.
	Conflicts []string `json:"conflicts"`

	// Provides lists services, contracts or events this module exposes
	// to other modules.
	Provides []string `json:"provides"`

	// Path is the filesystem root of the module's source tree.
	Path string `json:"path"`

	// State is the lifecycle state at the time of discovery.
	State ModuleState `json:"state"`
}

// DependsOn reports whether the descriptor declares name as a hard
// dependency.
func (d *ModuleDescriptor) DependsOn(name string) bool {
	for _, dep := range d.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}

// ConflictsWith reports whether the descriptor declares name as a conflict.
func (d *ModuleDescriptor) ConflictsWith(name string) bool {
	for _, c := range d.Conflicts {
		if c == name {
			return true
		}
	}
	return false
}
