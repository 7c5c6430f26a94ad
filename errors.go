package modforge

import (
	"errors"
	"fmt"
	"strings"
)

// Core errors
var (
	// Discovery and manifest errors
	ErrModuleNotFound        = errors.New("module not found")
	ErrManifestNameMissing   = errors.New("manifest is missing required field 'name'")
	ErrManifestInvalidJSON   = errors.New("manifest is not valid JSON")
	ErrManifestFieldType     = errors.New("manifest field has wrong type")
	ErrManifestSelfDependent = errors.New("module declares itself as a dependency")
	ErrManifestSelfConflict  = errors.New("module declares itself as a conflict")

	// Dependency resolution errors
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrDependencyMissing  = errors.New("missing dependencies")
	ErrConflictingModule  = errors.New("conflicting module is enabled")

	// Lifecycle state errors
	ErrAlreadyInstalled       = errors.New("module already installed")
	ErrNotInstalled           = errors.New("module is not installed")
	ErrNotEnabled             = errors.New("module is not enabled")
	ErrHasEnabledDependents   = errors.New("module has enabled dependents")
	ErrHasInstalledDependents = errors.New("module has installed dependents")

	// Compilation errors
	ErrNotCompiled     = errors.New("no compiled artifact present")
	ErrArtifactInvalid = errors.New("compiled artifact failed validation")
	ErrArtifactWrite   = errors.New("failed to write compiled artifact")

	// Cache errors
	ErrCacheFull = errors.New("cache is full")
)

// DependencyError reports a dependency problem for a specific module:
// either a list of declared dependencies that were not discovered, or a
// dependency cycle. Exactly one of Missing or Cycle is populated.
type DependencyError struct {
	Module  string
	Missing []string
	Cycle   []string
}

func (e *DependencyError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("circular dependency detected involving module '%s': %s",
			e.Module, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("module '%s' has missing dependencies: %s",
		e.Module, strings.Join(e.Missing, ", "))
}

func (e *DependencyError) Unwrap() error {
	if len(e.Cycle) > 0 {
		return ErrCircularDependency
	}
	return ErrDependencyMissing
}

// StateConflictError reports a lifecycle operation that would violate the
// state machine, naming the modules blocking it so operators can act.
type StateConflictError struct {
	Module    string
	Operation string
	Blocking  []string
	Reason    error
}

func (e *StateConflictError) Error() string {
	if len(e.Blocking) > 0 {
		return fmt.Sprintf("cannot %s module '%s': %v: %s",
			e.Operation, e.Module, e.Reason, strings.Join(e.Blocking, ", "))
	}
	return fmt.Sprintf("cannot %s module '%s': %v", e.Operation, e.Module, e.Reason)
}

func (e *StateConflictError) Unwrap() error {
	return e.Reason
}
