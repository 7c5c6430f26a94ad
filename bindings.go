package modforge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ServiceBinding maps an abstract service name to its concrete
// implementation identifier within a module.
type ServiceBinding struct {
	Abstract  string `json:"abstract"`
	Concrete  string `json:"concrete,omitempty"`
	Singleton bool   `json:"singleton,omitempty"`
}

// RouteDefinition is one declared route entry.
type RouteDefinition struct {
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	Handler    string   `json:"handler"`
	Middleware []string `json:"middleware,omitempty"`
}

// CommandDefinition is one declared console command.
type CommandDefinition struct {
	Name        string `json:"name"`
	Handler     string `json:"handler"`
	Description string `json:"description,omitempty"`
}

// RouteManifest is a module's complete declared route surface, keyed by
// presentation channel.
type RouteManifest struct {
	API      []RouteDefinition   `json:"api,omitempty"`
	Web      []RouteDefinition   `json:"web,omitempty"`
	Admin    []RouteDefinition   `json:"admin,omitempty"`
	Commands []CommandDefinition `json:"commands,omitempty"`
}

// Empty reports whether the manifest declares no routes or commands.
func (r *RouteManifest) Empty() bool {
	return len(r.API) == 0 && len(r.Web) == 0 && len(r.Admin) == 0 && len(r.Commands) == 0
}

// bindingsFile is the optional per-module declaration of concrete service
// bindings, relative to the module root.
var bindingsFile = filepath.Join("infrastructure", "bindings.json")

// ExtractServiceBindings reads a module's declared service bindings. The
// manifest's provides entries become bindings with no concrete
// implementation; infrastructure/bindings.json, when present, contributes
// concrete registrations. Extraction is purely declarative, the module's
// code is never executed.
func ExtractServiceBindings(module *ModuleDescriptor) ([]ServiceBinding, error) {
	var bindings []ServiceBinding
	for _, provided := range module.Provides {
		bindings = append(bindings, ServiceBinding{Abstract: provided})
	}

	path := filepath.Join(module.Path, bindingsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return bindings, nil
		}
		return nil, fmt.Errorf("failed to read bindings for '%s': %w", module.Name, err)
	}

	var declared []ServiceBinding
	if err := json.Unmarshal(data, &declared); err != nil {
		return nil, fmt.Errorf("invalid bindings declaration for '%s': %w", module.Name, err)
	}

	// Concrete declarations override the bare manifest entry of the same
	// abstract name.
	byAbstract := make(map[string]int, len(bindings))
	for i, binding := range bindings {
		byAbstract[binding.Abstract] = i
	}
	for _, binding := range declared {
		if i, ok := byAbstract[binding.Abstract]; ok {
			bindings[i] = binding
			continue
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

// ExtractRouteManifest reads a module's declared routes and console
// commands from the presentation layer's JSON declarations.
func ExtractRouteManifest(module *ModuleDescriptor) (*RouteManifest, error) {
	manifest := &RouteManifest{}

	for _, channel := range []struct {
		file   string
		target *[]RouteDefinition
	}{
		{filepath.Join("presentation", "routes", "api.json"), &manifest.API},
		{filepath.Join("presentation", "routes", "web.json"), &manifest.Web},
		{filepath.Join("presentation", "routes", "admin.json"), &manifest.Admin},
	} {
		data, err := os.ReadFile(filepath.Join(module.Path, channel.file))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read routes for '%s': %w", module.Name, err)
		}
		if err := json.Unmarshal(data, channel.target); err != nil {
			return nil, fmt.Errorf("invalid route declaration '%s' in '%s': %w", channel.file, module.Name, err)
		}
	}

	commandsPath := filepath.Join(module.Path, "presentation", "console", "commands.json")
	if data, err := os.ReadFile(commandsPath); err == nil {
		if err := json.Unmarshal(data, &manifest.Commands); err != nil {
			return nil, fmt.Errorf("invalid command declaration in '%s': %w", module.Name, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read commands for '%s': %w", module.Name, err)
	}

	return manifest, nil
}
