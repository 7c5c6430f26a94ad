package modforge

import (
	"encoding/json"
	"fmt"
)

// ManifestFileName is the file every module must carry at its root.
const ManifestFileName = "module.json"

// DefaultVersion is assumed when a manifest omits the version field.
const DefaultVersion = "1.0.0"

// Manifest is the declarative metadata file describing a module. Only Name
// is required; every other field has a defined default.
type Manifest struct {
	Name                 string   `json:"name"`
	DisplayName          string   `json:"display_name"`
	Description          string   `json:"description"`
	Version              string   `json:"version"`
	Author               string   `json:"author"`
	Dependencies         []string `json:"dependencies"`
	OptionalDependencies []string `json:"optional_dependencies"`
	Conflicts            []string `json:"conflicts"`
	Provides             []string `json:"provides"`
}

// ParseManifest decodes and validates raw manifest bytes. Malformed JSON,
// a missing name, wrong field types and self-referential dependencies or
// conflicts all produce descriptive validation errors; install and enable
// depend on manifest correctness, so these are surfaced rather than skipped.
func ParseManifest(data []byte) (*Manifest, error) {
	// Decode into a generic map first so field-type problems can be
	// reported per field instead of as an opaque unmarshal error.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalidJSON, err)
	}

	m := &Manifest{
		Version:              DefaultVersion,
		Dependencies:         []string{},
		OptionalDependencies: []string{},
		Conflicts:            []string{},
		Provides:             []string{},
	}

	for _, field := range []struct {
		key    string
		target *string
	}{
		{"name", &m.Name},
		{"display_name", &m.DisplayName},
		{"description", &m.Description},
		{"version", &m.Version},
		{"author", &m.Author},
	} {
		value, ok := raw[field.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, field.target); err != nil {
			return nil, fmt.Errorf("%w: '%s' must be a string", ErrManifestFieldType, field.key)
		}
	}

	for _, field := range []struct {
		key    string
		target *[]string
	}{
		{"dependencies", &m.Dependencies},
		{"optional_dependencies", &m.OptionalDependencies},
		{"conflicts", &m.Conflicts},
		{"provides", &m.Provides},
	} {
		value, ok := raw[field.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, field.target); err != nil {
			return nil, fmt.Errorf("%w: '%s' must be an array of strings", ErrManifestFieldType, field.key)
		}
	}

	if m.Name == "" {
		return nil, ErrManifestNameMissing
	}
	for _, dep := range m.Dependencies {
		if dep == m.Name {
			return nil, fmt.Errorf("%w: '%s'", ErrManifestSelfDependent, m.Name)
		}
	}
	for _, c := range m.Conflicts {
		if c == m.Name {
			return nil, fmt.Errorf("%w: '%s'", ErrManifestSelfConflict, m.Name)
		}
	}

	if m.DisplayName == "" {
		m.DisplayName = m.Name
	}

	return m, nil
}

// Descriptor builds a ModuleDescriptor from the manifest, the module's
// filesystem path and its current lifecycle state.
func (m *Manifest) Descriptor(path string, state ModuleState) *ModuleDescriptor {
	return &ModuleDescriptor{
		Name:                 m.Name,
		DisplayName:          m.DisplayName,
		Description:          m.Description,
		Version:              m.Version,
		Author:               m.Author,
		Dependencies:         append([]string(nil), m.Dependencies...),
		OptionalDependencies: append([]string(nil), m.OptionalDependencies...),
		Conflicts:            append([]string(nil), m.Conflicts...),
		Provides:             append([]string(nil), m.Provides...),
		Path:                 path,
		State:                state,
	}
}
