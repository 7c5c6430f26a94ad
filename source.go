package modforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LayerDirs are the subdirectories every module must contain, one per
// architectural layer. A candidate directory missing any of them is not a
// module.
var LayerDirs = []string{"domain", "application", "infrastructure", "presentation"}

// ModuleCandidate is a module-shaped directory found by a ModuleSource,
// before manifest validation.
type ModuleCandidate struct {
	// Name is the candidate's directory name. The manifest's name field
	// is authoritative; this is only used for logging.
	Name string

	// Path is the candidate's root.
	Path string

	// Manifest is the raw manifest content.
	Manifest []byte
}

// ModuleSource abstracts where modules come from. Discovery and compilation
// only ever see candidates, so the graph algorithms are decoupled from any
// particular storage medium; implementations exist over a real filesystem
// and over an in-memory map for tests.
type ModuleSource interface {
	// List returns every valid module candidate, sorted by name.
	List(ctx context.Context) ([]ModuleCandidate, error)

	// ManifestModTime returns the last modification time of the named
	// module's manifest. Used for compiled-artifact staleness checks.
	ManifestModTime(ctx context.Context, name string) (time.Time, error)
}

// FSModuleSource discovers modules in the immediate subdirectories of a
// configured root. A subdirectory is a valid candidate iff it contains a
// manifest file and all four layer directories; anything else is silently
// excluded, it simply isn't a module.
type FSModuleSource struct {
	root   string
	logger Logger
}

// NewFSModuleSource creates a filesystem-backed module source rooted at dir.
func NewFSModuleSource(dir string, logger Logger) *FSModuleSource {
	return &FSModuleSource{root: dir, logger: logger}
}

// Root returns the configured modules root.
func (s *FSModuleSource) Root() string {
	return s.root
}

func (s *FSModuleSource) List(ctx context.Context) ([]ModuleCandidate, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read modules root '%s': %w", s.root, err)
	}

	var candidates []ModuleCandidate
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("module listing cancelled: %w", err)
		}
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(s.root, entry.Name())
		if !s.isModuleDir(path) {
			s.logger.Debug("Skipping non-module directory", "path", path)
			continue
		}

		manifest, err := os.ReadFile(filepath.Join(path, ManifestFileName))
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest for '%s': %w", entry.Name(), err)
		}

		candidates = append(candidates, ModuleCandidate{
			Name:     entry.Name(),
			Path:     path,
			Manifest: manifest,
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	return candidates, nil
}

func (s *FSModuleSource) ManifestModTime(_ context.Context, name string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(s.root, name, ManifestFileName))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat manifest for '%s': %w", name, err)
	}
	return info.ModTime(), nil
}

func (s *FSModuleSource) isModuleDir(path string) bool {
	if _, err := os.Stat(filepath.Join(path, ManifestFileName)); err != nil {
		return false
	}
	for _, layer := range LayerDirs {
		info, err := os.Stat(filepath.Join(path, layer))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// MapModuleSource serves candidates from memory. Primarily a test double,
// but also usable for embedded/bundled module sets.
type MapModuleSource struct {
	manifests map[string][]byte
	modTimes  map[string]time.Time
}

// NewMapModuleSource creates an empty in-memory module source.
func NewMapModuleSource() *MapModuleSource {
	return &MapModuleSource{
		manifests: make(map[string][]byte),
		modTimes:  make(map[string]time.Time),
	}
}

// Add registers a module's raw manifest bytes under name.
func (s *MapModuleSource) Add(name string, manifest []byte) {
	s.manifests[name] = manifest
	s.modTimes[name] = time.Now()
}

// Touch updates a module's manifest modification time.
func (s *MapModuleSource) Touch(name string, t time.Time) {
	s.modTimes[name] = t
}

func (s *MapModuleSource) List(_ context.Context) ([]ModuleCandidate, error) {
	names := make([]string, 0, len(s.manifests))
	for name := range s.manifests {
		names = append(names, name)
	}
	sort.Strings(names)

	candidates := make([]ModuleCandidate, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, ModuleCandidate{
			Name:     name,
			Path:     "memory://" + name,
			Manifest: s.manifests[name],
		})
	}
	return candidates, nil
}

func (s *MapModuleSource) ManifestModTime(_ context.Context, name string) (time.Time, error) {
	t, ok := s.modTimes[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return t, nil
}
