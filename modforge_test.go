package modforge

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testLogger collects log entries for assertions and keeps test output
// quiet.
type testLogger struct {
	mutex   sync.Mutex
	entries []string
}

func (l *testLogger) log(level, msg string, args ...any) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries = append(l.entries, fmt.Sprintf("%s: %s %v", level, msg, args))
}

func (l *testLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *testLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }
func (l *testLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *testLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args...) }

// writeModule creates a structurally valid module directory under root with
// the given manifest content.
func writeModule(t *testing.T, root, dir, manifest string) string {
	t.Helper()

	path := filepath.Join(root, dir)
	for _, layer := range LayerDirs {
		require.NoError(t, os.MkdirAll(filepath.Join(path, layer), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(path, ManifestFileName), []byte(manifest), 0o644))
	return path
}

// manifestJSON builds a minimal manifest declaring name and hard
// dependencies.
func manifestJSON(name string, deps ...string) string {
	manifest := fmt.Sprintf(`{"name": %q, "dependencies": [`, name)
	for i, dep := range deps {
		if i > 0 {
			manifest += ", "
		}
		manifest += fmt.Sprintf("%q", dep)
	}
	return manifest + "]}"
}

// descriptorSet builds a descriptor map from (name, deps...) tuples, all in
// the NotInstalled state.
func testDescriptors(specs map[string][]string) map[string]*ModuleDescriptor {
	modules := make(map[string]*ModuleDescriptor, len(specs))
	for name, deps := range specs {
		modules[name] = &ModuleDescriptor{
			Name:         name,
			Version:      DefaultVersion,
			Dependencies: deps,
		}
	}
	return modules
}

// newTestSystem wires a full system over temp directories with modules
// created by calling writeModule for each manifest.
func newTestSystem(t *testing.T, manifests map[string]string) *System {
	t.Helper()

	root := t.TempDir()
	for dir, manifest := range manifests {
		writeModule(t, root, dir, manifest)
	}

	cfg := NewConfig()
	cfg.ModulesRoot = root
	cfg.StorageDir = t.TempDir()
	return NewSystem(cfg, &testLogger{})
}
