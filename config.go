package modforge

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// Config holds the manager's own settings. Values load from a YAML or TOML
// file, with MODFORGE_-prefixed environment variables overriding
// individual fields.
type Config struct {
	// ModulesRoot is the directory whose immediate subdirectories are
	// module candidates.
	ModulesRoot string `yaml:"modules_root" toml:"modules_root" env:"MODULES_ROOT"`

	// StorageDir holds the state registry and compiled artifact files.
	StorageDir string `yaml:"storage_dir" toml:"storage_dir" env:"STORAGE_DIR"`

	// CacheTTL bounds the compiled registry's fast-path cache entry.
	CacheTTL time.Duration `yaml:"cache_ttl" toml:"cache_ttl" env:"CACHE_TTL"`

	// CompileSchedule is the cron expression for scheduled staleness
	// checks. Empty disables scheduling.
	CompileSchedule string `yaml:"compile_schedule" toml:"compile_schedule" env:"COMPILE_SCHEDULE"`

	// WatchManifests enables the fsnotify manifest watcher.
	WatchManifests bool `yaml:"watch_manifests" toml:"watch_manifests" env:"WATCH_MANIFESTS"`

	// LoadDeadline caps how long startup loading may take before
	// remaining modules are left deferred. Zero means no deadline.
	LoadDeadline time.Duration `yaml:"load_deadline" toml:"load_deadline" env:"LOAD_DEADLINE"`
}

// envPrefix namespaces the environment override variables.
const envPrefix = "MODFORGE_"

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		ModulesRoot: "modules",
		StorageDir:  filepath.Join("storage", "modforge"),
		CacheTTL:    DefaultCompiledCacheTTL,
	}
}

// LoadConfig reads path into a defaulted Config, choosing the decoder by
// extension (.yaml/.yml or .toml), then applies environment overrides. An
// empty path skips the file and applies defaults plus environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format '%s'", filepath.Ext(path))
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides struct fields from MODFORGE_-prefixed environment
// variables named by each field's env tag, coercing strings to the field
// type.
func applyEnv(cfg *Config) error {
	value := reflect.ValueOf(cfg).Elem()
	structType := value.Type()

	for i := 0; i < structType.NumField(); i++ {
		tag := structType.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(envPrefix + tag)
		if !ok {
			continue
		}

		field := value.Field(i)

		// Durations arrive as strings like "5m"; cast has no notion of
		// time.Duration.
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid duration in %s%s: %w", envPrefix, tag, err)
			}
			field.Set(reflect.ValueOf(parsed))
			continue
		}

		converted, err := cast.FromType(raw, field.Type())
		if err != nil {
			return fmt.Errorf("cannot convert %s%s to %v: %w", envPrefix, tag, field.Type(), err)
		}
		field.Set(reflect.ValueOf(converted))
	}
	return nil
}
