package modforge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// StateFileName is the registry file holding persisted module states under
// the storage directory.
const StateFileName = "modules.json"

const stateCacheKey = "modforge.state"

// defaultStateCacheTTL bounds how long the cached copy of the registry file
// is trusted before re-reading from disk.
const defaultStateCacheTTL = time.Hour

// ModuleRecord is one module's persisted lifecycle entry.
type ModuleRecord struct {
	State       string    `json:"state"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StateStore persists module lifecycle states in a single registry file,
// with a cache in front of the file reads. The store is safe for concurrent
// use: every method holds the store mutex, since readers and writers share
// the cached record map. Writes go through to disk before the cache is
// updated.
type StateStore struct {
	dir    string
	cache  CachePort
	logger Logger
	mutex  sync.Mutex
}

// NewStateStore creates a state store writing to dir. The cache may be nil,
// in which case every read hits the file.
func NewStateStore(dir string, cache CachePort, logger Logger) *StateStore {
	return &StateStore{dir: dir, cache: cache, logger: logger}
}

// GetState returns the persisted state for name. Modules absent from the
// registry are NotInstalled.
func (s *StateStore) GetState(ctx context.Context, name string) (ModuleState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return StateNotInstalled, err
	}
	record, ok := records[name]
	if !ok {
		return StateNotInstalled, nil
	}
	return ParseModuleState(record.State), nil
}

// SetState records a state transition for name, stamping installed_at on
// the transition into Installed and updated_at on every write.
func (s *StateStore) SetState(ctx context.Context, name string, state ModuleState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record := records[name]
	if state == StateInstalled && record.InstalledAt.IsZero() {
		record.InstalledAt = now
	}
	record.State = state.String()
	record.UpdatedAt = now
	records[name] = record

	return s.persist(ctx, records)
}

// Remove deletes a module's registry entry entirely, returning it to the
// NotInstalled state.
func (s *StateStore) Remove(ctx context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	delete(records, name)
	return s.persist(ctx, records)
}

// All returns a copy of every persisted record keyed by module name.
func (s *StateStore) All(ctx context.Context) (map[string]ModuleRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ModuleRecord, len(records))
	for name, record := range records {
		out[name] = record
	}
	return out, nil
}

// Names returns the sorted names of all modules with a registry entry.
func (s *StateStore) Names(ctx context.Context) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// load returns the shared record map. Callers must hold s.mutex and must
// not let the map escape uncopied.
func (s *StateStore) load(ctx context.Context) (map[string]ModuleRecord, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, stateCacheKey); ok {
			if records, ok := cached.(map[string]ModuleRecord); ok {
				return records, nil
			}
		}
	}

	records := make(map[string]ModuleRecord)
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, fmt.Errorf("failed to read state registry: %w", err)
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("state registry is corrupted: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, stateCacheKey, records, defaultStateCacheTTL); err != nil {
			s.logger.Warn("Failed to cache state registry", "error", err)
		}
	}
	return records, nil
}

func (s *StateStore) persist(ctx context.Context, records map[string]ModuleRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state registry: %w", err)
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state registry: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("failed to replace state registry: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, stateCacheKey, records, defaultStateCacheTTL); err != nil {
			s.logger.Warn("Failed to cache state registry", "error", err)
		}
	}
	return nil
}

func (s *StateStore) path() string {
	return filepath.Join(s.dir, StateFileName)
}
