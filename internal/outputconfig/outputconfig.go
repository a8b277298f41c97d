// Package outputconfig implements OutputConfigStore: the persisted,
// versioned output configuration, rewritten atomically after every
// successful mutation.
package outputconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/jota2rz/graphics-core/internal/models"
)

// CurrentVersion is the output config schema version this store writes and
// accepts strictly.
const CurrentVersion = 1

const configFile = "graphics-output.json"

// Store is the OutputConfigStore.
type Store struct {
	log  *slog.Logger
	dir  string
	path string

	mu  sync.RWMutex
	cfg *models.OutputConfig
}

// New constructs a Store rooted at dir. Call Initialize before use.
func New(log *slog.Logger, dir string) *Store {
	return &Store{
		log:  log,
		dir:  dir,
		path: filepath.Join(dir, configFile),
	}
}

// Initialize creates the containing directory and loads any persisted
// config. Persisted-config corruption is treated as absence, never as an
// initialization failure.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("outputconfig: create directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("output config unreadable, starting unconfigured", "error", err)
		}
		s.cfg = nil
		return nil
	}

	cfg, upgraded, ok := s.load(data)
	if !ok {
		s.cfg = nil
		return nil
	}
	s.cfg = cfg
	if upgraded {
		if err := s.persistLocked(); err != nil {
			s.log.Warn("failed to re-persist upgraded output config", "error", err)
		}
	}
	return nil
}

// load attempts a strict parse first, then a legacy coercion that strips
// unknown fields and re-validates. Returns ok=false if both fail or the
// stored version exceeds CurrentVersion.
func (s *Store) load(data []byte) (cfg *models.OutputConfig, needsRepersist bool, ok bool) {
	var strict models.OutputConfig
	if err := strictUnmarshal(data, &strict); err == nil {
		if strict.Version > CurrentVersion {
			s.log.Warn("persisted output config version exceeds supported version",
				"version", strict.Version, "supported", CurrentVersion)
			return nil, false, false
		}
		return &strict, false, true
	}

	// Legacy coercion: tolerant unmarshal dropping unknown fields, then
	// re-validate and re-persist at the current version.
	var legacy models.OutputConfig
	if err := json.Unmarshal(data, &legacy); err != nil {
		s.log.Warn("output config unreadable after legacy coercion, starting unconfigured", "error", err)
		return nil, false, false
	}
	if legacy.Version > CurrentVersion {
		return nil, false, false
	}
	legacy.Version = CurrentVersion
	return &legacy, true, true
}

// strictUnmarshal rejects unknown fields, matching "validate strictly"
// before falling back to legacy coercion.
func strictUnmarshal(data []byte, v *models.OutputConfig) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// GetConfig returns the active config, if one is set.
func (s *Store) GetConfig() (models.OutputConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return models.OutputConfig{}, false
	}
	return *s.cfg, true
}

// SetConfig normalizes cfg.Version to CurrentVersion and persists it
// atomically.
func (s *Store) SetConfig(cfg models.OutputConfig) error {
	cfg.Version = CurrentVersion

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = &cfg
	if err := s.persistLocked(); err != nil {
		s.cfg = prev
		return fmt.Errorf("outputconfig: persist: %w", err)
	}
	return nil
}

// Clear deletes the persisted file, if present, and clears in-memory state.
// Not-found errors on delete are swallowed; any other error is returned.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("outputconfig: clear: %w", err)
	}
	return nil
}

// persistLocked writes s.cfg atomically. Caller must hold s.mu. s.cfg must
// be non-nil.
func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return fmt.Errorf("open pending config: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending config: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}
