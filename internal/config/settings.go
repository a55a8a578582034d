package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// EventSettings is the operational event data organizers tune while the
// hackathon runs: the schedule window shown on the dashboard.
type EventSettings struct {
	Name  string    `yaml:"name" json:"name"`
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
}

// SettingsStore owns the current event settings. It is loaded from a
// file at startup and re-read on an explicit Reload (exposed as an
// admin endpoint); there is no module-global state and no implicit
// file watching.
type SettingsStore struct {
	path string

	mu      sync.RWMutex
	current EventSettings
}

// NewSettingsStore creates a store reading from path and performs the
// initial load. A missing file is not fatal: the store starts with zero
// settings and can be populated by a later Reload.
func NewSettingsStore(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path}
	if err := s.Reload(); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

// Current returns a copy of the settings.
func (s *SettingsStore) Current() EventSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the settings file and atomically swaps the current
// value. On error the previous settings stay in effect.
func (s *SettingsStore) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("config: reading settings %s: %w", s.path, err)
	}

	var next EventSettings
	if err := yaml.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("config: parsing settings %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}
