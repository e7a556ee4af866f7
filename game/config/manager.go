package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrConfigNotFound = errors.New("preset not found")
	ErrInvalidConfig  = errors.New("invalid preset")
)

// DefaultPresetName is tried first when picking the default preset.
const DefaultPresetName = "classic"

// Manager loads and caches room presets from a directory
type Manager struct {
	configDir     string
	defaultPreset *Preset
	presets       map[string]*Preset
	mu            sync.RWMutex
}

// NewManager creates a preset manager over configDir
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		presets:   make(map[string]*Preset),
	}

	m.defaultPreset = m.pickDefault()
	return m, nil
}

// LoadPreset loads a preset by id (file name without .json)
func (m *Manager) LoadPreset(name string) (*Preset, error) {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrConfigNotFound, name)
	}

	m.mu.RLock()
	if p, exists := m.presets[name]; exists {
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if p, exists := m.presets[name]; exists {
		return p, nil
	}

	p, err := readPreset(filepath.Join(m.configDir, name+".json"))
	if err != nil {
		return nil, err
	}

	m.presets[name] = p
	return p, nil
}

// ListPresets returns every valid preset in the directory, sorted by id.
// Invalid files are skipped.
func (m *Manager) ListPresets() ([]*PresetInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var presets []*PresetInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		p, err := m.LoadPreset(id)
		if err != nil {
			continue
		}

		presets = append(presets, &PresetInfo{
			Filename:    entry.Name(),
			PresetID:    id,
			Name:        p.Name,
			Description: p.Description,
			MaxPlayers:  p.MaxPlayers,
			TrackLength: p.TrackLength,
		})
	}

	sort.Slice(presets, func(i, j int) bool { return presets[i].PresetID < presets[j].PresetID })
	return presets, nil
}

// GetDefault returns the default preset
func (m *Manager) GetDefault() *Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPreset
}

// SetDefault sets the default preset by id
func (m *Manager) SetDefault(name string) error {
	p, err := m.LoadPreset(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPreset = p
	return nil
}

// RefreshCache drops cached presets and re-picks the default
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.presets = make(map[string]*Preset)
	m.mu.Unlock()

	def := m.pickDefault()

	m.mu.Lock()
	m.defaultPreset = def
	m.mu.Unlock()
}

// SavePreset validates and writes a preset to disk
func (m *Manager) SavePreset(name string, p *Preset) error {
	if err := ValidatePreset(p); err != nil {
		return err
	}

	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: bad preset id %q", ErrInvalidConfig, name)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, name+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}

	m.mu.Lock()
	m.presets[name] = p
	m.mu.Unlock()

	return nil
}

// pickDefault prefers classic, then the first valid preset, then the
// built-in one.
func (m *Manager) pickDefault() *Preset {
	if p, err := m.LoadPreset(DefaultPresetName); err == nil {
		return p
	}

	infos, err := m.ListPresets()
	if err != nil || len(infos) == 0 {
		return defaultPreset()
	}

	p, err := m.LoadPreset(infos[0].PresetID)
	if err != nil {
		return defaultPreset()
	}
	return p
}

// Validate checks a single preset file without caching it.
func Validate(path string) (*Preset, error) {
	return readPreset(path)
}

func readPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}

	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, filepath.Base(path), err)
	}

	if err := ValidatePreset(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
