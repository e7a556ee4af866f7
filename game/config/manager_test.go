package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePresetFile(t *testing.T, dir, name string, p *Preset) {
	t.Helper()
	data, err := json.MarshalIndent(p, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), data, 0644))
}

func TestNewManager_MissingDir(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestNewManager_BuiltinDefault(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	def := m.GetDefault()
	require.NotNil(t, def)
	assert.Equal(t, "classic", def.Name)
	assert.Equal(t, 4, def.MaxPlayers)
	assert.Equal(t, 30, def.TrackLength)
}

func TestNewManager_PrefersClassic(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "aaa", &Preset{Name: "A", MaxPlayers: 2, TrackLength: 5})
	writePresetFile(t, dir, "classic", &Preset{Name: "Classic", MaxPlayers: 6, TrackLength: 40})

	m, err := NewManager(dir)
	require.NoError(t, err)
	assert.Equal(t, "Classic", m.GetDefault().Name)
}

func TestNewManager_FirstValidWhenNoClassic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aaa.json"), []byte("{not json"), 0644))
	writePresetFile(t, dir, "bbb", &Preset{Name: "B", MaxPlayers: 3, TrackLength: 9})

	m, err := NewManager(dir)
	require.NoError(t, err)
	assert.Equal(t, "B", m.GetDefault().Name)
}

func TestLoadPreset(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "duel", &Preset{Name: "Duel", MaxPlayers: 2, TrackLength: 20})
	writePresetFile(t, dir, "broken", &Preset{Name: "Broken", MaxPlayers: 0, TrackLength: 20})

	m, err := NewManager(dir)
	require.NoError(t, err)

	p, err := m.LoadPreset("duel")
	require.NoError(t, err)
	assert.Equal(t, 2, p.RoomConfig().MaxPlayers)
	assert.Equal(t, 20, p.RoomConfig().TrackLength)

	again, err := m.LoadPreset("duel.json")
	require.NoError(t, err)
	assert.Same(t, p, again)

	_, err = m.LoadPreset("missing")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	_, err = m.LoadPreset("../etc/passwd")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	_, err = m.LoadPreset("broken")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestListPresets(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "sprint", &Preset{Name: "Sprint", MaxPlayers: 4, TrackLength: 12})
	writePresetFile(t, dir, "duel", &Preset{Name: "Duel", MaxPlayers: 2, TrackLength: 20})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("[]"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0755))

	m, err := NewManager(dir)
	require.NoError(t, err)

	infos, err := m.ListPresets()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "duel", infos[0].PresetID)
	assert.Equal(t, "duel.json", infos[0].Filename)
	assert.Equal(t, "sprint", infos[1].PresetID)
	assert.Equal(t, 12, infos[1].TrackLength)
}

func TestSavePreset(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	p := &Preset{Name: "Long", Description: "long one", MaxPlayers: 3, TrackLength: 100}
	require.NoError(t, m.SavePreset("long", p))

	_, err = os.Stat(filepath.Join(dir, "long.json"))
	require.NoError(t, err)

	loaded, err := Validate(filepath.Join(dir, "long.json"))
	require.NoError(t, err)
	assert.Equal(t, *p, *loaded)

	assert.ErrorIs(t, m.SavePreset("bad", &Preset{Name: "Bad", MaxPlayers: 99, TrackLength: 10}), ErrInvalidConfig)
	assert.ErrorIs(t, m.SavePreset("../escape", p), ErrInvalidConfig)
	assert.ErrorIs(t, m.SavePreset("nameless", &Preset{MaxPlayers: 2, TrackLength: 10}), ErrInvalidConfig)
}

func TestSetDefaultAndRefresh(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "duel", &Preset{Name: "Duel", MaxPlayers: 2, TrackLength: 20})

	m, err := NewManager(dir)
	require.NoError(t, err)

	require.NoError(t, m.SetDefault("duel"))
	assert.Equal(t, "Duel", m.GetDefault().Name)
	assert.Error(t, m.SetDefault("missing"))

	writePresetFile(t, dir, "classic", &Preset{Name: "Classic", MaxPlayers: 4, TrackLength: 30})
	m.RefreshCache()
	assert.Equal(t, "Classic", m.GetDefault().Name)
}

func TestShippedPresetsAreValid(t *testing.T) {
	m, err := NewManager(filepath.Join("..", "..", "configs"))
	require.NoError(t, err)

	infos, err := m.ListPresets()
	require.NoError(t, err)
	assert.NotEmpty(t, infos)
	assert.Equal(t, "Classic", m.GetDefault().Name)
}

func TestManager_ConcurrentLoads(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "duel", &Preset{Name: "Duel", MaxPlayers: 2, TrackLength: 20})

	m, err := NewManager(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := m.LoadPreset("duel")
			assert.NoError(t, err)
			assert.Equal(t, "Duel", p.Name)
			_, _ = m.ListPresets()
		}()
	}
	wg.Wait()
}
