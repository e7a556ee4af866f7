package config

import (
	"fmt"

	"github.com/wricardo/dicerace/game/room"
)

// Preset is a named room configuration stored as JSON.
type Preset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxPlayers  int    `json:"max_players"`
	TrackLength int    `json:"track_length"`
}

// PresetInfo describes a preset file for listings.
type PresetInfo struct {
	Filename    string `json:"filename"`
	PresetID    string `json:"preset_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxPlayers  int    `json:"max_players"`
	TrackLength int    `json:"track_length"`
}

// RoomConfig converts the preset to the room configuration it describes.
func (p *Preset) RoomConfig() room.Config {
	return room.Config{MaxPlayers: p.MaxPlayers, TrackLength: p.TrackLength}
}

// ValidatePreset checks the name and the room bounds.
func ValidatePreset(p *Preset) error {
	if p == nil {
		return fmt.Errorf("%w: preset is nil", ErrInvalidConfig)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if err := p.RoomConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// defaultPreset is used when the directory holds no usable preset.
func defaultPreset() *Preset {
	return &Preset{
		Name:        "classic",
		Description: "Four players race to the end of a 30 cell track",
		MaxPlayers:  4,
		TrackLength: 30,
	}
}
