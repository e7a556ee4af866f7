package service

import (
	"github.com/wricardo/dicerace/game/config"
	"github.com/wricardo/dicerace/game/room"
	"github.com/wricardo/dicerace/transport/websocket"
)

// CreateRoomRequest asks for a new room. Zero MaxPlayers or TrackLength take
// the preset's value; an empty Preset means the default preset.
type CreateRoomRequest struct {
	ID          string `json:"id,omitempty"`
	Preset      string `json:"preset,omitempty"`
	MaxPlayers  int    `json:"max_players,omitempty"`
	TrackLength int    `json:"track_length,omitempty"`
}

// RoomInfo is a room snapshot plus the identities currently connected.
type RoomInfo struct {
	room.Snapshot
	Connected []string `json:"connected"`
}

// Registry is the part of the connection hub the coordinator drives.
type Registry interface {
	Register(roomID, identity string, conn websocket.Conn)
	Release(roomID, identity string, conn websocket.Conn) bool
	Broadcast(roomID string, frames ...string)
	ListIdentities(roomID string) []string
	SetOnDrop(fn func(roomID, identity string))
}

// PresetSource supplies room presets.
type PresetSource interface {
	LoadPreset(name string) (*config.Preset, error)
	ListPresets() ([]*config.PresetInfo, error)
	GetDefault() *config.Preset
}
