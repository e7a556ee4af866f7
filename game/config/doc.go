// Package config manages room presets.
//
// A preset is a JSON file in the config directory naming a room shape:
//
//	{
//	  "name": "Classic",
//	  "description": "Four players, thirty cells",
//	  "max_players": 4,
//	  "track_length": 30
//	}
//
// The preset id is the file name without the .json extension. Presets are
// validated against the room bounds when loaded and cached afterwards.
//
// The default preset is "classic" when that file exists, otherwise the first
// valid preset in the directory, otherwise a built-in four player, thirty cell
// track.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	preset, err := manager.LoadPreset("duel")
//	cfg := preset.RoomConfig()
package config
