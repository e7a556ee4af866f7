// Package mcp exposes the Dice Race lobby to AI agents over the Model Context
// Protocol.
//
// The client is thin: every tool call is proxied to the REST API, so an agent
// sees exactly what a browser would. Tools:
//   - list_rooms: lobby listing
//   - create_room: create a room from a preset with optional overrides
//   - room_state: players, readiness, positions and turn
//   - list_presets: available room presets
//   - player_stats: account statistics for an access token
//   - game_rules: rules and websocket frames
//
// Playing a race is not exposed as a tool; agents join over the websocket
// like any other player.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
