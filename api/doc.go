// Package api provides the HTTP surface of the dice race server.
//
// Endpoints:
//
// Accounts:
//   - POST /api/register  - Create an account (JSON or form body)
//   - POST /api/token     - Log in; sets the access_token and token_expiration cookies
//   - POST /api/logout    - Clear the login cookies
//   - GET  /api/account   - Games played, wins and mean game time of the caller
//
// Rooms:
//   - GET  /api/rooms      - Lobby listing
//   - POST /api/rooms      - Create a room from a preset, optionally overriding sizes
//   - GET  /api/rooms/{id} - Room snapshot and connected players
//   - GET  /api/presets    - Available room presets
//
// Play:
//   - GET /ws/{room} - Join the room and upgrade to a websocket
//
// Identity comes from the access_token cookie or an Authorization: Bearer
// header. Joining happens before the upgrade, so a full room answers 403 and
// an unknown room 404 without ever opening a socket.
//
// Error responses are JSON objects of the form {"error": "..."}.
//
// Usage:
//
//	server := api.NewServer(coordinator, hub, authService, store, logger)
//	http.ListenAndServe(":8080", server)
package api
