// Package service holds the Coordinator, the layer between connections and
// rooms.
//
// The Coordinator:
//   - creates and lists rooms through the directory, using presets
//   - admits players before their socket is upgraded
//   - binds sockets to (room, identity) in the hub and sends the initial state
//   - routes READY_TOGGLE, ROLL_DICE and chat frames to room operations
//   - publishes every room event batch as protocol frames to the room
//   - turns socket loss, whether seen by the read pump or by a failed send,
//     into a room leave
//
// Usage:
//
//	hub := websocket.NewHub()
//	rooms := directory.New(directory.WithStatsSink(recorder))
//	presets, _ := config.NewManager("configs")
//	coord := service.NewCoordinator(rooms, hub, presets, logger)
//
//	info, err := coord.CreateRoom(ctx, service.CreateRoomRequest{Preset: "duel"})
package service
