// Package websocket is the connection registry for game rooms.
//
// A Hub maps (room, identity) to the one live endpoint for that pair. Frames
// for a room are fanned out with Broadcast; an endpoint that fails to accept a
// frame is skipped and queued for removal. Run drains that queue off the
// caller's goroutine, releases the endpoint and reports it through the OnDrop
// callback so the owner can treat it as a disconnect.
//
// Serve upgrades an HTTP request into a Client with the usual read and write
// pumps. Inbound frames are rate limited per connection and handed to a
// Handler together with the connect and disconnect lifecycle.
//
// Usage:
//
//	hub := websocket.NewHub(websocket.WithLogger(logger))
//	go hub.Run(ctx)
//	hub.SetOnDrop(coordinator.Drop)
//
//	router.HandleFunc("/ws/{room}", func(w http.ResponseWriter, r *http.Request) {
//		hub.Serve(w, r, roomID, identity, coordinator)
//	})
package websocket
