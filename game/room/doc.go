// Package room implements the dice race state machine.
//
// A Room owns its membership, readiness, positions and turn pointer and moves
// through three phases:
//
//	Lobby -> InProgress -> Finished
//
// There is no way back. A finished room lingers until its last member leaves.
//
// Concurrency:
//
// Every operation (Join, Leave, ToggleReady, Start, Roll, Say, Sync) runs as one
// critical section on the room's own mutex. The events it produces are handed
// to the Publisher after that mutex is released, under a second lock that is
// taken before the first one is dropped. Publication order therefore matches
// commit order while slow delivery never holds up game state.
//
// Collaborators:
//
// Publisher receives events, StatsSink receives finished matches and Roller
// draws dice. All three are injected with functional options.
//
// Usage:
//
//	r, err := room.New("room_1", room.Config{MaxPlayers: 2, TrackLength: 10},
//		room.WithPublisher(coordinator),
//		room.WithStatsSink(recorder),
//	)
//	r.Join("alice")
//	r.Join("bob")
//	r.ToggleReady("alice")
//	r.ToggleReady("bob") // starts the race, alice rolls first
//	res, err := r.Roll("alice")
package room
