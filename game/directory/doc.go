// Package directory provides the room directory for the dice race server.
//
// The directory implements:
//   - Room creation with duplicate id detection
//   - Room lookup by id
//   - Lobby listings (id, member count, capacity)
//   - Automatic removal of rooms whose last member left
//
// Concurrency:
//
// The directory map has its own RWMutex, used only for create, lookup and
// destroy. Operations inside a room never touch it, so rooms never block each
// other. Listing copies the room pointers under the read lock and then reads
// every room's count under that room's own lock.
//
// Usage:
//
//	dir := directory.New(
//		directory.WithStatsSink(recorder),
//		directory.WithLogger(logger),
//	)
//
//	r, err := dir.Create("room_1", room.Config{MaxPlayers: 4, TrackLength: 30})
//	if errors.Is(err, directory.ErrDuplicateID) {
//		// pick another name
//	}
//
//	for _, s := range dir.List() {
//		fmt.Println(s.ID, s.CurrentCount, s.MaxPlayers)
//	}
package directory
