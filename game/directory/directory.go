package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wricardo/dicerace/game/room"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrDuplicateID   = errors.New("room already exists")
	ErrInvalidRoomID = errors.New("invalid room ID")
)

// MaxRoomIDLength bounds user-chosen room identifiers.
const MaxRoomIDLength = 64

// Sweep defaults for rooms that were created but never joined.
const (
	DefaultUnusedTTL     = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Summary is the lobby listing entry for one room.
type Summary struct {
	ID           string     `json:"id"`
	CurrentCount int        `json:"current_count"`
	MaxPlayers   int        `json:"max_players"`
	TrackLength  int        `json:"track_length"`
	Phase        room.Phase `json:"phase"`
}

// Directory creates, looks up and destroys rooms. It is the only place with
// knowledge of more than one room.
type Directory struct {
	rooms     map[string]*room.Room
	publisher room.Publisher
	stats     room.StatsSink
	roller    room.Roller
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// Option configures a Directory.
type Option func(*Directory)

// WithPublisher sets the publisher given to every new room.
func WithPublisher(p room.Publisher) Option {
	return func(d *Directory) { d.publisher = p }
}

// WithStatsSink sets the stats sink given to every new room.
func WithStatsSink(s room.StatsSink) Option {
	return func(d *Directory) { d.stats = s }
}

// WithRoller sets the dice source given to every new room.
func WithRoller(r room.Roller) Option {
	return func(d *Directory) { d.roller = r }
}

// WithLogger sets the directory logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Directory) { d.logger = l }
}

// New creates an empty directory.
func New(opts ...Option) *Directory {
	d := &Directory{
		rooms:  make(map[string]*room.Room),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetPublisher replaces the publisher used for rooms created from now on.
// It exists to break the construction cycle between the directory and the
// component that consumes room events.
func (d *Directory) SetPublisher(p room.Publisher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publisher = p
}

// Create makes a new Lobby room. An empty id gets a generated one.
func (d *Directory) Create(id string, config room.Config) (*room.Room, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = generateRoomID()
	}
	if err := validateRoomID(id); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.rooms[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	opts := []room.Option{
		room.WithPublisher(d.publisher),
		room.WithStatsSink(d.stats),
		room.WithOnEmpty(d.remove),
	}
	if d.roller != nil {
		opts = append(opts, room.WithRoller(d.roller))
	}

	r, err := room.New(id, config, opts...)
	if err != nil {
		return nil, err
	}
	d.rooms[id] = r

	d.logger.Info().
		Str("room", id).
		Int("max_players", config.MaxPlayers).
		Int("track_length", config.TrackLength).
		Msg("room created")

	return r, nil
}

// Get returns the room with the given id.
func (d *Directory) Get(id string) (*room.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, exists := d.rooms[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return r, nil
}

// List returns a snapshot of all rooms sorted by id. Counts are read under
// each room's own lock after the directory lock is released.
func (d *Directory) List() []Summary {
	d.mu.RLock()
	rooms := make([]*room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	result := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		snap := r.Snapshot()
		result = append(result, Summary{
			ID:           r.ID(),
			CurrentCount: len(snap.Players),
			MaxPlayers:   snap.MaxPlayers,
			TrackLength:  snap.TrackLength,
			Phase:        snap.Phase,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Remove deletes a room by id. Removing an unknown id is a no-op.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.rooms[id]; exists {
		delete(d.rooms, id)
		d.logger.Info().Str("room", id).Msg("room removed")
	}
}

// Count returns the number of live rooms.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Sweep closes and removes rooms created before cutoff that nobody is in.
// It returns how many were removed.
func (d *Directory) Sweep(cutoff time.Time) int {
	d.mu.RLock()
	candidates := make([]*room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		if r.CreatedAt().Before(cutoff) {
			candidates = append(candidates, r)
		}
	}
	d.mu.RUnlock()

	removed := 0
	for _, r := range candidates {
		if r.CloseIfUnused() && d.removeInstance(r, "unused room swept") {
			removed++
		}
	}
	return removed
}

// Run sweeps rooms left unused for longer than ttl every interval until ctx
// is done.
func (d *Directory) Run(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := d.Sweep(now.Add(-ttl)); n > 0 {
				d.logger.Info().Int("removed", n).Msg("swept unused rooms")
			}
		}
	}
}

// remove is the on-empty hook handed to rooms.
func (d *Directory) remove(r *room.Room) {
	d.removeInstance(r, "room destroyed after last member left")
}

// removeInstance only deletes the exact instance given, never a newer room
// created under the same id.
func (d *Directory) removeInstance(r *room.Room, reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, exists := d.rooms[r.ID()]; exists && current == r {
		delete(d.rooms, r.ID())
		d.logger.Info().Str("room", r.ID()).Msg(reason)
		return true
	}
	return false
}

// generateRoomID returns a short random identifier.
func generateRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func validateRoomID(id string) error {
	if len(id) > MaxRoomIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidRoomID, MaxRoomIDLength)
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidRoomID, id, c)
		}
	}
	return nil
}
