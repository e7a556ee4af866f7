package room

import (
	"errors"
	"fmt"
	"time"
)

// Phase is the room's state-machine state.
type Phase int

const (
	Lobby Phase = iota
	InProgress
	Finished
)

func (p Phase) String() string {
	switch p {
	case Lobby:
		return "lobby"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText lets phases appear by name in JSON responses.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Validation constants
const (
	MinPlayers     = 1
	MaxPlayers     = 16
	MinTrackLength = 2
	MaxTrackLength = 500
	DiceFaces      = 6
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrRoomClosed    = errors.New("room is closed")
	ErrNotMember     = errors.New("not a member of this room")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrNotInProgress = errors.New("game is not in progress")
	ErrNotInLobby    = errors.New("game already started")
	ErrInvalidConfig = errors.New("invalid room configuration")
	ErrEmptyIdentity = errors.New("identity must not be empty")
)

// Config is fixed at room creation.
type Config struct {
	MaxPlayers  int `json:"max_players"`
	TrackLength int `json:"track_length"`
}

// Validate checks the capacity and track bounds.
func (c Config) Validate() error {
	if c.MaxPlayers < MinPlayers || c.MaxPlayers > MaxPlayers {
		return fmt.Errorf("%w: max_players must be between %d and %d, got %d",
			ErrInvalidConfig, MinPlayers, MaxPlayers, c.MaxPlayers)
	}
	if c.TrackLength < MinTrackLength || c.TrackLength > MaxTrackLength {
		return fmt.Errorf("%w: track_length must be between %d and %d, got %d",
			ErrInvalidConfig, MinTrackLength, MaxTrackLength, c.TrackLength)
	}
	return nil
}

// Finish is the index of the last cell on the track.
func (c Config) Finish() int {
	return c.TrackLength - 1
}

// JoinResult reports how a join was handled.
type JoinResult int

const (
	Accepted JoinResult = iota
	AlreadyJoined
)

// RollResult describes an accepted roll.
type RollResult struct {
	Value    int  `json:"value"`
	Position int  `json:"position"`
	Won      bool `json:"won"`
}

// PlayerState is one member's row in a snapshot.
type PlayerState struct {
	Name     string `json:"name"`
	Ready    bool   `json:"ready"`
	Position int    `json:"position"`
}

// Snapshot is a consistent copy of the room taken inside its critical section.
type Snapshot struct {
	ID          string        `json:"id"`
	Phase       Phase         `json:"phase"`
	Players     []PlayerState `json:"players"`
	Turn        string        `json:"turn,omitempty"`
	Winner      string        `json:"winner,omitempty"`
	MaxPlayers  int           `json:"max_players"`
	TrackLength int           `json:"track_length"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
}

// Names returns the members in turn order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s.Players))
	for i, p := range s.Players {
		names[i] = p.Name
	}
	return names
}

// EventKind identifies what changed in a room.
type EventKind int

const (
	Joined EventKind = iota
	Left
	Synced
	ReadinessChanged
	GameStarted
	DiceRolled
	PositionsChanged
	TurnChanged
	Won
	Abandoned
	Chatted
)

func (k EventKind) String() string {
	switch k {
	case Joined:
		return "joined"
	case Left:
		return "left"
	case Synced:
		return "synced"
	case ReadinessChanged:
		return "readiness_changed"
	case GameStarted:
		return "game_started"
	case DiceRolled:
		return "dice_rolled"
	case PositionsChanged:
		return "positions_changed"
	case TurnChanged:
		return "turn_changed"
	case Won:
		return "won"
	case Abandoned:
		return "abandoned"
	case Chatted:
		return "chatted"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by a room operation. Identity names the member the event is
// about (joiner, leaver, roller, winner, next turn). Value carries the die face
// for DiceRolled and Text the chat line for Chatted. TurnMoved is set on Left
// when the departing member held the turn.
type Event struct {
	Kind      EventKind
	Identity  string
	Value     int
	Text      string
	TurnMoved bool
	Snapshot  Snapshot
}

// Match is a completed game handed to the stats sink.
type Match struct {
	RoomID       string
	Participants []string
	Winner       string
	Duration     time.Duration
	FinishedAt   time.Time
}

// Publisher receives the events of every committed operation, in commit order.
type Publisher interface {
	Publish(roomID string, events []Event)
}

// StatsSink records finished matches. Implementations must not block.
type StatsSink interface {
	RecordMatch(m Match)
}

// Roller draws one die face.
type Roller interface {
	Roll() int
}
