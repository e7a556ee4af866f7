package room

import (
	"slices"
	"sync"
	"time"
)

// Room is one independent race. Membership, readiness and positions are kept in
// three key-aligned collections; only Join and Leave add or remove keys.
type Room struct {
	id        string
	config    Config
	createdAt time.Time

	publisher Publisher
	stats     StatsSink
	roller    Roller
	onEmpty   func(*Room)
	now       func() time.Time

	// mu guards the game state below.
	mu        sync.Mutex
	members   []string
	ready     map[string]bool
	positions map[string]int
	turn      string
	winner    string
	phase     Phase
	startedAt time.Time
	closed    bool

	// emitMu is acquired before mu is released so publication follows commit order.
	emitMu sync.Mutex
}

// Option configures a Room.
type Option func(*Room)

// WithPublisher sets the receiver of room events.
func WithPublisher(p Publisher) Option {
	return func(r *Room) { r.publisher = p }
}

// WithStatsSink sets where finished matches are recorded.
func WithStatsSink(s StatsSink) Option {
	return func(r *Room) { r.stats = s }
}

// WithRoller replaces the dice source.
func WithRoller(roller Roller) Option {
	return func(r *Room) {
		if roller != nil {
			r.roller = roller
		}
	}
}

// WithOnEmpty registers a hook invoked once, after the last member leaves.
func WithOnEmpty(fn func(*Room)) Option {
	return func(r *Room) { r.onEmpty = fn }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Room) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a room in the Lobby phase.
func New(id string, config Config, opts ...Option) (*Room, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &Room{
		id:        id,
		config:    config,
		roller:    DefaultRoller,
		now:       time.Now,
		ready:     make(map[string]bool),
		positions: make(map[string]int),
		phase:     Lobby,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.createdAt = r.now()

	return r, nil
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Config returns the immutable room configuration.
func (r *Room) Config() Config { return r.config }

// CreatedAt returns when the room was created.
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// Count returns the current number of members.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Phase returns the current phase.
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Closed reports whether the room has been emptied and destroyed.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// CloseIfUnused closes the room if nobody is in it. A closed room refuses
// joins, so a sweep can drop it without racing an admission.
func (r *Room) CloseIfUnused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.members) > 0 {
		return false
	}
	r.closed = true
	return true
}

// Snapshot returns a consistent copy of the room state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// outcome is what a committed operation hands to the emit section.
type outcome struct {
	events []Event
	match  *Match
	empty  bool
}

// commit runs op as the room's critical section, then publishes its outcome
// after the state lock is released but before any later operation can publish.
func (r *Room) commit(op func() (outcome, error)) error {
	r.mu.Lock()
	out, err := op()
	r.emitMu.Lock()
	r.mu.Unlock()
	defer r.emitMu.Unlock()

	if len(out.events) > 0 && r.publisher != nil {
		r.publisher.Publish(r.id, out.events)
	}
	if out.match != nil && r.stats != nil {
		r.stats.RecordMatch(*out.match)
	}
	if out.empty && r.onEmpty != nil {
		r.onEmpty(r)
	}
	return err
}

// Join adds identity to the room. Joining twice is a successful no-op.
func (r *Room) Join(identity string) (JoinResult, error) {
	if identity == "" {
		return Accepted, ErrEmptyIdentity
	}

	result := Accepted
	err := r.commit(func() (outcome, error) {
		if r.closed {
			return outcome{}, ErrRoomClosed
		}
		if _, ok := r.ready[identity]; ok {
			result = AlreadyJoined
			return outcome{}, nil
		}
		if len(r.members) >= r.config.MaxPlayers {
			return outcome{}, ErrRoomFull
		}

		r.members = append(r.members, identity)
		r.ready[identity] = false
		r.positions[identity] = 0

		return outcome{events: []Event{r.eventLocked(Joined, identity)}}, nil
	})
	return result, err
}

// Leave removes identity. It returns true when the room became empty, in which
// case the room is closed and the on-empty hook has run.
func (r *Room) Leave(identity string) bool {
	empty := false
	r.commit(func() (outcome, error) {
		idx := slices.Index(r.members, identity)
		if idx < 0 {
			return outcome{}, nil
		}

		heldTurn := r.phase == InProgress && r.turn == identity
		r.members = slices.Delete(r.members, idx, idx+1)
		delete(r.ready, identity)
		delete(r.positions, identity)

		if len(r.members) == 0 {
			r.closed = true
			r.turn = ""
			if r.phase == InProgress {
				r.phase = Finished
			}
			empty = true
			return outcome{empty: true}, nil
		}

		if heldTurn {
			// idx now points at the member who followed the leaver.
			r.turn = r.members[idx%len(r.members)]
		}

		abandoned := false
		if r.phase == InProgress && len(r.members) < 2 {
			r.phase = Finished
			abandoned = true
		}

		left := r.eventLocked(Left, identity)
		left.TurnMoved = heldTurn && !abandoned
		events := []Event{left}
		if abandoned {
			events = append(events, r.eventLocked(Abandoned, ""))
		}
		return outcome{events: events}, nil
	})
	return empty
}

// ToggleReady flips identity's readiness while in the Lobby. When every member
// is ready the game starts in the same critical section.
func (r *Room) ToggleReady(identity string) error {
	return r.commit(func() (outcome, error) {
		if _, ok := r.ready[identity]; !ok {
			return outcome{}, ErrNotMember
		}
		if r.phase != Lobby {
			return outcome{}, ErrNotInLobby
		}

		r.ready[identity] = !r.ready[identity]
		events := []Event{r.eventLocked(ReadinessChanged, identity)}

		if r.allReadyLocked() {
			events = append(events, r.startLocked())
		}
		return outcome{events: events}, nil
	})
}

// Start moves a Lobby room into play regardless of readiness.
func (r *Room) Start() error {
	return r.commit(func() (outcome, error) {
		if r.phase != Lobby {
			return outcome{}, ErrNotInLobby
		}
		if len(r.members) == 0 {
			return outcome{}, ErrNotMember
		}
		return outcome{events: []Event{r.startLocked()}}, nil
	})
}

// Roll plays identity's turn. Rejected rolls leave the room untouched.
func (r *Room) Roll(identity string) (RollResult, error) {
	var result RollResult
	err := r.commit(func() (outcome, error) {
		if r.phase != InProgress {
			return outcome{}, ErrNotInProgress
		}
		idx := slices.Index(r.members, identity)
		if idx < 0 {
			return outcome{}, ErrNotMember
		}
		if r.turn != identity {
			return outcome{}, ErrNotYourTurn
		}

		value := r.roller.Roll()
		if value < 1 {
			value = 1
		}
		result.Value = value

		rolled := r.eventLocked(DiceRolled, identity)
		rolled.Value = value
		events := []Event{rolled}

		next := r.positions[identity] + value
		if next < r.config.Finish() {
			r.positions[identity] = next
			r.turn = r.members[(idx+1)%len(r.members)]
			result.Position = next

			events = append(events,
				r.eventLocked(PositionsChanged, identity),
				r.eventLocked(TurnChanged, r.turn),
			)
			return outcome{events: events}, nil
		}

		now := r.now()
		r.positions[identity] = r.config.Finish()
		r.phase = Finished
		r.winner = identity
		r.turn = ""
		result.Position = r.config.Finish()
		result.Won = true

		events = append(events,
			r.eventLocked(Won, identity),
			r.eventLocked(PositionsChanged, identity),
		)
		match := &Match{
			RoomID:       r.id,
			Participants: slices.Clone(r.members),
			Winner:       identity,
			Duration:     now.Sub(r.startedAt),
			FinishedAt:   now,
		}
		return outcome{events: events, match: match}, nil
	})
	return result, err
}

// Say relays a chat line from a member through the room's event order.
func (r *Room) Say(identity, text string) error {
	return r.commit(func() (outcome, error) {
		if _, ok := r.ready[identity]; !ok {
			return outcome{}, ErrNotMember
		}
		ev := Event{Kind: Chatted, Identity: identity, Text: text}
		return outcome{events: []Event{ev}}, nil
	})
}

// Sync publishes the full room state in commit order.
func (r *Room) Sync() {
	r.commit(func() (outcome, error) {
		if r.closed {
			return outcome{}, nil
		}
		return outcome{events: []Event{r.eventLocked(Synced, "")}}, nil
	})
}

func (r *Room) startLocked() Event {
	r.phase = InProgress
	r.turn = r.members[0]
	r.winner = ""
	r.startedAt = r.now()
	for _, m := range r.members {
		r.positions[m] = 0
	}
	return r.eventLocked(GameStarted, r.turn)
}

func (r *Room) allReadyLocked() bool {
	if len(r.ready) == 0 {
		return false
	}
	for _, ok := range r.ready {
		if !ok {
			return false
		}
	}
	return true
}

func (r *Room) eventLocked(kind EventKind, identity string) Event {
	return Event{Kind: kind, Identity: identity, Snapshot: r.snapshotLocked()}
}

func (r *Room) snapshotLocked() Snapshot {
	players := make([]PlayerState, len(r.members))
	for i, m := range r.members {
		players[i] = PlayerState{Name: m, Ready: r.ready[m], Position: r.positions[m]}
	}
	return Snapshot{
		ID:          r.id,
		Phase:       r.phase,
		Players:     players,
		Turn:        r.turn,
		Winner:      r.winner,
		MaxPlayers:  r.config.MaxPlayers,
		TrackLength: r.config.TrackLength,
		CreatedAt:   r.createdAt,
		StartedAt:   r.startedAt,
	}
}
