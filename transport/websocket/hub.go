package websocket

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn is one live endpoint that can receive text frames.
type Conn interface {
	Send(frame string) error
	Close()
}

// Handler receives the lifecycle and inbound traffic of served connections.
type Handler interface {
	Connect(ctx context.Context, roomID, identity string, conn Conn) error
	HandleMessage(roomID, identity, text string)
	Disconnect(roomID, identity string, conn Conn)
}

// roomConns keeps the endpoints of one room in registration order.
type roomConns struct {
	order []string
	conns map[string]Conn
}

type drop struct {
	roomID   string
	identity string
	conn     Conn
}

// Hub maps (room, identity) to the single live endpoint for that pair and fans
// frames out to a room.
type Hub struct {
	rooms map[string]*roomConns
	mu    sync.RWMutex

	// Failed endpoints are queued here by Broadcast and handled by Run.
	// Broadcast runs inside a room's publish section, so it must never wait
	// on anything that could call back into the room.
	drops   []drop
	dropMu  sync.Mutex
	dropped chan struct{}

	onDrop func(roomID, identity string)
	logger zerolog.Logger
	limit  rate.Limit
	burst  int
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithRateLimit bounds inbound frames per connection.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(h *Hub) {
		h.limit = limit
		h.burst = burst
	}
}

// NewHub creates an empty registry.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:   make(map[string]*roomConns),
		dropped: make(chan struct{}, 1),
		logger:  zerolog.Nop(),
		limit:   5,
		burst:   10,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetOnDrop installs the callback invoked by Run after a failed endpoint has
// been removed.
func (h *Hub) SetOnDrop(fn func(roomID, identity string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = fn
}

// Register binds conn to (roomID, identity). A previous endpoint for the same
// pair is replaced and closed.
func (h *Hub) Register(roomID, identity string, conn Conn) {
	h.mu.Lock()
	rc, ok := h.rooms[roomID]
	if !ok {
		rc = &roomConns{conns: make(map[string]Conn)}
		h.rooms[roomID] = rc
	}
	prev, existed := rc.conns[identity]
	rc.conns[identity] = conn
	if !existed {
		rc.order = append(rc.order, identity)
	}
	h.mu.Unlock()

	if existed && prev != conn {
		prev.Close()
		h.logger.Debug().Str("room", roomID).Str("identity", identity).Msg("replaced endpoint")
	}
}

// Unregister removes whatever endpoint is bound to (roomID, identity).
func (h *Hub) Unregister(roomID, identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(roomID, identity)
}

// Release removes the binding only if conn is still the registered endpoint.
// It reports whether it did.
func (h *Hub) Release(roomID, identity string, conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	rc, ok := h.rooms[roomID]
	if !ok || rc.conns[identity] != conn {
		return false
	}
	h.removeLocked(roomID, identity)
	return true
}

func (h *Hub) removeLocked(roomID, identity string) {
	rc, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := rc.conns[identity]; !ok {
		return
	}
	delete(rc.conns, identity)
	if i := slices.Index(rc.order, identity); i >= 0 {
		rc.order = slices.Delete(rc.order, i, i+1)
	}
	if len(rc.conns) == 0 {
		delete(h.rooms, roomID)
	}
}

// ListIdentities returns the identities with a live endpoint in roomID, in
// registration order.
func (h *Hub) ListIdentities(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rc, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Clone(rc.order)
}

// Broadcast sends frames, in order, to every endpoint of roomID. A failing
// endpoint is skipped for the rest of the call and queued for removal; the
// others still receive everything.
func (h *Hub) Broadcast(roomID string, frames ...string) {
	if len(frames) == 0 {
		return
	}

	type target struct {
		identity string
		conn     Conn
	}

	h.mu.RLock()
	rc, ok := h.rooms[roomID]
	var targets []target
	if ok {
		targets = make([]target, 0, len(rc.order))
		for _, id := range rc.order {
			targets = append(targets, target{identity: id, conn: rc.conns[id]})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		for _, frame := range frames {
			if err := t.conn.Send(frame); err != nil {
				h.logger.Warn().Err(err).
					Str("room", roomID).
					Str("identity", t.identity).
					Msg("send failed, dropping endpoint")
				h.queueDrop(drop{roomID: roomID, identity: t.identity, conn: t.conn})
				break
			}
		}
	}
}

func (h *Hub) queueDrop(d drop) {
	h.dropMu.Lock()
	h.drops = append(h.drops, d)
	h.dropMu.Unlock()

	select {
	case h.dropped <- struct{}{}:
	default:
	}
}

// Run processes failed endpoints until ctx is done. Each one is released,
// closed and reported to the OnDrop callback.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.dropped:
			h.processDrops()
		}
	}
}

func (h *Hub) processDrops() {
	h.dropMu.Lock()
	pending := h.drops
	h.drops = nil
	h.dropMu.Unlock()

	h.mu.RLock()
	onDrop := h.onDrop
	h.mu.RUnlock()

	for _, d := range pending {
		if !h.Release(d.roomID, d.identity, d.conn) {
			continue
		}
		d.conn.Close()
		h.logger.Info().Str("room", d.roomID).Str("identity", d.identity).Msg("endpoint dropped")
		if onDrop != nil {
			onDrop(d.roomID, d.identity)
		}
	}
}
