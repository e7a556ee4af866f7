package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wricardo/dicerace/game/config"
	"github.com/wricardo/dicerace/game/directory"
	"github.com/wricardo/dicerace/game/protocol"
	"github.com/wricardo/dicerace/game/room"
	"github.com/wricardo/dicerace/transport/websocket"
)

// Coordinator binds connections to rooms. It routes inbound frames to room
// operations and turns room events into broadcasts.
type Coordinator struct {
	rooms   *directory.Directory
	hub     Registry
	presets PresetSource
	logger  zerolog.Logger
}

var (
	_ room.Publisher    = (*Coordinator)(nil)
	_ websocket.Handler = (*Coordinator)(nil)
)

// NewCoordinator wires the coordinator in as the directory's publisher and the
// hub's drop callback.
func NewCoordinator(rooms *directory.Directory, hub Registry, presets PresetSource, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		rooms:   rooms,
		hub:     hub,
		presets: presets,
		logger:  logger,
	}
	rooms.SetPublisher(c)
	hub.SetOnDrop(c.Drop)
	return c
}

// Publish encodes a committed batch of room events and broadcasts it.
func (c *Coordinator) Publish(roomID string, events []room.Event) {
	var frames []string
	for _, ev := range events {
		frames = append(frames, protocol.Frames(ev)...)
	}
	if len(frames) == 0 {
		return
	}

	c.logger.Debug().Str("room", roomID).Int("events", len(events)).Int("frames", len(frames)).Msg("publish")
	c.hub.Broadcast(roomID, frames...)
}

// CreateRoom creates a room from a preset, with explicit sizes overriding it.
func (c *Coordinator) CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomInfo, error) {
	preset := c.presets.GetDefault()
	if req.Preset != "" {
		p, err := c.presets.LoadPreset(req.Preset)
		if err != nil {
			return nil, fmt.Errorf("failed to load preset %s: %w", req.Preset, err)
		}
		preset = p
	}

	cfg := preset.RoomConfig()
	if req.MaxPlayers != 0 {
		cfg.MaxPlayers = req.MaxPlayers
	}
	if req.TrackLength != 0 {
		cfg.TrackLength = req.TrackLength
	}

	r, err := c.rooms.Create(req.ID, cfg)
	if err != nil {
		return nil, err
	}
	return c.info(r), nil
}

// ListRooms returns the lobby listing.
func (c *Coordinator) ListRooms(ctx context.Context) []directory.Summary {
	return c.rooms.List()
}

// GetRoom returns a room's current state.
func (c *Coordinator) GetRoom(ctx context.Context, roomID string) (*RoomInfo, error) {
	r, err := c.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	return c.info(r), nil
}

// ListPresets returns the available room presets.
func (c *Coordinator) ListPresets(ctx context.Context) ([]*config.PresetInfo, error) {
	return c.presets.ListPresets()
}

// Join admits identity into roomID before any socket exists, so a full room
// can be refused over plain HTTP.
func (c *Coordinator) Join(ctx context.Context, roomID, identity string) error {
	r, err := c.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if _, err := r.Join(identity); err != nil {
		return err
	}
	return nil
}

// AbortJoin undoes an admission whose socket never came up. A member that
// still has a live endpoint is left alone.
func (c *Coordinator) AbortJoin(roomID, identity string) {
	for _, id := range c.hub.ListIdentities(roomID) {
		if id == identity {
			return
		}
	}
	c.leave(roomID, identity, "aborted join")
}

// Connect binds conn as identity's endpoint in roomID and sends the full room
// state to everyone. The rest of the room saw the join notice at admission,
// before this socket existed, so the joiner gets its own copy here.
func (c *Coordinator) Connect(ctx context.Context, roomID, identity string, conn websocket.Conn) error {
	r, err := c.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if _, err := r.Join(identity); err != nil {
		return err
	}

	c.hub.Register(roomID, identity, conn)
	if err := conn.Send(protocol.Joined(identity)); err != nil {
		c.logger.Debug().Err(err).Str("room", roomID).Str("identity", identity).Msg("join notice not sent")
	}
	r.Sync()

	c.logger.Info().Str("room", roomID).Str("identity", identity).Msg("connected")
	return nil
}

// HandleMessage routes one inbound frame. Rejected game actions are dropped
// without a reply.
func (c *Coordinator) HandleMessage(roomID, identity, text string) {
	r, err := c.rooms.Get(roomID)
	if err != nil {
		c.logger.Debug().Err(err).Str("room", roomID).Str("identity", identity).Msg("message for unknown room")
		return
	}

	cmd := protocol.Parse(text)
	switch cmd.Kind {
	case protocol.Ready:
		err = r.ToggleReady(identity)
	case protocol.Roll:
		var res room.RollResult
		res, err = r.Roll(identity)
		if err == nil && res.Won {
			c.logger.Info().Str("room", roomID).Str("identity", identity).Msg("race won")
		}
	default:
		err = r.Say(identity, cmd.Text)
	}

	if err != nil {
		c.logger.Debug().Err(err).Str("room", roomID).Str("identity", identity).Msg("action rejected")
	}
}

// Disconnect handles a socket that went away. It only leaves the room when
// conn was still identity's current endpoint.
func (c *Coordinator) Disconnect(roomID, identity string, conn websocket.Conn) {
	if !c.hub.Release(roomID, identity, conn) {
		return
	}
	c.leave(roomID, identity, "disconnected")
}

// Drop handles an endpoint the hub already removed after a failed send.
func (c *Coordinator) Drop(roomID, identity string) {
	c.leave(roomID, identity, "dropped")
}

func (c *Coordinator) leave(roomID, identity, reason string) {
	r, err := c.rooms.Get(roomID)
	if err != nil {
		return
	}

	empty := r.Leave(identity)
	c.logger.Info().Str("room", roomID).Str("identity", identity).Bool("room_empty", empty).Msg(reason)
}

func (c *Coordinator) info(r *room.Room) *RoomInfo {
	connected := c.hub.ListIdentities(r.ID())
	if connected == nil {
		connected = []string{}
	}
	return &RoomInfo{Snapshot: r.Snapshot(), Connected: connected}
}
