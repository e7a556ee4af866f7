package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Chat is capped further up, so
	// this only has to stop abusive frames.
	maxMessageSize = 16 << 10

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a websocket endpoint for one identity in one room.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	limiter  *rate.Limiter
	handler  Handler
	roomID   string
	identity string
}

// Send queues a frame for the write pump without blocking.
func (c *Client) Send(frame string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- []byte(frame):
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Serve upgrades the request and attaches the socket to roomID as identity.
// The handler's Connect runs once the write pump is up so the initial state
// frames go straight out. Only a failed upgrade is returned; the upgrader has
// already written the HTTP error by then.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID, identity string, handler Handler) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("room", roomID).Msg("websocket upgrade failed")
		return err
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(h.limit, h.burst),
		handler:  handler,
		roomID:   roomID,
		identity: identity,
	}

	go client.writePump()

	if err := handler.Connect(context.WithoutCancel(r.Context()), roomID, identity, client); err != nil {
		h.logger.Info().Err(err).Str("room", roomID).Str("identity", identity).Msg("connect rejected")
		client.Close()
		return nil
	}

	go client.readPump()
	return nil
}

// readPump forwards inbound frames to the handler until the socket fails.
func (c *Client) readPump() {
	defer func() {
		c.handler.Disconnect(c.roomID, c.identity, c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("room", c.roomID).Str("identity", c.identity).Msg("websocket read error")
			}
			return
		}

		if !c.limiter.Allow() {
			c.hub.logger.Debug().Str("room", c.roomID).Str("identity", c.identity).Msg("inbound frame rate limited")
			continue
		}

		c.handler.HandleMessage(c.roomID, c.identity, string(message))
	}
}

// writePump writes queued frames, one websocket message each, and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
