package coordinator

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Generous enough for SDP
	// blobs and full whiteboard snapshots.
	maxMessageSize = 256 * 1024
)

// Client wraps a single websocket connection. The hub addresses it by ID;
// room state only ever stores the ID, never the pointer.
type Client struct {
	// ID is the connection id, assigned at upgrade time.
	ID string

	Hub  *Hub
	Conn *websocket.Conn

	// RoomID and UserID are set by the hub once the join handshake
	// succeeds. Only the hub goroutine touches them.
	RoomID string
	UserID string

	// Send is the buffered outbound queue drained by WritePump.
	Send chan *Envelope
}

// ReadPump pumps envelopes from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine, which keeps at
// most one reader on the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env Envelope
		if err := c.Conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("read error", "conn", c.ID, "error", err)
			}
			break
		}

		env.sender = c
		c.Hub.Inbound <- &env
	}
}

// WritePump pumps envelopes from the hub to the websocket connection and
// keeps the connection alive with periodic pings. One goroutine per
// connection, so there is at most one writer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(env); err != nil {
				slog.Debug("write error", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
