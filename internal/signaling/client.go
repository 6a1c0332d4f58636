package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zakirhyder/huddle/internal/coordinator"
	"github.com/zakirhyder/huddle/internal/dns"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024

	connectTimeout    = 10 * time.Second
	reconnectAttempts = 3
	reconnectBackoff  = 2 * time.Second
)

// Client manages the WebSocket connection to the coordinator. It survives a
// dropped connection: the pumps exit, Dropped fires, and Reconnect can swap
// in a fresh connection while Incoming and the outbound queue stay valid.
type Client struct {
	serverURL string
	incoming  chan *coordinator.Envelope
	outgoing  chan *coordinator.Envelope
	dropped   chan struct{}
	done      chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewClient creates a signaling client for the given ws:// or wss:// URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *coordinator.Envelope, 64),
		outgoing:  make(chan *coordinator.Envelope, 64),
		dropped:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return &TransportError{Code: CodeConnectTimeout, Err: err}
		}
		return &TransportError{Code: CodeConnectFailed, Err: err}
	}
	c.attach(conn)
	return nil
}

// Reconnect re-dials with a bounded number of attempts and restarts the
// pumps. After the attempts are exhausted the failure is terminal for the
// session and surfaced with SIGNALING_RECONNECT_FAILED.
func (c *Client) Reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		conn, err := c.dial(ctx)
		if err == nil {
			c.attach(conn)
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return &TransportError{Code: CodeReconnectFailed, Err: ctx.Err()}
		case <-c.done:
			return &TransportError{Code: CodeReconnectFailed, Err: errors.New("client closed")}
		case <-time.After(reconnectBackoff):
		}
	}
	return &TransportError{Code: CodeReconnectFailed, Err: lastErr}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = connectTimeout
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		resolved, err := dns.Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		d := new(net.Dialer)
		return d.DialContext(ctx, network, net.JoinHostPort(resolved, port))
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// attach installs a live connection and starts its pumps. connDone ties both
// pumps to this particular connection so a reconnect never leaves a stale
// writer behind.
func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	connDone := make(chan struct{})
	go c.readPump(conn, connDone)
	go c.writePump(conn, connDone)
}

func (c *Client) readPump(conn *websocket.Conn, connDone chan struct{}) {
	defer func() {
		close(connDone)
		conn.Close()
		select {
		case c.dropped <- struct{}{}:
		default:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env coordinator.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		select {
		case c.incoming <- &env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, connDone chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-connDone:
			return

		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// SendMessage queues an envelope for the coordinator.
func (c *Client) SendMessage(env *coordinator.Envelope) {
	select {
	case c.outgoing <- env:
	case <-c.done:
	}
}

// Incoming returns the channel of coordinator envelopes.
func (c *Client) Incoming() <-chan *coordinator.Envelope {
	return c.incoming
}

// Dropped fires when the active connection is lost.
func (c *Client) Dropped() <-chan struct{} {
	return c.dropped
}

// Done fires when the client has been closed for good.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down and stops the pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
