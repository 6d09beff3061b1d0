package hub

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait bounds a single frame write
	writeWait = 10 * time.Second

	// pongWait is how long a display may stay silent before it is dropped
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds client → server messages; displays only send pongs
	maxMessageSize = 4 * 1024

	// sendBuffer is how many messages a client may fall behind before it is
	// dropped (a few seconds of gaze at 20 Hz)
	sendBuffer = 64
)

// conn is the part of *websocket.Conn the pumps use
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one display connected to a hub
type Client struct {
	hub  *Hub
	conn conn
	send chan Message

	// closed by readPump when the peer goes away
	done chan struct{}
}

// NewClient creates a client for conn and registers it with the hub.
// The hub must be running.
func NewClient(hub *Hub, c *websocket.Conn) *Client {
	return newClient(hub, c)
}

func newClient(hub *Hub, c conn) *Client {
	client := &Client{
		hub:  hub,
		conn: c,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}
	hub.register <- client
	return client
}

// Run pumps messages until the connection closes or the hub drops the
// client. It returns only after both pumps have stopped touching the
// connection, so the websocket handler may return (and release the
// connection) as soon as Run does.
func (c *Client) Run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	c.readPump()
	wg.Wait()
}

// readPump reads until the connection fails, then unregisters the client
// and tells writePump to stop.
func (c *Client) readPump() {
	defer func() {
		close(c.done)
		select {
		case c.hub.unregister <- c:
		case <-time.After(time.Second):
			// Hub already stopped
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine that writes to the connection, and the
// only one that closes it. Closing unblocks readPump when the hub drops the
// client first.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
