package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer     = 32
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Client is one websocket connection. Messages queued on send are written
// by WritePump; a client whose queue is full is dropped.
type Client struct {
	PlayerID string

	conn *websocket.Conn
	send chan any

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, playerID string) *Client {
	return &Client{
		PlayerID: playerID,
		conn:     conn,
		send:     make(chan any, sendBuffer),
	}
}

// trySend queues msg without blocking. It reports false if the client is
// closed or too slow to keep up.
func (c *Client) trySend(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump feeds incoming messages to the lobby until the connection fails,
// then disconnects the client.
func (c *Client) ReadPump(l *Lobby) {
	defer func() {
		l.Exit(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		l.Route(c, data)
	}
}

func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
