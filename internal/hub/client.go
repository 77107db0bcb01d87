// internal/hub/client.go
package hub

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one connected vehicle. Identity is written and read only by the
// hub's Run goroutine; the pumps refer to a client by ID.
type Client struct {
	ID          uuid.UUID
	Identity    string
	ConnectedAt time.Time
	Conn        *websocket.Conn
	Send        chan []byte

	open atomic.Bool
}

func newClient(conn *websocket.Conn, buffer int) *Client {
	c := &Client{
		ID:          uuid.New(),
		ConnectedAt: time.Now(),
		Conn:        conn,
		Send:        make(chan []byte, buffer),
	}
	c.open.Store(true)
	return c
}

// IsOpen reports whether the transport has not yet signalled closure.
func (c *Client) IsOpen() bool {
	return c.open.Load()
}

func (c *Client) markClosed() {
	c.open.Store(false)
}

// label is the best name available for logging: the identity once the hub
// has assigned one, otherwise the connection id.
func (c *Client) label() string {
	if c.Identity != "" {
		return c.Identity
	}
	return c.ID.String()
}

// Member is a read-only view of a membership entry.
type Member struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	ConnectedAt time.Time `json:"connectedAt"`
}
