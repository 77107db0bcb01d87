// internal/hub/websocket.go
package hub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ServeWs upgrades the HTTP connection to a WebSocket and registers the client.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Errorf("WebSocket upgrade error from %s: %v", r.RemoteAddr, err)
		return
	}

	client := newClient(conn, h.server.SendBuffer)
	if !h.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.server.WriteWait))
		conn.Close()
		return
	}
	go h.WritePump(client)
	go h.ReadPump(client)
}

// ReadPump reads frames from the WebSocket connection and hands them to the
// hub. Any read error means the transport is closed.
func (h *Hub) ReadPump(client *Client) {
	defer func() {
		client.markClosed()
		h.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(h.server.MaxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(h.server.PongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(h.server.PongWait))
		return nil
	})

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Logger.Errorf("WebSocket error for %s: %v", client.ID, err)
			}
			return
		}

		client.Conn.SetReadDeadline(time.Now().Add(h.server.PongWait))
		if !h.Deliver(client, data) {
			return
		}
	}
}

// WritePump writes queued messages to the WebSocket connection, one JSON
// document per frame, and keeps the connection alive with pings.
func (h *Hub) WritePump(client *Client) {
	ticker := time.NewTicker(h.server.PingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(h.server.WriteWait))
			if !ok {
				// The hub closed the channel.
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(h.server.WriteWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Client connection is likely broken
			}
		}
	}
}
