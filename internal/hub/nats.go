// internal/hub/nats.go
package hub

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/erilali/v2vrelay/internal/message"
)

// vehicleEvent is mirrored to NATS on join and leave.
type vehicleEvent struct {
	ID        string `json:"id"`
	Vehicle   string `json:"vehicle"`
	Count     int    `json:"count"`
	Timestamp int64  `json:"timestamp"`
}

// relayEvent is mirrored to NATS for each relayed message. It carries no
// message body.
type relayEvent struct {
	Sender     string `json:"sender"`
	Category   string `json:"category"`
	Recipients int    `json:"recipients"`
	Timestamp  int64  `json:"timestamp"`
}

func (h *Hub) subject(parts ...string) string {
	return strings.Join(append([]string{h.subjectPrefix}, parts...), ".")
}

// publishJoined publishes a vehicle join to NATS
func (h *Hub) publishJoined(c *Client, count int) {
	h.publish(h.subject("vehicles", "joined"), vehicleEvent{
		ID:        c.ID.String(),
		Vehicle:   c.Identity,
		Count:     count,
		Timestamp: time.Now().Unix(),
	})
}

// publishLeft publishes a vehicle leave to NATS
func (h *Hub) publishLeft(c *Client, count int) {
	h.publish(h.subject("vehicles", "left"), vehicleEvent{
		ID:        c.ID.String(),
		Vehicle:   c.Identity,
		Count:     count,
		Timestamp: time.Now().Unix(),
	})
}

// publishRelayed publishes a relay summary to NATS
func (h *Hub) publishRelayed(sender string, category message.Category, recipients int) {
	h.publish(h.subject("messages", string(category)), relayEvent{
		Sender:     sender,
		Category:   string(category),
		Recipients: recipients,
		Timestamp:  time.Now().Unix(),
	})
}

// publish is fire-and-forget; NATS trouble never affects relaying.
func (h *Hub) publish(subject string, payload interface{}) {
	if h.natsConn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.Logger.Errorf("Failed to marshal %s event: %v", subject, err)
		return
	}
	if err := h.natsConn.Publish(subject, data); err != nil {
		h.Logger.Errorf("Failed to publish %s to NATS: %v", subject, err)
	}
}
