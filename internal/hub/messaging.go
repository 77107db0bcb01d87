// internal/hub/messaging.go
package hub

import (
	"fmt"

	"github.com/erilali/v2vrelay/internal/message"
)

// accept names a newly connected vehicle, welcomes it and announces it to
// everyone else.
func (h *Hub) accept(c *Client) {
	h.prune()

	c.Identity = Identity(len(h.order), h.relay.ReservedLabels, h.relay.LabelPrefix)
	h.insert(c)
	count := len(h.order)

	h.send(c, message.Welcome(c.Identity, count))
	h.broadcast(c, message.Joined(c.Identity))

	h.metrics.Connected(count)
	h.Logger.LogEvent("info", "vehicle_connected", c.Identity, fmt.Sprintf("%d vehicle(s) in network", count))
	h.publishJoined(c, count)
}

// remove handles a closed transport. Entries already pruned are ignored, so
// a leave is announced at most once per vehicle.
func (h *Hub) remove(c *Client) {
	if !h.drop(c) {
		return
	}
	count := len(h.order)

	h.broadcast(nil, message.Left(c.Identity))

	h.metrics.Disconnected(count)
	h.Logger.LogEvent("info", "vehicle_disconnected", c.Identity, fmt.Sprintf("%d vehicle(s) in network", count))
	h.publishLeft(c, count)
}

// relayFrom parses a payload from c and fans it out to every other open
// member. Malformed payloads are logged and dropped; c stays connected.
func (h *Hub) relayFrom(c *Client, data []byte) {
	in, err := message.Parse(data)
	if err != nil {
		h.metrics.Malformed()
		h.Logger.LogEvent("warn", "malformed_payload", c.label(), err.Error())
		return
	}

	sender := h.resolveSender(c, in)
	category := in.Category()
	h.metrics.Received(string(category))

	out := message.Shape(in, sender)
	delivered := h.broadcast(c, out)

	h.Logger.LogEvent("debug", "message_relayed", sender, fmt.Sprintf("[%s] %s (%d recipient(s))", category, in.Message, delivered))
	h.publishRelayed(sender, category, delivered)
}

// resolveSender returns the hub-assigned identity of c. The client-declared
// sender is only used when c has no membership entry.
func (h *Hub) resolveSender(c *Client, in message.Inbound) string {
	if entry, ok := h.clients[c.ID]; ok {
		return entry.Identity
	}
	h.Logger.LogEvent("warn", "sender_unresolved", c.ID.String(), "no membership entry for originating connection")
	if in.Sender != "" {
		return in.Sender
	}
	return h.relay.FallbackSender
}

// broadcast queues out to every open member except exclude and returns the
// number of successful deliveries. A failed delivery does not affect others.
func (h *Hub) broadcast(exclude *Client, out message.Outbound) int {
	data, err := message.Encode(out)
	if err != nil {
		h.Logger.Errorf("Dropping %s broadcast: %v", out.Category(), err)
		return 0
	}

	delivered := 0
	for _, id := range h.order {
		c := h.clients[id]
		if c == exclude || !c.IsOpen() {
			continue
		}
		if h.enqueue(c, data) {
			delivered++
		}
	}
	h.metrics.Delivered(delivered)
	return delivered
}

// send queues out for a single client.
func (h *Hub) send(c *Client, out message.Outbound) bool {
	data, err := message.Encode(out)
	if err != nil {
		h.Logger.Errorf("Dropping %s message for %s: %v", out.Category(), c.label(), err)
		return false
	}
	if !h.enqueue(c, data) {
		return false
	}
	h.metrics.Delivered(1)
	return true
}

// enqueue never blocks: a full queue loses this one message and nothing else.
func (h *Hub) enqueue(c *Client, data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		h.metrics.DeliveryFailed()
		h.Logger.Warnf("Send queue full for %s, message dropped", c.label())
		return false
	}
}
