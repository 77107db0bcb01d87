// internal/message/message.go
// Wire envelope exchanged between vehicles and the relay, and the outbound variants built from it.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Category discriminates message shape on the wire (the "type" field).
type Category string

const (
	CategoryAlert             Category = "alert"
	CategoryPeer              Category = "peer"
	CategorySystem            Category = "system"
	CategoryConnectRequest    Category = "connect_request"
	CategoryConnectConfirm    Category = "connect_confirm"
	CategoryDisconnectRequest Category = "disconnect_request"
)

// IsHandshake reports whether c is one of the connection-management
// categories the relay passes through without tracking any pairing state.
func (c Category) IsHandshake() bool {
	switch c {
	case CategoryConnectRequest, CategoryConnectConfirm, CategoryDisconnectRequest:
		return true
	}
	return false
}

var (
	ErrEmpty     = errors.New("empty payload")
	ErrMalformed = errors.New("malformed payload")
)

// Inbound is a client-sent envelope as decoded from the wire.
type Inbound struct {
	Type      string          `json:"type,omitempty"`
	Message   string          `json:"message,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	AlertType string          `json:"alertType,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Parse decodes one frame. Anything that is not a JSON object is rejected.
// Fields holding a value of the wrong JSON type read as empty, so a stray
// sender or type never costs the whole message.
func Parse(data []byte) (Inbound, error) {
	var in Inbound
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return in, ErrEmpty
	}
	if trimmed[0] != '{' {
		return in, errors.Wrap(ErrMalformed, "expected a JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return in, errors.Wrap(ErrMalformed, err.Error())
	}

	in.Type = text(fields["type"])
	in.Message = text(fields["message"])
	in.Sender = text(fields["sender"])
	in.AlertType = text(fields["alertType"])
	in.Timestamp = fields["timestamp"]
	return in, nil
}

// text returns raw as a string when it is a JSON string, otherwise "".
func text(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Category resolves the declared type. Missing, unknown and client-sent
// system types all fall back to peer.
func (in Inbound) Category() Category {
	c := Category(in.Type)
	if c == CategoryAlert || c.IsHandshake() {
		return c
	}
	return CategoryPeer
}

// Outbound is a message the relay sends. The set of implementations is closed.
type Outbound interface {
	Category() Category
	outbound()
}

type Alert struct {
	Type      Category `json:"type"`
	Message   string   `json:"message"`
	Sender    string   `json:"sender"`
	AlertType string   `json:"alertType,omitempty"`
}

type Peer struct {
	Type    Category `json:"type"`
	Message string   `json:"message"`
	Sender  string   `json:"sender"`
}

// Handshake covers connect_request, connect_confirm and disconnect_request.
type Handshake struct {
	Type      Category        `json:"type"`
	Sender    string          `json:"sender"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// System is server-originated only: welcome, join and leave notices.
type System struct {
	Type         Category `json:"type"`
	Message      string   `json:"message"`
	VehicleID    string   `json:"vehicleId,omitempty"`
	VehicleCount int      `json:"vehicleCount,omitempty"`
}

func (a Alert) Category() Category     { return CategoryAlert }
func (p Peer) Category() Category      { return CategoryPeer }
func (h Handshake) Category() Category { return h.Type }
func (s System) Category() Category    { return CategorySystem }

func (Alert) outbound()     {}
func (Peer) outbound()      {}
func (Handshake) outbound() {}
func (System) outbound()    {}

// Shape builds the outbound variant for in, stamped with the resolved sender.
func Shape(in Inbound, sender string) Outbound {
	c := in.Category()
	switch {
	case c == CategoryAlert:
		return Alert{Type: c, Message: in.Message, Sender: sender, AlertType: in.AlertType}
	case c.IsHandshake():
		return Handshake{Type: c, Sender: sender, Timestamp: in.Timestamp}
	default:
		return Peer{Type: CategoryPeer, Message: in.Message, Sender: sender}
	}
}

func Welcome(identity string, count int) System {
	return System{
		Type:         CategorySystem,
		Message:      fmt.Sprintf("Connected as %s. %d vehicle(s) in network.", identity, count),
		VehicleID:    identity,
		VehicleCount: count,
	}
}

func Joined(identity string) System {
	return System{Type: CategorySystem, Message: fmt.Sprintf("%s joined the V2V network", identity)}
}

func Left(identity string) System {
	return System{Type: CategorySystem, Message: fmt.Sprintf("%s left the V2V network", identity)}
}

// Encode marshals an outbound message for the wire.
func Encode(out Outbound) ([]byte, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s message", out.Category())
	}
	return data, nil
}
