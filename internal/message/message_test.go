package message

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
)

func TestParseRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"binary":      "\x00\x01\x02garbage",
		"plain text":  "hello there",
		"json array":  `["alert"]`,
		"json string": `"alert"`,
		"truncated":   `{"type":"alert"`,
		"json null":   `null`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Parse(%q) err = %v, want ErrMalformed", raw, err)
			}
		})
	}
}

func TestParseToleratesMistypedFields(t *testing.T) {
	tests := []struct {
		raw       string
		category  Category
		message   string
		alertType string
	}{
		{`{"type":"alert","message":"Pothole","alertType":"pothole","sender":42}`, CategoryAlert, "Pothole", "pothole"},
		{`{"message":"hi","sender":{"name":"x"}}`, CategoryPeer, "hi", ""},
		{`{"type":7,"message":"typed"}`, CategoryPeer, "typed", ""},
		{`{"type":"alert","message":["a"],"alertType":null}`, CategoryAlert, "", ""},
	}
	for _, tt := range tests {
		in, err := Parse([]byte(tt.raw))
		if err != nil {
			t.Errorf("Parse(%s): %v", tt.raw, err)
			continue
		}
		if in.Category() != tt.category || in.Message != tt.message || in.AlertType != tt.alertType {
			t.Errorf("Parse(%s) = %+v (category %q)", tt.raw, in, in.Category())
		}
		if in.Sender != "" {
			t.Errorf("Parse(%s) sender = %q, want empty", tt.raw, in.Sender)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse([]byte("  \n")); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestCategoryResolution(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"", CategoryPeer},
		{"peer", CategoryPeer},
		{"alert", CategoryAlert},
		{"system", CategoryPeer},
		{"chat", CategoryPeer},
		{"connect_request", CategoryConnectRequest},
		{"connect_confirm", CategoryConnectConfirm},
		{"disconnect_request", CategoryDisconnectRequest},
	}
	for _, tt := range tests {
		if got := (Inbound{Type: tt.in}).Category(); got != tt.want {
			t.Errorf("Category(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShapeAlertOverridesSender(t *testing.T) {
	in, err := Parse([]byte(`{"type":"alert","message":"Pothole ahead","alertType":"pothole","sender":"Spoofed"}`))
	if err != nil {
		t.Fatal(err)
	}

	data, err := Encode(Shape(in, "Vehicle B"))
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"type":      "alert",
		"message":   "Pothole ahead",
		"sender":    "Vehicle B",
		"alertType": "pothole",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestShapePeerDefault(t *testing.T) {
	in, err := Parse([]byte(`{"message":"hi","alertType":"ignored"}`))
	if err != nil {
		t.Fatal(err)
	}

	out := Shape(in, "Vehicle A")
	peer, ok := out.(Peer)
	if !ok {
		t.Fatalf("Shape returned %T, want Peer", out)
	}
	if peer.Type != CategoryPeer || peer.Message != "hi" || peer.Sender != "Vehicle A" {
		t.Errorf("unexpected peer: %+v", peer)
	}
}

func TestShapeHandshakeEchoesTimestampVerbatim(t *testing.T) {
	in, err := Parse([]byte(`{"type":"connect_request","timestamp":1712345678901.5,"message":"dropped"}`))
	if err != nil {
		t.Fatal(err)
	}

	out := Shape(in, "Vehicle A")
	if !out.Category().IsHandshake() {
		t.Fatalf("category %q is not a handshake", out.Category())
	}
	data, err := Encode(out)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"connect_request","sender":"Vehicle A","timestamp":1712345678901.5}`
	if string(data) != want {
		t.Errorf("encoded = %s, want %s", data, want)
	}
}

func TestShapeHandshakeWithoutTimestamp(t *testing.T) {
	data, err := Encode(Shape(Inbound{Type: "disconnect_request"}, "Vehicle B"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"disconnect_request","sender":"Vehicle B"}` {
		t.Errorf("encoded = %s", data)
	}
}

func TestAnnouncements(t *testing.T) {
	w := Welcome("Vehicle A", 1)
	if w.Message != "Connected as Vehicle A. 1 vehicle(s) in network." || w.VehicleID != "Vehicle A" || w.VehicleCount != 1 {
		t.Errorf("welcome = %+v", w)
	}
	if got := Joined("Vehicle B").Message; got != "Vehicle B joined the V2V network" {
		t.Errorf("joined = %q", got)
	}
	if got := Left("Vehicle A").Message; got != "Vehicle A left the V2V network" {
		t.Errorf("left = %q", got)
	}
	if Left("x").Category() != CategorySystem {
		t.Error("announcements must be system category")
	}
}
