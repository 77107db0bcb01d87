package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erilali/v2vrelay/internal/hub"
	"github.com/erilali/v2vrelay/internal/logger"
	"github.com/erilali/v2vrelay/internal/metrics"
	"github.com/erilali/v2vrelay/internal/util"
	"github.com/gorilla/websocket"
	"github.com/prometheus/common/expfmt"
)

func startRouter(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	reg := metrics.New()
	h := hub.NewHub(hub.Options{Logger: logger.Nop(), Metrics: reg})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(NewRouter(h, reg, nil, logger.Nop()))
	t.Cleanup(func() {
		cancel()
		<-h.Done()
		srv.Close()
	})
	return srv, h
}

func getJSON(t *testing.T, url string, v interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp
}

func dialPath(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome map[string]interface{}
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("welcome on %s: %v", path, err)
	}
	return conn
}

func TestHealthReportsVehicles(t *testing.T) {
	srv, _ := startRouter(t)

	var health map[string]interface{}
	resp := getJSON(t, srv.URL+"/health", &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	if health["status"] != "ok" || health["nats"] != "disabled" || health["vehicles"] != float64(0) {
		t.Errorf("health = %v", health)
	}

	dialPath(t, srv, "/")
	getJSON(t, srv.URL+"/health", &health)
	if health["vehicles"] != float64(1) {
		t.Errorf("vehicles after connect = %v", health["vehicles"])
	}
}

func TestWebSocketOnRootAndWsPath(t *testing.T) {
	srv, h := startRouter(t)

	dialPath(t, srv, "/")
	dialPath(t, srv, "/ws")

	var vehicles []hub.Member
	getJSON(t, srv.URL+"/api/vehicles", &vehicles)
	if len(vehicles) != 2 {
		t.Fatalf("vehicles = %+v", vehicles)
	}
	if vehicles[0].Identity != "Vehicle A" || vehicles[1].Identity != "Vehicle B" {
		t.Errorf("identities = %q, %q", vehicles[0].Identity, vehicles[1].Identity)
	}
	if vehicles[0].ConnectedAt.IsZero() || vehicles[0].ID == "" {
		t.Errorf("entry missing fields: %+v", vehicles[0])
	}
	if h.Count() != 2 {
		t.Errorf("count = %d", h.Count())
	}
}

func TestRootUpgradeTokenIsCaseInsensitive(t *testing.T) {
	srv, _ := startRouter(t)

	for _, token := range []string{"websocket", "WebSocket", "WEBSOCKET"} {
		t.Run(token, func(t *testing.T) {
			conn, err := net.Dial("tcp", srv.Listener.Addr().String())
			if err != nil {
				t.Fatal(err)
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(2 * time.Second))

			handshake := "GET / HTTP/1.1\r\n" +
				"Host: " + srv.Listener.Addr().String() + "\r\n" +
				"Upgrade: " + token + "\r\n" +
				"Connection: Upgrade\r\n" +
				"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
				"Sec-WebSocket-Version: 13\r\n\r\n"
			if _, err := conn.Write([]byte(handshake)); err != nil {
				t.Fatal(err)
			}

			resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
			if err != nil {
				t.Fatalf("read response: %v", err)
			}
			if resp.StatusCode != http.StatusSwitchingProtocols {
				t.Errorf("status = %d, want 101", resp.StatusCode)
			}
		})
	}
}

func TestRootWithoutUpgradeServesBanner(t *testing.T) {
	srv, _ := startRouter(t)

	var banner map[string]interface{}
	getJSON(t, srv.URL+"/", &banner)
	if banner["service"] != "v2v-relay" || banner["websocket"] != "/ws" {
		t.Errorf("banner = %v", banner)
	}
}

func TestEmptyVehicleListIsArray(t *testing.T) {
	srv, _ := startRouter(t)

	resp, err := http.Get(srv.URL + "/api/vehicles")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[]" {
		t.Errorf("body = %s, want []", raw)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := startRouter(t)
	dialPath(t, srv, "/ws")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(resp.Body)
	if err != nil {
		t.Fatalf("parse metrics: %v", err)
	}
	mf, ok := mfs[metrics.ConnectionsTotal]
	if !ok {
		t.Fatalf("missing %s", metrics.ConnectionsTotal)
	}
	if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("%s = %v", metrics.ConnectionsTotal, v)
	}
}

func TestStartServerStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- StartServer(ctx, cfg, logger.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("StartServer: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("StartServer did not return after cancel")
	}
}

// testConfig listens on an ephemeral port with NATS disabled.
func testConfig() util.Config {
	cfg := util.DefaultConfig()
	cfg.Server.Port = 0
	cfg.NATS.Enabled = false
	return cfg
}
