// internal/api/api.go
// Provides StartServer and the HTTP surface of the relay: WebSocket endpoint, health, metrics and membership.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/erilali/v2vrelay/internal/hub"
	"github.com/erilali/v2vrelay/internal/logger"
	"github.com/erilali/v2vrelay/internal/metrics"
	"github.com/erilali/v2vrelay/internal/util"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Version is reported by /health and the version command.
var Version = "dev"

const (
	natsConnectTimeout = 2 * time.Second
	natsReconnectWait  = 2 * time.Second
)

// Relay is what the router needs from the hub.
type Relay interface {
	ServeWs(http.ResponseWriter, *http.Request)
	Members() []hub.Member
}

// NewRouter builds the HTTP routes. WebSocket upgrades are accepted on "/"
// as well as "/ws"; reg and nc may be nil.
func NewRouter(relay Relay, reg *metrics.Registry, nc *nats.Conn, serverLogger *logger.Logger) *mux.Router {
	r := mux.NewRouter()

	upgrade := http.HandlerFunc(relay.ServeWs)
	r.Path("/").MatcherFunc(isUpgrade).Handler(upgrade)
	r.Path("/ws").Handler(upgrade)

	r.Path("/").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, serverLogger, map[string]interface{}{
			"service":   "v2v-relay",
			"version":   Version,
			"websocket": "/ws",
		})
	})

	r.Path("/health").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		natsStatus := "disabled"
		if nc != nil {
			natsStatus = "disconnected"
			if nc.Status() == nats.CONNECTED {
				natsStatus = "connected"
			}
		}
		writeJSON(w, serverLogger, map[string]interface{}{
			"status":   "ok",
			"nats":     natsStatus,
			"vehicles": len(relay.Members()),
			"version":  Version,
		})
	})

	r.Path("/api/vehicles").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		members := relay.Members()
		if members == nil {
			members = []hub.Member{}
		}
		writeJSON(w, serverLogger, members)
	})

	if reg != nil {
		r.Path("/metrics").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", metrics.ContentType())
			if err := reg.WriteText(w); err != nil {
				serverLogger.Errorf("Error writing metrics: %v", err)
			}
		})
	}

	return r
}

// isUpgrade matches WebSocket handshakes the way the upgrader does, with the
// Upgrade and Connection tokens compared case-insensitively.
func isUpgrade(r *http.Request, _ *mux.RouteMatch) bool {
	return websocket.IsWebSocketUpgrade(r)
}

func writeJSON(w http.ResponseWriter, serverLogger *logger.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		serverLogger.Errorf("Error encoding response: %v", err)
	}
}

// connectNATS connects when enabled. Failure is logged and the relay runs
// without the event mirror.
func connectNATS(cfg util.NATSConfig, serverLogger *logger.Logger) *nats.Conn {
	if !cfg.Enabled {
		serverLogger.Info("NATS event mirror disabled")
		return nil
	}

	serverLogger.Infof("Connecting to NATS at %s", cfg.URL)
	nc, err := nats.Connect(cfg.URL,
		nats.Name("v2v-relay"),
		nats.Timeout(natsConnectTimeout),
		nats.ReconnectWait(natsReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				serverLogger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			serverLogger.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		serverLogger.Errorf("Error connecting to NATS: %v", err)
		serverLogger.Warn("Running without NATS connection. Event mirroring will be disabled.")
		return nil
	}
	serverLogger.Info("Successfully connected to NATS")
	return nc
}

// StartServer runs the relay until ctx is cancelled, then shuts the HTTP
// server and the hub down.
func StartServer(ctx context.Context, cfg util.Config, serverLogger *logger.Logger) error {
	nc := connectNATS(cfg.NATS, serverLogger)
	if nc != nil {
		defer nc.Close()
	}

	reg := metrics.New()
	h := hub.NewHub(hub.Options{
		Server:        cfg.Server,
		Relay:         cfg.Relay,
		Logger:        logger.NewLogger("hub"),
		NatsConn:      nc,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Metrics:       reg,
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go h.Run(hubCtx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h, reg, nc, serverLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		serverLogger.Infof("V2V relay listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stopHub()
		<-h.Done()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", addr)
		}
		return nil
	case <-ctx.Done():
	}

	serverLogger.Info("Shutting down relay...")
	// Hijacked WebSocket connections are not tracked by Shutdown; stopping
	// the hub closes them.
	stopHub()
	<-h.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	serverLogger.Info("Relay stopped")
	return nil
}
