// internal/hub/hub.go
// Provides the Hub: sole owner of vehicle membership, serializing accept, relay and disconnect events.
package hub

import (
	"context"
	"net/http"

	"github.com/erilali/v2vrelay/internal/logger"
	"github.com/erilali/v2vrelay/internal/metrics"
	"github.com/erilali/v2vrelay/internal/util"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

// frame is one inbound payload together with the client that sent it.
type frame struct {
	client *Client
	data   []byte
}

// Options configures a Hub. Logger defaults to a "hub" component logger;
// NatsConn and Metrics may be nil.
type Options struct {
	Server        util.ServerConfig
	Relay         util.RelayConfig
	Logger        *logger.Logger
	NatsConn      *nats.Conn
	SubjectPrefix string
	Metrics       *metrics.Registry
}

// Hub tracks connected vehicles and relays messages between them.
// Membership is only ever touched from the Run goroutine.
type Hub struct {
	clients map[uuid.UUID]*Client
	order   []uuid.UUID // insertion order, for positional naming and stable fan-out

	register   chan *Client
	unregister chan *Client
	inbound    chan frame
	snapshots  chan chan []Member
	done       chan struct{}

	server        util.ServerConfig
	relay         util.RelayConfig
	natsConn      *nats.Conn
	subjectPrefix string
	metrics       *metrics.Registry
	upgrader      websocket.Upgrader
	Logger        *logger.Logger
}

// NewHub creates a Hub. Call Run exactly once to start its event loop.
func NewHub(opts Options) *Hub {
	cfg := util.DefaultConfig()
	cfg.Server, cfg.Relay = opts.Server, opts.Relay
	cfg.NATS.SubjectPrefix = opts.SubjectPrefix
	// Rejected labels were already reported when the config was loaded.
	cfg, _ = util.Sanitize(cfg)
	log := opts.Logger
	if log == nil {
		log = logger.NewLogger("hub")
	}

	return &Hub{
		clients:       make(map[uuid.UUID]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan frame),
		snapshots:     make(chan chan []Member),
		done:          make(chan struct{}),
		server:        cfg.Server,
		relay:         cfg.Relay,
		natsConn:      opts.NatsConn,
		subjectPrefix: cfg.NATS.SubjectPrefix,
		metrics:       opts.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// No authentication or origin policy: any vehicle may join.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		Logger: log,
	}
}

// Run is the hub's event loop. Each accept, inbound message and disconnect
// is processed to completion before the next one is taken. Run returns when
// ctx is cancelled, after closing every client's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.accept(client)

		case client := <-h.unregister:
			h.remove(client)

		case f := <-h.inbound:
			h.relayFrom(f.client, f.data)

		case reply := <-h.snapshots:
			reply <- h.members()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register hands a new client to the event loop. It returns false if the
// hub has already stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister reports that c's transport has closed.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Deliver queues an inbound payload from c for relaying.
func (h *Hub) Deliver(c *Client, data []byte) bool {
	select {
	case h.inbound <- frame{client: c, data: data}:
		return true
	case <-h.done:
		return false
	}
}

// Members returns a snapshot of the current membership in join order.
func (h *Hub) Members() []Member {
	reply := make(chan []Member, 1)
	select {
	case h.snapshots <- reply:
	case <-h.done:
		return nil
	}
	select {
	case m := <-reply:
		return m
	case <-h.done:
		return nil
	}
}

// Count returns the number of vehicles currently in the network.
func (h *Hub) Count() int {
	return len(h.Members())
}

// --- owned by Run ------------------------------------------------------------

func (h *Hub) insert(c *Client) {
	h.clients[c.ID] = c
	h.order = append(h.order, c.ID)
}

// drop removes c from membership and closes its queue. It reports whether
// c was a member.
func (h *Hub) drop(c *Client) bool {
	if _, ok := h.clients[c.ID]; !ok {
		return false
	}
	delete(h.clients, c.ID)
	for i, id := range h.order {
		if id == c.ID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	close(c.Send)
	return true
}

// prune drops entries whose transport already reported closure but whose
// unregister has not been processed yet.
func (h *Hub) prune() {
	var stale []*Client
	for _, id := range h.order {
		if c := h.clients[id]; !c.IsOpen() {
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		h.drop(c)
		h.Logger.Debugf("Pruned stale entry %s", c.label())
	}
	if len(stale) > 0 {
		h.metrics.Active(len(h.order))
	}
}

func (h *Hub) members() []Member {
	out := make([]Member, 0, len(h.order))
	for _, id := range h.order {
		c := h.clients[id]
		out = append(out, Member{ID: c.ID.String(), Identity: c.Identity, ConnectedAt: c.ConnectedAt})
	}
	return out
}

func (h *Hub) closeAll() {
	for _, id := range h.order {
		close(h.clients[id].Send)
	}
	n := len(h.order)
	h.clients = make(map[uuid.UUID]*Client)
	h.order = nil
	h.metrics.Active(0)
	h.Logger.Infof("Hub stopped, closed %d connection(s)", n)
}
