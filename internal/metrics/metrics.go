// internal/metrics/metrics.go
// Relay counters exposed in the Prometheus text format.
package metrics

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	ConnectionsTotal      = "v2v_connections_total"
	DisconnectionsTotal   = "v2v_disconnections_total"
	MessagesReceivedTotal = "v2v_messages_received_total"
	DeliveriesTotal       = "v2v_deliveries_total"
	DeliveriesFailedTotal = "v2v_deliveries_failed_total"
	MalformedTotal        = "v2v_malformed_payloads_total"
	VehiclesConnected     = "v2v_vehicles_connected"
)

// Registry is safe for concurrent use. A nil *Registry ignores every update.
type Registry struct {
	connections    atomic.Uint64
	disconnections atomic.Uint64
	deliveries     atomic.Uint64
	failed         atomic.Uint64
	malformed      atomic.Uint64
	vehicles       atomic.Int64

	mu       sync.Mutex
	received map[string]uint64 // by category
}

func New() *Registry {
	return &Registry{received: make(map[string]uint64)}
}

func (r *Registry) Connected(active int) {
	if r == nil {
		return
	}
	r.connections.Add(1)
	r.vehicles.Store(int64(active))
}

func (r *Registry) Disconnected(active int) {
	if r == nil {
		return
	}
	r.disconnections.Add(1)
	r.vehicles.Store(int64(active))
}

// Active records the membership size after a prune.
func (r *Registry) Active(active int) {
	if r == nil {
		return
	}
	r.vehicles.Store(int64(active))
}

func (r *Registry) Received(category string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.received[category]++
	r.mu.Unlock()
}

func (r *Registry) Delivered(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.deliveries.Add(uint64(n))
}

func (r *Registry) DeliveryFailed() {
	if r == nil {
		return
	}
	r.failed.Add(1)
}

func (r *Registry) Malformed() {
	if r == nil {
		return
	}
	r.malformed.Add(1)
}

// Gather snapshots every metric as a client_model family, sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	categories := make([]string, 0, len(r.received))
	for c := range r.received {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	byCategory := make([]*dto.Metric, 0, len(categories))
	for _, c := range categories {
		byCategory = append(byCategory, counterMetric(float64(r.received[c]), label("category", c)))
	}
	r.mu.Unlock()

	families := []*dto.MetricFamily{
		family(ConnectionsTotal, "Vehicle connections accepted.", dto.MetricType_COUNTER,
			counterMetric(float64(r.connections.Load()))),
		family(DeliveriesFailedTotal, "Per-recipient deliveries that could not be queued.", dto.MetricType_COUNTER,
			counterMetric(float64(r.failed.Load()))),
		family(DeliveriesTotal, "Messages queued to recipients.", dto.MetricType_COUNTER,
			counterMetric(float64(r.deliveries.Load()))),
		family(DisconnectionsTotal, "Vehicle connections closed.", dto.MetricType_COUNTER,
			counterMetric(float64(r.disconnections.Load()))),
		family(MalformedTotal, "Inbound payloads dropped because they could not be parsed.", dto.MetricType_COUNTER,
			counterMetric(float64(r.malformed.Load()))),
		family(VehiclesConnected, "Vehicles currently in the network.", dto.MetricType_GAUGE,
			gaugeMetric(float64(r.vehicles.Load()))),
	}
	if len(byCategory) > 0 {
		families = append(families, family(MessagesReceivedTotal, "Inbound messages by category.", dto.MetricType_COUNTER, byCategory...))
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	return families
}

// WriteText encodes the registry in the Prometheus text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// ContentType is the header value matching WriteText output.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}

func family(name, help string, typ dto.MetricType, ms ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   &name,
		Help:   &help,
		Type:   typ.Enum(),
		Metric: ms,
	}
}

func counterMetric(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: &v}}
}

func gaugeMetric(v float64) *dto.Metric {
	return &dto.Metric{Gauge: &dto.Gauge{Value: &v}}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: &name, Value: &value}
}
