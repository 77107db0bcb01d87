package metrics

import (
	"bytes"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func parse(t *testing.T, r *Registry) map[string]*dto.MetricFamily {
	t.Helper()
	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("parse exposition: %v\n%s", err, buf.String())
	}
	return mfs
}

func TestWriteTextRoundTrip(t *testing.T) {
	r := New()
	r.Connected(1)
	r.Connected(2)
	r.Disconnected(1)
	r.Received("alert")
	r.Received("alert")
	r.Received("peer")
	r.Delivered(3)
	r.Delivered(0)
	r.DeliveryFailed()
	r.Malformed()

	mfs := parse(t, r)

	if got := mfs[ConnectionsTotal].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("%s = %v, want 2", ConnectionsTotal, got)
	}
	if got := mfs[DisconnectionsTotal].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("%s = %v, want 1", DisconnectionsTotal, got)
	}
	if got := mfs[VehiclesConnected].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("%s = %v, want 1", VehiclesConnected, got)
	}
	if got := mfs[DeliveriesTotal].GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("%s = %v, want 3", DeliveriesTotal, got)
	}
	if got := mfs[DeliveriesFailedTotal].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("%s = %v, want 1", DeliveriesFailedTotal, got)
	}
	if got := mfs[MalformedTotal].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("%s = %v, want 1", MalformedTotal, got)
	}

	byCategory := map[string]float64{}
	for _, m := range mfs[MessagesReceivedTotal].GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "category" {
				byCategory[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if byCategory["alert"] != 2 || byCategory["peer"] != 1 {
		t.Errorf("received by category = %v", byCategory)
	}
}

func TestEmptyRegistryOmitsCategoryFamily(t *testing.T) {
	mfs := parse(t, New())
	if _, ok := mfs[MessagesReceivedTotal]; ok {
		t.Error("category family should be absent before any message")
	}
	if _, ok := mfs[ConnectionsTotal]; !ok {
		t.Error("connections family missing")
	}
}

func TestNilRegistryIgnoresUpdates(t *testing.T) {
	var r *Registry
	r.Connected(1)
	r.Disconnected(0)
	r.Active(0)
	r.Received("peer")
	r.Delivered(1)
	r.DeliveryFailed()
	r.Malformed()
}
