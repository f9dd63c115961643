package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bft-labs/locolink/pkg/locolink"
	"github.com/bft-labs/locolink/pkg/protocol"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogram(t *testing.T, h prometheus.Histogram) *dto.Histogram {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCollector(t *testing.T) (*Collector, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	return New(WithRegistry(prometheus.NewRegistry()), WithClock(clock.Now)), clock
}

func TestCollector_ConnectionLifecycle(t *testing.T) {
	c, clock := newTestCollector(t)

	c.OnConnectStart()
	if got := metricGaugeValue(t, c.searching); got != 1 {
		t.Errorf("searching = %v, want 1", got)
	}
	c.OnSessionState(locolink.SessionStateEvent{Previous: locolink.SessionIdle, Current: locolink.SessionConnecting})
	c.OnSessionState(locolink.SessionStateEvent{Previous: locolink.SessionConnecting, Current: locolink.SessionConnected})
	c.OnStatus(locolink.StatusConnected)
	c.OnConnectStop()

	if got := metricGaugeValue(t, c.connected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	if got := metricGaugeValue(t, c.searching); got != 0 {
		t.Errorf("searching = %v, want 0", got)
	}

	clock.Advance(90 * time.Second)
	c.OnError("connection reset by peer")
	c.OnSessionState(locolink.SessionStateEvent{Previous: locolink.SessionConnected, Current: locolink.SessionClosing, Reason: "abnormal"})
	c.OnSessionState(locolink.SessionStateEvent{Previous: locolink.SessionClosing, Current: locolink.SessionIdle, Reason: "abnormal"})
	c.OnStatus(locolink.StatusDisconnected)

	if got := metricCounterValue(t, c.connectAttempts); got != 1 {
		t.Errorf("connect attempts = %v, want 1", got)
	}
	if got := metricCounterValue(t, c.connects); got != 1 {
		t.Errorf("connects = %v, want 1", got)
	}
	if got := metricCounterValue(t, c.errors); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := metricCounterValue(t, c.disconnects.WithLabelValues("abnormal")); got != 1 {
		t.Errorf("abnormal sessions = %v, want 1", got)
	}
	if got := metricGaugeValue(t, c.connected); got != 0 {
		t.Errorf("connected = %v, want 0", got)
	}

	h := metricHistogram(t, c.connLifetime)
	if h.GetSampleCount() != 1 || h.GetSampleSum() != 90 {
		t.Errorf("lifetime count=%d sum=%v, want 1 and 90", h.GetSampleCount(), h.GetSampleSum())
	}
}

func TestCollector_DisconnectWithoutConnect(t *testing.T) {
	c, _ := newTestCollector(t)

	c.OnStatus(locolink.StatusDisconnected)
	if got := metricHistogram(t, c.connLifetime).GetSampleCount(); got != 0 {
		t.Errorf("lifetime samples = %d, want 0", got)
	}
}

func TestCollector_FrameKinds(t *testing.T) {
	c, _ := newTestCollector(t)

	c.OnFrame(protocol.Frame{Address: 3, Length: 1, Payload: []byte{2}})
	c.OnFrame(protocol.Frame{Address: 3, Length: 1, Payload: []byte{4}})
	c.OnFrame(protocol.Frame{Address: 9, Length: 3, Payload: []byte{1, 2, 3}})

	tests := []struct {
		kind string
		want float64
	}{
		{"control", 2},
		{"data", 1},
	}
	for _, tt := range tests {
		if got := metricCounterValue(t, c.frames.WithLabelValues(tt.kind)); got != tt.want {
			t.Errorf("frames{kind=%q} = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestCollector_RegistersWithNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("rail"), WithConstLabels(prometheus.Labels{"layout": "yard"}))
	c.OnStatus(locolink.StatusConnected)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "rail_connects_total" {
			found = true
			labels := mf.GetMetric()[0].GetLabel()
			if len(labels) != 1 || labels[0].GetName() != "layout" || labels[0].GetValue() != "yard" {
				t.Errorf("labels = %v", labels)
			}
		}
	}
	if !found {
		t.Error("rail_connects_total not registered")
	}
}

func TestCollector_RegistersOnce(t *testing.T) {
	c, _ := newTestCollector(t)
	client, err := locolink.New(locolink.Config{})
	if err != nil {
		t.Fatalf("locolink.New() error: %v", err)
	}
	defer client.Shutdown()

	if !client.AddHandler(c) {
		t.Fatal("AddHandler rejected the collector")
	}
	if client.AddHandler(c) {
		t.Error("collector registered twice")
	}
}
