package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jpalmerr/speedboard/internal/endpoint"
	"github.com/jpalmerr/speedboard/internal/events"
	"github.com/jpalmerr/speedboard/internal/probe"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCollector_ObserveProbe(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveProbe("a", probe.Success, 20*time.Millisecond)
	c.ObserveProbe("a", probe.Success, 30*time.Millisecond)
	c.ObserveProbe("b", probe.NetworkError, 5*time.Millisecond)
	c.ObserveProbe("b", probe.TimedOut, 5*time.Second)

	tests := []struct {
		outcome string
		want    float64
	}{
		{outcome: "success", want: 2},
		{outcome: "error", want: 1},
		{outcome: "timeout", want: 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.probes.WithLabelValues(tt.outcome)); got != tt.want {
			t.Errorf("probes_total{outcome=%q} = %v, want %v", tt.outcome, got, tt.want)
		}
	}

	// one histogram series per endpoint; timeouts are not observed
	if n := testutil.CollectAndCount(c.latency); n != 2 {
		t.Errorf("latency series = %d, want 2", n)
	}
}

func TestCollector_Listen(t *testing.T) {
	c := newTestCollector(t)

	c.Listen(events.NewSampleEvent(events.Sample{EndpointID: "a"}))
	c.Listen(events.NewSampleEvent(events.Sample{EndpointID: "b"}))
	c.Listen(events.NewBlocklistEvent([]endpoint.Endpoint{{ID: "a"}, {ID: "c"}}))
	c.Listen(events.NewProgressEvent(events.Progress{Phase: events.PhaseWarmup}))

	if got := testutil.ToFloat64(c.samples); got != 2 {
		t.Errorf("samples_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.blocked); got != 2 {
		t.Errorf("blocked_endpoints = %v, want 2", got)
	}

	c.Listen(events.NewBlocklistEvent(nil))
	if got := testutil.ToFloat64(c.blocked); got != 0 {
		t.Errorf("blocked_endpoints after clear = %v, want 0", got)
	}
}

func TestCollector_SetInFlight(t *testing.T) {
	c := newTestCollector(t)
	c.SetInFlight(3)

	if got := testutil.ToFloat64(c.inFlight); got != 3 {
		t.Errorf("in_flight_probes = %v, want 3", got)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("second New() on same registry error = nil, want error")
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t)
	c.ObserveProbe("a", probe.Success, 10*time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"speedboard_probes_total", "speedboard_probe_duration_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition missing %s", name)
		}
	}
}
