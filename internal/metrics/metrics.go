// Package metrics exposes engine activity as Prometheus collectors.
//
// This package is internal to SpeedBoard. A [Collector] is both a
// poller.Observer (probe outcomes and in-flight count) and an event bus
// listener (accepted samples and blocklist size). Collectors register on
// their own registry so several engines can coexist in one process.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/speedboard/internal/events"
	"github.com/jpalmerr/speedboard/internal/probe"
)

const namespace = "speedboard"

// Collector holds the SpeedBoard metric families.
type Collector struct {
	registry *prometheus.Registry
	probes   *prometheus.CounterVec
	samples  prometheus.Counter
	blocked  prometheus.Gauge
	inFlight prometheus.Gauge
	latency  *prometheus.HistogramVec
}

// New creates a [Collector] and registers it on reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: reg,
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total probes completed, by outcome.",
		}, []string{"outcome"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Total latency samples accepted after warm-up.",
		}),
		blocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocked_endpoints",
			Help:      "Number of endpoints currently on the blocklist.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_probes",
			Help:      "Number of probes currently outstanding.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Probe round-trip time for completed probes.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"endpoint"}),
	}

	for _, col := range []prometheus.Collector{c.probes, c.samples, c.blocked, c.inFlight, c.latency} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return c, nil
}

// ObserveProbe counts a classified probe. Timeouts are counted but not
// added to the latency histogram, since their duration is the deadline.
func (c *Collector) ObserveProbe(endpointID string, kind probe.Kind, d time.Duration) {
	c.probes.WithLabelValues(kind.String()).Inc()
	if kind != probe.TimedOut {
		c.latency.WithLabelValues(endpointID).Observe(d.Seconds())
	}
}

// SetInFlight records the number of outstanding probes.
func (c *Collector) SetInFlight(n int) {
	c.inFlight.Set(float64(n))
}

// Listen is an events.Listener.
func (c *Collector) Listen(ev events.Event) {
	switch ev.Kind {
	case events.KindSample:
		c.samples.Inc()
	case events.KindBlocklist:
		c.blocked.Set(float64(len(ev.Blocked)))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
