package speedboard

import (
	"time"

	"github.com/jpalmerr/speedboard/internal/endpoint"
	"github.com/jpalmerr/speedboard/internal/events"
	"github.com/jpalmerr/speedboard/internal/history"
	"github.com/jpalmerr/speedboard/internal/poller"
)

// ErrUnknownEndpoint is returned (wrapped) by [SpeedBoard.Retry] when the id
// does not name a configured endpoint. Test for it with errors.Is.
var ErrUnknownEndpoint = endpoint.ErrUnknownEndpoint

// Sample is one accepted latency measurement.
//
// A sample is produced for every successful probe and for every probe that
// failed with a network error, except each endpoint's first countable result,
// which is discarded as warm-up. Timeouts never produce samples; they move
// the endpoint to the blocklist instead.
type Sample struct {
	// EndpointID identifies the endpoint that was probed.
	EndpointID string

	// Duration is the measured round-trip time.
	Duration time.Duration

	// Timestamp is when the probe was started.
	Timestamp time.Time

	// StatusCode is the HTTP status code. Zero for network errors.
	StatusCode int

	// Error describes the network failure. Empty for successful probes.
	Error string
}

// Failed reports whether the sample came from a network error.
func (s Sample) Failed() bool {
	return s.Error != ""
}

// Phase is the engine's coarse lifecycle stage.
type Phase string

const (
	// PhaseWarmup lasts until every endpoint has produced its first
	// countable result or been blocklisted.
	PhaseWarmup Phase = Phase(events.PhaseWarmup)

	// PhaseTesting is the steady state after warm-up.
	PhaseTesting Phase = Phase(events.PhaseTesting)
)

// Progress reports warm-up completion.
type Progress struct {
	Phase     Phase
	Completed int
	Total     int
}

// Record is the rolling latency summary for one endpoint.
type Record struct {
	EndpointID  string
	DisplayName string
	Icon        string
	Location    string
	Geography   string
	CDN         bool

	AvailabilityZones []string

	// Values holds the rolling window of durations in milliseconds, oldest first.
	Values []float64

	// Average is the arithmetic mean of Values.
	Average float64

	// Percent is Average relative to the slowest endpoint's average, 0-100.
	Percent float64

	Median float64
	P95    float64

	// Samples counts every accepted sample, including ones that have since
	// left the window.
	Samples int

	UpdatedAt time.Time
}

// Stats is a point-in-time snapshot of scheduler state.
type Stats struct {
	TotalEndpoints int
	BlockedCount   int
	ActiveCount    int
	QueueLength    int
	InFlightCount  int
}

func sampleFromInternal(s events.Sample) Sample {
	return Sample{
		EndpointID: s.EndpointID,
		Duration:   s.Duration,
		Timestamp:  s.Timestamp,
		StatusCode: s.StatusCode,
		Error:      s.Error,
	}
}

func progressFromInternal(p events.Progress) Progress {
	return Progress{
		Phase:     Phase(p.Phase),
		Completed: p.Completed,
		Total:     p.Total,
	}
}

func recordFromInternal(r history.Record) Record {
	return Record{
		EndpointID:  r.EndpointID,
		DisplayName: r.DisplayName,
		Icon:        r.Icon,
		Location:    r.Location,
		Geography:   r.Geography,
		CDN:         r.CDN,
		Values:      r.Values,

		AvailabilityZones: r.AvailabilityZones,
		Average:     r.Average,
		Percent:     r.Percent,
		Median:      r.Median,
		P95:         r.P95,
		Samples:     r.Samples,
		UpdatedAt:   r.UpdatedAt,
	}
}

func statsFromInternal(s poller.Stats) Stats {
	return Stats{
		TotalEndpoints: s.TotalEndpoints,
		BlockedCount:   s.BlockedCount,
		ActiveCount:    s.ActiveCount,
		QueueLength:    s.QueueLength,
		InFlightCount:  s.InFlightCount,
	}
}

func endpointsFromInternal(eps []endpoint.Endpoint) []Endpoint {
	out := make([]Endpoint, len(eps))
	for i, ep := range eps {
		out[i] = endpointFromInternal(ep)
	}
	return out
}
