// Package events decouples the probing engine from its observers.
//
// This package is internal to SpeedBoard. Three kinds of event flow through
// a [Bus]: accepted samples, blocklist changes and warm-up progress. The
// [Feed] adapts the synchronous bus into buffered channels for streaming
// observers such as SSE and WebSocket clients.
package events

import (
	"strconv"
	"time"

	"github.com/jpalmerr/speedboard/internal/endpoint"
)

// Kind identifies an event type.
type Kind string

const (
	// KindSample is emitted for each accepted latency sample.
	KindSample Kind = "sample"

	// KindBlocklist is emitted whenever the blocked set changes.
	KindBlocklist Kind = "blocklist"

	// KindProgress is emitted while endpoints complete warm-up.
	KindProgress Kind = "progress"
)

// Phase is the engine-wide warm-up phase.
type Phase string

const (
	PhaseWarmup  Phase = "warmup"
	PhaseTesting Phase = "testing"
)

// Sample is one accepted latency measurement.
type Sample struct {
	EndpointID string        `json:"endpoint_id"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Timestamp  time.Time     `json:"timestamp"`

	// StatusCode is the HTTP status code; zero when Error is set.
	StatusCode int `json:"status_code,omitempty"`

	// Error holds the network error message for samples taken from a
	// failed request. Empty for normal responses.
	Error string `json:"error,omitempty"`
}

// Status renders the sample status: the numeric HTTP code, or "error".
func (s Sample) Status() string {
	if s.Error != "" || s.StatusCode == 0 {
		return "error"
	}
	return strconv.Itoa(s.StatusCode)
}

// Progress reports warm-up completion across all endpoints.
type Progress struct {
	Phase     Phase `json:"phase"`
	Completed int   `json:"completed"`
	Total     int   `json:"total"`
}

// Event is the tagged union delivered by the [Bus]. Exactly one payload
// field is set, matching Kind. Use [Event.Payload] to get it untyped.
type Event struct {
	Kind     Kind
	Sample   *Sample
	Blocked  []endpoint.Endpoint
	Progress *Progress
}

// NewSampleEvent wraps a sample.
func NewSampleEvent(s Sample) Event {
	return Event{Kind: KindSample, Sample: &s}
}

// NewBlocklistEvent wraps the full current blocked list. A nil list is
// normalized to empty so observers can tell "nothing blocked" apart from
// a missing payload.
func NewBlocklistEvent(blocked []endpoint.Endpoint) Event {
	if blocked == nil {
		blocked = []endpoint.Endpoint{}
	}
	return Event{Kind: KindBlocklist, Blocked: blocked}
}

// NewProgressEvent wraps a progress update.
func NewProgressEvent(p Progress) Event {
	return Event{Kind: KindProgress, Progress: &p}
}

// Payload returns the payload matching Kind, or nil for an unknown kind.
func (e Event) Payload() any {
	switch e.Kind {
	case KindSample:
		return e.Sample
	case KindBlocklist:
		return e.Blocked
	case KindProgress:
		return e.Progress
	default:
		return nil
	}
}
