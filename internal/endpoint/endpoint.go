// Package endpoint defines the probe targets shared by the speedboard engine.
//
// This package is internal to SpeedBoard. It holds the immutable endpoint
// record and the [Source] abstraction the engine pulls its rotation from.
// The public SDK converts its own Endpoint type into [Endpoint] values once,
// at construction time.
package endpoint

import (
	"errors"
	"fmt"
)

// ErrUnknownEndpoint is returned when an id does not resolve in a [Source].
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Endpoint is a named network target being latency-tested.
//
// Identity is the ID field. Endpoints are supplied once at startup and are
// never mutated afterwards.
type Endpoint struct {
	// ID is the unique key (typically the region or domain name).
	ID string `json:"id"`

	// DisplayName is the human-readable name shown to observers.
	DisplayName string `json:"name"`

	// Icon is an optional icon reference (URL or asset path).
	Icon string `json:"icon,omitempty"`

	// ProbeURL is the URL requested on every probe.
	ProbeURL string `json:"url"`

	// Location is the physical location of the endpoint, e.g. "Netherlands".
	Location string `json:"location,omitempty"`

	// Geography groups endpoints by region, e.g. "Europe".
	Geography string `json:"geography,omitempty"`

	// AvailabilityZones lists the zones behind the endpoint, if known.
	AvailabilityZones []string `json:"availabilityZones,omitempty"`

	// CDN marks endpoints served from a content delivery network rather
	// than a single region.
	CDN bool `json:"cdn,omitempty"`
}

// Source yields the ordered collection of probe targets.
//
// List must be cheap and may be called any number of times. Implementations
// must be safe for concurrent use.
type Source interface {
	List() []Endpoint
}

// StaticSource is a [Source] backed by a fixed slice.
type StaticSource struct {
	endpoints []Endpoint
	index     map[string]int
}

// NewStaticSource creates a [StaticSource] from the given endpoints.
//
// The slice is copied. Returns an error if an id is empty or duplicated.
func NewStaticSource(endpoints []Endpoint) (*StaticSource, error) {
	cp := make([]Endpoint, len(endpoints))
	copy(cp, endpoints)

	index := make(map[string]int, len(cp))
	for i, ep := range cp {
		if ep.ID == "" {
			return nil, fmt.Errorf("endpoints[%d]: id cannot be empty", i)
		}
		if _, exists := index[ep.ID]; exists {
			return nil, fmt.Errorf("duplicate endpoint id: %q", ep.ID)
		}
		index[ep.ID] = i
	}

	return &StaticSource{endpoints: cp, index: index}, nil
}

// List returns a copy of the endpoints in their configured order.
func (s *StaticSource) List() []Endpoint {
	cp := make([]Endpoint, len(s.endpoints))
	copy(cp, s.endpoints)
	return cp
}

// Lookup returns the endpoint with the given id.
func (s *StaticSource) Lookup(id string) (Endpoint, error) {
	i, ok := s.index[id]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, id)
	}
	return s.endpoints[i], nil
}

// Lookup resolves id against any [Source].
//
// Sources that implement their own Lookup method (such as [StaticSource])
// are queried directly; otherwise the list is scanned.
func Lookup(src Source, id string) (Endpoint, error) {
	if l, ok := src.(interface {
		Lookup(string) (Endpoint, error)
	}); ok {
		return l.Lookup(id)
	}
	for _, ep := range src.List() {
		if ep.ID == id {
			return ep, nil
		}
	}
	return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, id)
}
