package speedboard

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jpalmerr/speedboard/internal/endpoint"
)

// Endpoint is a region to measure latency against.
//
// Endpoint is immutable after creation via [NewEndpoint]. All fields are
// private with getter methods, so an endpoint cannot be changed once it has
// been handed to [New].
//
// Region metadata is configured using [EndpointOption] functions such as
// [WithDisplayName], [WithIcon], [WithLocation], [WithGeography] and [WithCDN].
type Endpoint struct {
	id        string
	url       string
	name      string
	icon      string
	location  string
	geography string
	zones     []string
	cdn       bool
}

// ID returns the endpoint's unique identifier.
// IDs appear in samples, history records and the retry API.
func (e Endpoint) ID() string {
	return e.id
}

// URL returns the probe URL. A cache-busting query parameter is added to
// every request, so the URL itself should point at a small static object.
func (e Endpoint) URL() string {
	return e.url
}

// DisplayName returns the human-readable name. Defaults to the ID.
func (e Endpoint) DisplayName() string {
	return e.name
}

// Icon returns the icon hint (typically a flag code), or "".
func (e Endpoint) Icon() string {
	return e.icon
}

// Location returns the city or datacenter name, or "".
func (e Endpoint) Location() string {
	return e.location
}

// Geography returns the broad geographic grouping, or "".
func (e Endpoint) Geography() string {
	return e.geography
}

// AvailabilityZones returns a copy of the availability zones behind the
// endpoint, or nil.
func (e Endpoint) AvailabilityZones() []string {
	if len(e.zones) == 0 {
		return nil
	}
	return append([]string(nil), e.zones...)
}

// CDN reports whether the endpoint is served from a CDN edge rather than a
// fixed region. CDN endpoints are excluded from [SpeedBoard.Nearest].
func (e Endpoint) CDN() bool {
	return e.cdn
}

// NewEndpoint creates an [Endpoint] with the given id, probe URL and options.
//
// The rawURL parameter must be an absolute http:// or https:// URL.
//
// Returns an error if the id is empty or the URL is invalid.
//
// Example:
//
//	ep, err := speedboard.NewEndpoint("westeurope",
//	    "https://speedtestwe.blob.core.windows.net/cb.json",
//	    speedboard.WithDisplayName("West Europe"),
//	    speedboard.WithLocation("Amsterdam"),
//	    speedboard.WithGeography("Europe"),
//	)
func NewEndpoint(id, rawURL string, opts ...EndpointOption) (Endpoint, error) {
	if strings.TrimSpace(id) == "" {
		return Endpoint{}, errors.New("endpoint id cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Endpoint{}, errors.New("URL must have an http:// or https:// scheme")
	}
	if parsedURL.Host == "" {
		return Endpoint{}, errors.New("URL must have a host")
	}

	cfg := &endpointConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Endpoint{}, err
		}
	}

	name := cfg.name
	if name == "" {
		name = id
	}

	return Endpoint{
		id:        id,
		url:       rawURL,
		name:      name,
		icon:      cfg.icon,
		location:  cfg.location,
		geography: cfg.geography,
		zones:     cfg.zones,
		cdn:       cfg.cdn,
	}, nil
}

func (e Endpoint) toInternal() endpoint.Endpoint {
	return endpoint.Endpoint{
		ID:          e.id,
		DisplayName: e.name,
		Icon:        e.icon,
		ProbeURL:    e.url,
		Location:    e.location,
		Geography:   e.geography,
		CDN:         e.cdn,

		AvailabilityZones: e.AvailabilityZones(),
	}
}

func endpointFromInternal(ep endpoint.Endpoint) Endpoint {
	return Endpoint{
		id:        ep.ID,
		url:       ep.ProbeURL,
		name:      ep.DisplayName,
		icon:      ep.Icon,
		location:  ep.Location,
		geography: ep.Geography,
		zones:     append([]string(nil), ep.AvailabilityZones...),
		cdn:       ep.CDN,
	}
}
