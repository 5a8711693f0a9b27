package speedboard

import (
	"errors"
	"strings"
)

// endpointConfig holds mutable state during endpoint construction.
type endpointConfig struct {
	name      string
	icon      string
	location  string
	geography string
	zones     []string
	cdn       bool
}

// EndpointOption is a function that configures an [Endpoint] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithDisplayName], [WithIcon], [WithLocation],
// [WithGeography], [WithAvailabilityZones], [WithCDN].
type EndpointOption func(*endpointConfig) error

// WithDisplayName sets the name shown in the dashboard.
//
// Returns an error if the name is blank.
func WithDisplayName(name string) EndpointOption {
	return func(cfg *endpointConfig) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("display name cannot be empty")
		}
		cfg.name = name
		return nil
	}
}

// WithIcon sets an icon hint for presentation, usually a flag code like "nl".
func WithIcon(icon string) EndpointOption {
	return func(cfg *endpointConfig) error {
		cfg.icon = icon
		return nil
	}
}

// WithLocation sets the city or datacenter the endpoint lives in.
func WithLocation(location string) EndpointOption {
	return func(cfg *endpointConfig) error {
		cfg.location = location
		return nil
	}
}

// WithGeography sets the broad grouping ("Europe", "Asia Pacific") used to
// cluster endpoints in the dashboard.
func WithGeography(geography string) EndpointOption {
	return func(cfg *endpointConfig) error {
		cfg.geography = geography
		return nil
	}
}

// WithAvailabilityZones lists the availability zones behind the endpoint,
// e.g. "westeurope-1". Blank zones are rejected.
func WithAvailabilityZones(zones ...string) EndpointOption {
	return func(cfg *endpointConfig) error {
		for _, z := range zones {
			if strings.TrimSpace(z) == "" {
				return errors.New("availability zone cannot be empty")
			}
		}
		cfg.zones = append([]string(nil), zones...)
		return nil
	}
}

// WithCDN marks the endpoint as a CDN edge.
//
// CDN latency reflects the nearest edge, not a region, so these endpoints
// never win [SpeedBoard.Nearest].
func WithCDN() EndpointOption {
	return func(cfg *endpointConfig) error {
		cfg.cdn = true
		return nil
	}
}
