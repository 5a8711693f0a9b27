package speedboard

import (
	"errors"
	"fmt"
	"strings"
)

// gridConfig holds configuration during endpoint grid construction.
type gridConfig struct {
	urlTemplate  string
	dimensions   map[string][]string
	displayName  string
	icon         string
	geography    string
	cdn          bool
	locationFrom string
}

// GridOption configures endpoint grid generation.
// GridOption implements the functional options pattern for [NewEndpointGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the URL template for endpoint generation.
// The template uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithURLTemplate("https://speedtest{{.region}}.blob.core.windows.net/cb.json")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key in the map becomes a template variable, and the cartesian product
// of all values generates the endpoint combinations.
//
// Example:
//
//	WithDimensions(map[string][]string{
//	    "region": {"we", "ne", "uks"},
//	})
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridDisplayName sets the display name prefix for generated endpoints.
// Generated names take the form "Name (v1/v2)". Defaults to the base id.
func WithGridDisplayName(name string) GridOption {
	return func(cfg *gridConfig) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("display name cannot be empty")
		}
		cfg.displayName = name
		return nil
	}
}

// WithGridIcon sets the icon hint on every generated endpoint.
func WithGridIcon(icon string) GridOption {
	return func(cfg *gridConfig) error {
		cfg.icon = icon
		return nil
	}
}

// WithGridGeography sets the geography on every generated endpoint.
func WithGridGeography(geography string) GridOption {
	return func(cfg *gridConfig) error {
		cfg.geography = geography
		return nil
	}
}

// WithGridCDN marks every generated endpoint as a CDN edge.
func WithGridCDN() GridOption {
	return func(cfg *gridConfig) error {
		cfg.cdn = true
		return nil
	}
}

// WithLocationDimension uses the named dimension's value as each generated
// endpoint's location. The key must be one of the grid's dimensions.
//
// Example:
//
//	WithDimensions(map[string][]string{"city": {"Dublin", "London"}}),
//	WithLocationDimension("city"),
func WithLocationDimension(key string) GridOption {
	return func(cfg *gridConfig) error {
		if key == "" {
			return errors.New("location dimension cannot be empty")
		}
		cfg.locationFrom = key
		return nil
	}
}
