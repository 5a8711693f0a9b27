package speedboard

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewEndpointGrid creates one endpoint per region combination from a URL
// template and dimensions using cartesian product expansion.
//
// The URL template uses Go's text/template syntax. Dimension values are URL-encoded
// before interpolation. Missing template keys cause an error (fail-fast).
//
// Each endpoint id is "baseID-val1-val2" and each display name is
// "Base Name (val1/val2)", with values taken from alphabetically sorted keys.
//
// Example:
//
//	endpoints, err := NewEndpointGrid("azure",
//	    WithURLTemplate("https://speedtest{{.region}}.blob.core.windows.net/cb.json"),
//	    WithDimensions(map[string][]string{
//	        "region": {"we", "ne"},
//	    }),
//	    WithGridGeography("Europe"),
//	)
//	// Returns 2 endpoints, usable with WithEndpoints(endpoints...)
func NewEndpointGrid(baseID string, opts ...GridOption) ([]Endpoint, error) {
	if strings.TrimSpace(baseID) == "" {
		return nil, errors.New("base id cannot be empty")
	}

	cfg := &gridConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}
	if cfg.locationFrom != "" {
		if _, ok := cfg.dimensions[cfg.locationFrom]; !ok {
			return nil, fmt.Errorf("location dimension '%s' is not a grid dimension", cfg.locationFrom)
		}
	}

	// missingkey=error so a typo in the template fails here, not at probe time
	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	displayBase := cfg.displayName
	if displayBase == "" {
		displayBase = baseID
	}

	endpoints := make([]Endpoint, 0, len(combinations))
	for _, combo := range combinations {
		urlStr, err := executeTemplate(tmpl, urlEncodeMap(combo))
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		values := sortedValues(combo)
		id := baseID + "-" + strings.Join(values, "-")

		epOpts := []EndpointOption{
			WithDisplayName(fmt.Sprintf("%s (%s)", displayBase, strings.Join(values, "/"))),
			WithIcon(cfg.icon),
			WithGeography(cfg.geography),
		}
		if cfg.locationFrom != "" {
			epOpts = append(epOpts, WithLocation(combo[cfg.locationFrom]))
		}
		if cfg.cdn {
			epOpts = append(epOpts, WithCDN())
		}

		ep, err := NewEndpoint(id, urlStr, epOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create endpoint '%s': %w", id, err)
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}
	result := make([]map[string]string, 0, total)

	// odometer over the sorted keys, rightmost digit fastest
	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedValues returns combo's values ordered by key.
func sortedValues(combo map[string]string) []string {
	keys := sortedKeys(combo)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = combo[k]
	}
	return values
}

// urlEncodeMap returns a new map with all values URL-encoded.
func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
