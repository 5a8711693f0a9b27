// Package config provides YAML configuration parsing for SpeedBoard.
//
// This package enables running SpeedBoard as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Azure Latency
//	port: 8080
//
//	engine:
//	  workers: 4
//	  timeout: 5s
//	  window_size: 100
//
//	endpoints:
//	  - id: westeurope
//	    name: West Europe
//	    url: https://speedtestwe.blob.core.windows.net/cb.json
//	    location: Amsterdam
//	    geography: Europe
//	    availability_zones: [westeurope-1, westeurope-2]
//	    icon: nl
//
//	grids:
//	  - id: asia
//	    url_template: "https://speedtest{{.region}}.blob.core.windows.net/cb.json"
//	    geography: Asia Pacific
//	    dimensions:
//	      region: [ea, sea]
//
//	outputs:
//	  - type: file
//	    path: samples.csv
//	  - type: influxdb
//	    url: http://localhost:8086
//	    token: ${INFLUX_TOKEN}
//	    org: home
//	    bucket: latency
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Output types accepted in the outputs list.
const (
	OutputFile     = "file"
	OutputInfluxDB = "influxdb"
)

// Defaults applied by [Parse] to zero-valued settings.
const (
	DefaultPort       = 8080
	DefaultWorkers    = 4
	DefaultTimeout    = 5 * time.Second
	DefaultBackoff    = time.Second
	DefaultLoopDelay  = time.Millisecond
	DefaultStagger    = 100 * time.Millisecond
	DefaultDedupDelay = 10 * time.Millisecond
	DefaultWindowSize = 100
)

// Config is the root configuration structure for SpeedBoard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "SpeedBoard" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Engine tunes the probe scheduler and history window.
	Engine EngineConfig `yaml:"engine"`

	// Endpoints defines individual regions to probe.
	Endpoints []EndpointConfig `yaml:"endpoints"`

	// Grids defines endpoint grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`

	// Outputs lists where accepted samples are exported.
	Outputs []OutputConfig `yaml:"outputs"`
}

// EngineConfig holds scheduler tuning. Zero values take defaults.
type EngineConfig struct {
	// Workers is the number of concurrent probe workers.
	Workers int `yaml:"workers"`

	// Timeout is the per-probe deadline; exceeding it blocklists the endpoint.
	Timeout Duration `yaml:"timeout"`

	// Backoff is how long an idle worker waits when nothing is probeable.
	Backoff Duration `yaml:"backoff"`

	// LoopDelay is the pause between a worker's iterations.
	LoopDelay Duration `yaml:"loop_delay"`

	// Stagger offsets each worker's start by its index times this value.
	Stagger Duration `yaml:"stagger"`

	// DedupDelay is the wait after losing a race for an in-flight endpoint.
	DedupDelay Duration `yaml:"dedup_delay"`

	// WindowSize is the number of recent samples in each rolling average.
	WindowSize int `yaml:"window_size"`
}

// EndpointConfig defines a single region endpoint.
type EndpointConfig struct {
	// ID uniquely identifies the endpoint.
	ID string `yaml:"id"`

	// Name is the display name. Defaults to ID.
	Name string `yaml:"name"`

	// URL is the probe URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	Icon      string `yaml:"icon"`
	Location  string `yaml:"location"`
	Geography string `yaml:"geography"`

	AvailabilityZones []string `yaml:"availability_zones"`

	// CDN marks a CDN edge, excluded from the nearest-region pick.
	CDN bool `yaml:"cdn"`
}

// GridConfig defines an endpoint grid that expands via cartesian product.
//
// With dimensions {region: [we, ne]} and id "azure", the grid expands to
// endpoints "azure-we" and "azure-ne".
type GridConfig struct {
	// ID is the id prefix for generated endpoints.
	ID string `yaml:"id"`

	// Name is the display name prefix. Defaults to ID.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating probe URLs.
	// Dimension keys are available as template variables: {{.region}}
	// Supports environment variable substitution in the template.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// LocationDimension names the dimension whose value becomes each
	// endpoint's location.
	LocationDimension string `yaml:"location_dimension"`

	Icon      string `yaml:"icon"`
	Geography string `yaml:"geography"`
	CDN       bool   `yaml:"cdn"`
}

// OutputConfig defines a sample exporter.
type OutputConfig struct {
	// Type is "file" or "influxdb".
	Type string `yaml:"type"`

	// Path is the CSV file path (type: file).
	Path string `yaml:"path"`

	// URL, Token, Org and Bucket address an InfluxDB v2 bucket (type: influxdb).
	// Token supports environment variable substitution.
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in endpoint URLs, grid URL templates
// and output URLs and tokens. Zero-valued port and engine settings take
// their defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}

	e := &c.Engine
	if e.Workers == 0 {
		e.Workers = DefaultWorkers
	}
	if e.Timeout == 0 {
		e.Timeout = Duration(DefaultTimeout)
	}
	if e.Backoff == 0 {
		e.Backoff = Duration(DefaultBackoff)
	}
	if e.LoopDelay == 0 {
		e.LoopDelay = Duration(DefaultLoopDelay)
	}
	if e.Stagger == 0 {
		e.Stagger = Duration(DefaultStagger)
	}
	if e.DedupDelay == 0 {
		e.DedupDelay = Duration(DefaultDedupDelay)
	}
	if e.WindowSize == 0 {
		e.WindowSize = DefaultWindowSize
	}
}

// Validate checks settings that may have been changed after [Parse], such
// as command-line overrides.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return c.Engine.validate()
}

func (e EngineConfig) validate() error {
	if e.Workers < 1 {
		return fmt.Errorf("engine.workers must be positive, got %d", e.Workers)
	}
	if e.Timeout.Duration() <= 0 {
		return fmt.Errorf("engine.timeout must be positive, got %s", e.Timeout.Duration())
	}
	if e.Backoff.Duration() <= 0 {
		return fmt.Errorf("engine.backoff must be positive, got %s", e.Backoff.Duration())
	}
	if e.LoopDelay.Duration() < 0 {
		return fmt.Errorf("engine.loop_delay cannot be negative, got %s", e.LoopDelay.Duration())
	}
	if e.Stagger.Duration() < 0 {
		return fmt.Errorf("engine.stagger cannot be negative, got %s", e.Stagger.Duration())
	}
	if e.DedupDelay.Duration() <= 0 {
		return fmt.Errorf("engine.dedup_delay must be positive, got %s", e.DedupDelay.Duration())
	}
	if e.WindowSize < 1 {
		return fmt.Errorf("engine.window_size must be positive, got %d", e.WindowSize)
	}
	return nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if err := c.Validate(); err != nil {
		return err
	}

	seen := make(map[string]int, len(c.Endpoints))
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]

		if ep.ID == "" {
			return fmt.Errorf("endpoints[%d]: id is required", i)
		}
		if prev, dup := seen[ep.ID]; dup {
			return fmt.Errorf("endpoints[%d] (%s): duplicate id, first defined at endpoints[%d]", i, ep.ID, prev)
		}
		seen[ep.ID] = i

		if ep.URL == "" {
			return fmt.Errorf("endpoints[%d] (%s): url is required", i, ep.ID)
		}
		expanded, err := expandEnvVars(ep.URL)
		if err != nil {
			return fmt.Errorf("endpoints[%d] (%s): url: %w", i, ep.ID, err)
		}
		ep.URL = expanded

		if err := validateURL(ep.URL); err != nil {
			return fmt.Errorf("endpoints[%d] (%s): %w", i, ep.ID, err)
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.ID == "" {
			return fmt.Errorf("grids[%d]: id is required", i)
		}

		if g.URLTemplate == "" {
			return fmt.Errorf("grids[%d] (%s): url_template is required", i, g.ID)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("grids[%d] (%s): url_template: %w", i, g.ID, err)
		}
		g.URLTemplate = expanded

		// fail fast before SDK tries to use invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("grids[%d] (%s): invalid url_template: %w", i, g.ID, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("grids[%d] (%s): at least one dimension is required", i, g.ID)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("grids[%d] (%s): dimension %q has no values", i, g.ID, dimName)
			}
			dimSeen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := dimSeen[v]; exists {
					return fmt.Errorf("grids[%d] (%s): dimension %q has duplicate value %q", i, g.ID, dimName, v)
				}
				dimSeen[v] = struct{}{}
			}
		}

		if g.LocationDimension != "" {
			if _, ok := g.Dimensions[g.LocationDimension]; !ok {
				return fmt.Errorf("grids[%d] (%s): location_dimension %q is not a dimension", i, g.ID, g.LocationDimension)
			}
		}
	}

	if len(c.Endpoints) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one endpoint or grid must be defined")
	}

	for i := range c.Outputs {
		if err := c.Outputs[i].expandAndValidate(i); err != nil {
			return err
		}
	}

	return nil
}

func (o *OutputConfig) expandAndValidate(i int) error {
	switch o.Type {
	case OutputFile:
		expanded, err := expandEnvVars(o.Path)
		if err != nil {
			return fmt.Errorf("outputs[%d] (file): path: %w", i, err)
		}
		o.Path = expanded
		if o.Path == "" {
			return fmt.Errorf("outputs[%d] (file): path is required", i)
		}
	case OutputInfluxDB:
		for _, field := range []struct {
			name string
			val  *string
		}{{"url", &o.URL}, {"token", &o.Token}, {"org", &o.Org}, {"bucket", &o.Bucket}} {
			expanded, err := expandEnvVars(*field.val)
			if err != nil {
				return fmt.Errorf("outputs[%d] (influxdb): %s: %w", i, field.name, err)
			}
			*field.val = expanded
		}
		if o.URL == "" {
			return fmt.Errorf("outputs[%d] (influxdb): url is required", i)
		}
		if err := validateURL(o.URL); err != nil {
			return fmt.Errorf("outputs[%d] (influxdb): %w", i, err)
		}
		if o.Org == "" {
			return fmt.Errorf("outputs[%d] (influxdb): org is required", i)
		}
		if o.Bucket == "" {
			return fmt.Errorf("outputs[%d] (influxdb): bucket is required", i)
		}
	case "":
		return fmt.Errorf("outputs[%d]: type is required", i)
	default:
		return fmt.Errorf("outputs[%d]: unknown output type %q (expected %q or %q)", i, o.Type, OutputFile, OutputInfluxDB)
	}
	return nil
}

func validateURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}
