package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
endpoints:
  - id: westeurope
    url: https://example.com/cb.json
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	e := cfg.Engine
	if e.Workers != 4 {
		t.Errorf("Workers = %d, want 4", e.Workers)
	}
	if e.Timeout.Duration() != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", e.Timeout.Duration())
	}
	if e.Backoff.Duration() != time.Second {
		t.Errorf("Backoff = %v, want 1s", e.Backoff.Duration())
	}
	if e.LoopDelay.Duration() != time.Millisecond {
		t.Errorf("LoopDelay = %v, want 1ms", e.LoopDelay.Duration())
	}
	if e.Stagger.Duration() != 100*time.Millisecond {
		t.Errorf("Stagger = %v, want 100ms", e.Stagger.Duration())
	}
	if e.DedupDelay.Duration() != 10*time.Millisecond {
		t.Errorf("DedupDelay = %v, want 10ms", e.DedupDelay.Duration())
	}
	if e.WindowSize != 100 {
		t.Errorf("WindowSize = %d, want 100", e.WindowSize)
	}
	if len(cfg.Endpoints) != 1 {
		t.Errorf("len(Endpoints) = %d, want 1", len(cfg.Endpoints))
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
title: Azure Latency
port: 9090
engine:
  workers: 8
  timeout: 3s
  backoff: 500ms
  loop_delay: 2ms
  stagger: 50ms
  dedup_delay: 20ms
  window_size: 25
endpoints:
  - id: westeurope
    name: West Europe
    url: https://speedtestwe.blob.core.windows.net/cb.json
    icon: nl
    location: Amsterdam
    geography: Europe
    availability_zones: [westeurope-1, westeurope-2]
  - id: cdn
    url: https://example.azureedge.net/cb.json
    cdn: true
outputs:
  - type: file
    path: samples.csv
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "Azure Latency" || cfg.Port != 9090 {
		t.Errorf("Title/Port = %q/%d", cfg.Title, cfg.Port)
	}
	e := cfg.Engine
	if e.Workers != 8 || e.Timeout.Duration() != 3*time.Second || e.Backoff.Duration() != 500*time.Millisecond {
		t.Errorf("Engine = %+v", e)
	}
	if e.LoopDelay.Duration() != 2*time.Millisecond || e.Stagger.Duration() != 50*time.Millisecond {
		t.Errorf("Engine = %+v", e)
	}
	if e.DedupDelay.Duration() != 20*time.Millisecond || e.WindowSize != 25 {
		t.Errorf("Engine = %+v", e)
	}

	we := cfg.Endpoints[0]
	if we.Name != "West Europe" || we.Icon != "nl" || we.Location != "Amsterdam" || we.Geography != "Europe" {
		t.Errorf("Endpoints[0] = %+v", we)
	}
	if len(we.AvailabilityZones) != 2 || we.AvailabilityZones[1] != "westeurope-2" {
		t.Errorf("Endpoints[0].AvailabilityZones = %v", we.AvailabilityZones)
	}
	if !cfg.Endpoints[1].CDN {
		t.Error("Endpoints[1].CDN = false, want true")
	}
	if len(cfg.Outputs) != 1 || cfg.Outputs[0].Path != "samples.csv" {
		t.Errorf("Outputs = %+v", cfg.Outputs)
	}
}

func TestParse_GridConfig(t *testing.T) {
	yaml := `
grids:
  - id: azure
    name: Azure
    url_template: "https://speedtest{{.region}}.blob.core.windows.net/cb.json"
    geography: Europe
    location_dimension: region
    dimensions:
      region: [we, ne]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	g := cfg.Grids[0]
	if g.ID != "azure" || g.Name != "Azure" || g.LocationDimension != "region" {
		t.Errorf("Grids[0] = %+v", g)
	}
	if got := g.Dimensions["region"]; len(got) != 2 || got[0] != "we" {
		t.Errorf("Dimensions = %v", g.Dimensions)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("REGION_HOST", "speedtestwe.blob.core.windows.net")
	t.Setenv("INFLUX_TOKEN", "s3cret")

	yaml := `
endpoints:
  - id: we
    url: https://${REGION_HOST}/cb.json
grids:
  - id: g
    url_template: "https://${GRID_HOST:-grid.example.com}/{{.r}}"
    dimensions:
      r: [a]
outputs:
  - type: influxdb
    url: ${INFLUX_URL:-http://localhost:8086}
    token: ${INFLUX_TOKEN}
    org: home
    bucket: latency
  - type: file
    path: ${SAMPLES_DIR:-/tmp}/samples.csv
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Endpoints[0].URL != "https://speedtestwe.blob.core.windows.net/cb.json" {
		t.Errorf("URL = %q", cfg.Endpoints[0].URL)
	}
	if cfg.Grids[0].URLTemplate != "https://grid.example.com/{{.r}}" {
		t.Errorf("URLTemplate = %q", cfg.Grids[0].URLTemplate)
	}
	out := cfg.Outputs[0]
	if out.URL != "http://localhost:8086" || out.Token != "s3cret" {
		t.Errorf("Outputs[0] = %+v", out)
	}
	if cfg.Outputs[1].Path != "/tmp/samples.csv" {
		t.Errorf("Outputs[1].Path = %q", cfg.Outputs[1].Path)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
endpoints:
  - id: we
    url: https://${SPEEDBOARD_TEST_MISSING_HOST}/cb.json
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "endpoints[0] (we): url") {
		t.Errorf("error = %q, want indexed context", err.Error())
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "no endpoints or grids",
			yaml:        `port: 8080`,
			wantErrLike: "at least one endpoint or grid",
		},
		{
			name: "endpoint missing id",
			yaml: `
endpoints:
  - url: https://example.com
`,
			wantErrLike: "endpoints[0]: id is required",
		},
		{
			name: "endpoint missing url",
			yaml: `
endpoints:
  - id: a
    url: https://example.com
  - id: b
  - id: westeurope
`,
			wantErrLike: "endpoints[1] (b): url is required",
		},
		{
			name: "indexed url error",
			yaml: `
endpoints:
  - id: a
    url: https://a.example.com
  - id: b
    url: https://b.example.com
  - id: westeurope
`,
			wantErrLike: "endpoints[2] (westeurope): url is required",
		},
		{
			name: "duplicate endpoint id",
			yaml: `
endpoints:
  - id: a
    url: https://a.example.com
  - id: a
    url: https://b.example.com
`,
			wantErrLike: "endpoints[1] (a): duplicate id",
		},
		{
			name: "url without scheme",
			yaml: `
endpoints:
  - id: a
    url: example.com/cb.json
`,
			wantErrLike: "must have a scheme",
		},
		{
			name: "url with ftp scheme",
			yaml: `
endpoints:
  - id: a
    url: ftp://example.com/cb.json
`,
			wantErrLike: "scheme must be http or https",
		},
		{
			name: "grid missing id",
			yaml: `
grids:
  - url_template: https://example.com/{{.r}}
    dimensions:
      r: [a]
`,
			wantErrLike: "grids[0]: id is required",
		},
		{
			name: "grid missing template",
			yaml: `
grids:
  - id: g
    dimensions:
      r: [a]
`,
			wantErrLike: "url_template is required",
		},
		{
			name: "grid invalid template",
			yaml: `
grids:
  - id: g
    url_template: "https://{{.r}.example.com"
    dimensions:
      r: [a]
`,
			wantErrLike: "invalid url_template",
		},
		{
			name: "grid no dimensions",
			yaml: `
grids:
  - id: g
    url_template: https://example.com
`,
			wantErrLike: "at least one dimension",
		},
		{
			name: "grid empty dimension",
			yaml: `
grids:
  - id: g
    url_template: https://example.com/{{.r}}
    dimensions:
      r: []
`,
			wantErrLike: `dimension "r" has no values`,
		},
		{
			name: "grid duplicate dimension value",
			yaml: `
grids:
  - id: g
    url_template: https://example.com/{{.r}}
    dimensions:
      r: [a, a]
`,
			wantErrLike: `duplicate value "a"`,
		},
		{
			name: "grid unknown location dimension",
			yaml: `
grids:
  - id: g
    url_template: https://example.com/{{.r}}
    location_dimension: city
    dimensions:
      r: [a]
`,
			wantErrLike: `location_dimension "city"`,
		},
		{
			name: "negative workers",
			yaml: `
engine:
  workers: -1
endpoints:
  - id: a
    url: https://example.com
`,
			wantErrLike: "engine.workers must be positive",
		},
		{
			name: "negative timeout",
			yaml: `
engine:
  timeout: -1s
endpoints:
  - id: a
    url: https://example.com
`,
			wantErrLike: "engine.timeout must be positive",
		},
		{
			name: "negative stagger",
			yaml: `
engine:
  stagger: -5ms
endpoints:
  - id: a
    url: https://example.com
`,
			wantErrLike: "engine.stagger cannot be negative",
		},
		{
			name: "negative window",
			yaml: `
engine:
  window_size: -3
endpoints:
  - id: a
    url: https://example.com
`,
			wantErrLike: "engine.window_size must be positive",
		},
		{
			name: "port out of range",
			yaml: `
port: 70000
endpoints:
  - id: a
    url: https://example.com
`,
			wantErrLike: "port must be between 1 and 65535",
		},
		{
			name: "output missing type",
			yaml: `
endpoints:
  - id: a
    url: https://example.com
outputs:
  - path: x.csv
`,
			wantErrLike: "outputs[0]: type is required",
		},
		{
			name: "output unknown type",
			yaml: `
endpoints:
  - id: a
    url: https://example.com
outputs:
  - type: kafka
`,
			wantErrLike: `unknown output type "kafka"`,
		},
		{
			name: "file output missing path",
			yaml: `
endpoints:
  - id: a
    url: https://example.com
outputs:
  - type: file
`,
			wantErrLike: "outputs[0] (file): path is required",
		},
		{
			name: "influx output missing bucket",
			yaml: `
endpoints:
  - id: a
    url: https://example.com
outputs:
  - type: influxdb
    url: http://localhost:8086
    org: home
`,
			wantErrLike: "outputs[0] (influxdb): bucket is required",
		},
		{
			name: "influx output missing token env",
			yaml: `
endpoints:
  - id: a
    url: https://example.com
outputs:
  - type: influxdb
    url: http://localhost:8086
    token: ${SPEEDBOARD_TEST_MISSING_TOKEN}
    org: home
    bucket: latency
`,
			wantErrLike: "outputs[0] (influxdb): token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.wantErrLike)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("endpoints: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("Parse() error = %v, want YAML error", err)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
engine:
  timeout: fast
endpoints:
  - id: a
    url: https://example.com
`
	_, err := Parse([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), `invalid duration "fast"`) {
		t.Errorf("Parse() error = %v, want invalid duration", err)
	}
}

func TestValidate_AfterOverride(t *testing.T) {
	cfg, err := Parse([]byte(`
endpoints:
  - id: a
    url: https://example.com
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg.Engine.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error after zeroing workers")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speedboard.yaml")
	content := `
endpoints:
  - id: a
    url: https://example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Endpoints[0].ID != "a" {
		t.Errorf("Endpoints[0].ID = %q", cfg.Endpoints[0].ID)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"10s", 10 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{"ten", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			yaml := "engine:\n  backoff: " + tt.input + "\nendpoints:\n  - id: a\n    url: https://example.com\n"
			cfg, err := Parse([]byte(yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Parse() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.Engine.Backoff.Duration() != tt.want {
				t.Errorf("Backoff = %v, want %v", cfg.Engine.Backoff.Duration(), tt.want)
			}
		})
	}
}
