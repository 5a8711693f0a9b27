package config

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jpalmerr/speedboard"
)

func TestBuildEndpoints_SingleEndpoint(t *testing.T) {
	cfg := &Config{
		Endpoints: []EndpointConfig{
			{
				ID:        "westeurope",
				Name:      "West Europe",
				URL:       "https://speedtestwe.blob.core.windows.net/cb.json",
				Icon:      "nl",
				Location:  "Amsterdam",
				Geography: "Europe",

				AvailabilityZones: []string{"westeurope-1"},
			},
		},
	}

	endpoints, err := BuildEndpoints(cfg)
	if err != nil {
		t.Fatalf("BuildEndpoints() error = %v", err)
	}
	if len(endpoints) != 1 {
		t.Fatalf("len(endpoints) = %d, want 1", len(endpoints))
	}

	ep := endpoints[0]
	if ep.ID() != "westeurope" || ep.DisplayName() != "West Europe" {
		t.Errorf("ID/DisplayName = %q/%q", ep.ID(), ep.DisplayName())
	}
	if ep.Icon() != "nl" || ep.Location() != "Amsterdam" || ep.Geography() != "Europe" {
		t.Errorf("metadata = %q/%q/%q", ep.Icon(), ep.Location(), ep.Geography())
	}
	if zones := ep.AvailabilityZones(); len(zones) != 1 || zones[0] != "westeurope-1" {
		t.Errorf("AvailabilityZones() = %v", zones)
	}
	if ep.CDN() {
		t.Error("CDN() = true, want false")
	}
}

func TestBuildEndpoints_NameDefaultsToID(t *testing.T) {
	endpoints, err := BuildEndpoints(&Config{
		Endpoints: []EndpointConfig{{ID: "cdn", URL: "https://example.azureedge.net/cb.json", CDN: true}},
	})
	if err != nil {
		t.Fatalf("BuildEndpoints() error = %v", err)
	}
	if endpoints[0].DisplayName() != "cdn" || !endpoints[0].CDN() {
		t.Errorf("endpoint = %+v", endpoints[0])
	}
}

func TestBuildEndpoints_Grid(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{
			{
				ID:                "dc",
				Name:              "Datacenter",
				URLTemplate:       "https://{{.city}}.example.com/cb.json",
				Dimensions:        map[string][]string{"city": {"dublin", "london"}},
				LocationDimension: "city",
				Geography:         "Europe",
			},
		},
	}

	endpoints, err := BuildEndpoints(cfg)
	if err != nil {
		t.Fatalf("BuildEndpoints() error = %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("len(endpoints) = %d, want 2", len(endpoints))
	}

	ep := endpoints[1]
	if ep.ID() != "dc-london" {
		t.Errorf("ID() = %q, want dc-london", ep.ID())
	}
	if ep.DisplayName() != "Datacenter (london)" {
		t.Errorf("DisplayName() = %q", ep.DisplayName())
	}
	if ep.URL() != "https://london.example.com/cb.json" {
		t.Errorf("URL() = %q", ep.URL())
	}
	if ep.Location() != "london" || ep.Geography() != "Europe" {
		t.Errorf("Location/Geography = %q/%q", ep.Location(), ep.Geography())
	}
}

func TestBuildEndpoints_MixedEndpointsAndGrids(t *testing.T) {
	cfg := &Config{
		Endpoints: []EndpointConfig{{ID: "single", URL: "https://single.example.com"}},
		Grids: []GridConfig{{
			ID:          "g",
			URLTemplate: "https://{{.r}}.example.com",
			Dimensions:  map[string][]string{"r": {"a", "b"}},
		}},
	}

	endpoints, err := BuildEndpoints(cfg)
	if err != nil {
		t.Fatalf("BuildEndpoints() error = %v", err)
	}

	var ids []string
	for _, ep := range endpoints {
		ids = append(ids, ep.ID())
	}
	if got := strings.Join(ids, ","); got != "single,g-a,g-b" {
		t.Errorf("ids = %s, want single,g-a,g-b", got)
	}
}

func TestBuildEndpoints_GridTemplateExecutionError(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{{
			ID:          "g",
			URLTemplate: "https://{{.missing}}.example.com",
			Dimensions:  map[string][]string{"r": {"a"}},
		}},
	}

	_, err := BuildEndpoints(cfg)
	if err == nil {
		t.Fatal("BuildEndpoints() expected error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "grid g:") {
		t.Errorf("error = %q, want grid context", err.Error())
	}
}

func TestBuildEndpoints_EmptyConfig(t *testing.T) {
	endpoints, err := BuildEndpoints(&Config{})
	if err != nil {
		t.Fatalf("BuildEndpoints() error = %v", err)
	}
	if len(endpoints) != 0 {
		t.Errorf("len(endpoints) = %d, want 0", len(endpoints))
	}
}

func TestBuildOptions_AcceptedByNew(t *testing.T) {
	yaml := `
title: Test
port: 9191
engine:
  workers: 2
  timeout: 2s
endpoints:
  - id: a
    url: https://a.example.com
grids:
  - id: g
    url_template: https://{{.r}}.example.com
    dimensions:
      r: [x, y]
outputs:
  - type: file
    path: /tmp/samples.csv
  - type: influxdb
    url: http://localhost:8086
    org: home
    bucket: latency
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sb, err := speedboard.New(append(opts, speedboard.WithLogger(logger))...)
	if err != nil {
		t.Fatalf("speedboard.New() error = %v", err)
	}

	if sb.Port() != 9191 {
		t.Errorf("Port() = %d, want 9191", sb.Port())
	}
	if got := len(sb.Endpoints()); got != 3 {
		t.Errorf("len(Endpoints()) = %d, want 3", got)
	}
	if got := sb.Stats().TotalEndpoints; got != 3 {
		t.Errorf("Stats().TotalEndpoints = %d, want 3", got)
	}
}

func TestBuildOptions_DuplicateAcrossGridRejectedByNew(t *testing.T) {
	cfg := &Config{
		Port:   8080,
		Engine: EngineConfig{Workers: 1, Timeout: Duration(1e9), Backoff: Duration(1e9), DedupDelay: Duration(1e6), WindowSize: 10},
		Endpoints: []EndpointConfig{
			{ID: "g-a", URL: "https://a.example.com"},
		},
		Grids: []GridConfig{{
			ID:          "g",
			URLTemplate: "https://{{.r}}.example.com",
			Dimensions:  map[string][]string{"r": {"a"}},
		}},
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	if _, err := speedboard.New(opts...); err == nil {
		t.Error("speedboard.New() expected duplicate id error, got nil")
	}
}
