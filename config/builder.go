package config

import (
	"fmt"

	"github.com/jpalmerr/speedboard"
)

// BuildEndpoints converts parsed configuration into SDK Endpoint objects.
//
// Direct endpoints come first, in file order, followed by each grid's
// expansion. Ids must be unique across the combined list; [speedboard.New]
// rejects duplicates.
func BuildEndpoints(cfg *Config) ([]speedboard.Endpoint, error) {
	var endpoints []speedboard.Endpoint

	for _, ec := range cfg.Endpoints {
		ep, err := buildEndpoint(ec)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", ec.ID, err)
		}
		endpoints = append(endpoints, ep)
	}

	for _, gc := range cfg.Grids {
		gridEndpoints, err := buildGridEndpoints(gc)
		if err != nil {
			return nil, fmt.Errorf("grid %s: %w", gc.ID, err)
		}
		endpoints = append(endpoints, gridEndpoints...)
	}

	return endpoints, nil
}

// BuildOptions converts the whole configuration into [speedboard.Option]
// values: endpoints, engine tuning, dashboard settings and outputs.
func BuildOptions(cfg *Config) ([]speedboard.Option, error) {
	endpoints, err := BuildEndpoints(cfg)
	if err != nil {
		return nil, err
	}

	e := cfg.Engine
	opts := []speedboard.Option{
		speedboard.WithEndpoints(endpoints...),
		speedboard.WithPort(cfg.Port),
		speedboard.WithTitle(cfg.Title),
		speedboard.WithWorkers(e.Workers),
		speedboard.WithTimeout(e.Timeout.Duration()),
		speedboard.WithBackoff(e.Backoff.Duration()),
		speedboard.WithLoopDelay(e.LoopDelay.Duration()),
		speedboard.WithStagger(e.Stagger.Duration()),
		speedboard.WithDedupDelay(e.DedupDelay.Duration()),
		speedboard.WithWindowSize(e.WindowSize),
	}

	for _, o := range cfg.Outputs {
		switch o.Type {
		case OutputFile:
			opts = append(opts, speedboard.WithFileOutput(o.Path))
		case OutputInfluxDB:
			opts = append(opts, speedboard.WithInfluxOutput(o.URL, o.Token, o.Org, o.Bucket))
		}
	}

	return opts, nil
}

func buildEndpoint(ec EndpointConfig) (speedboard.Endpoint, error) {
	var opts []speedboard.EndpointOption

	if ec.Name != "" {
		opts = append(opts, speedboard.WithDisplayName(ec.Name))
	}
	if ec.Icon != "" {
		opts = append(opts, speedboard.WithIcon(ec.Icon))
	}
	if ec.Location != "" {
		opts = append(opts, speedboard.WithLocation(ec.Location))
	}
	if ec.Geography != "" {
		opts = append(opts, speedboard.WithGeography(ec.Geography))
	}
	if len(ec.AvailabilityZones) > 0 {
		opts = append(opts, speedboard.WithAvailabilityZones(ec.AvailabilityZones...))
	}
	if ec.CDN {
		opts = append(opts, speedboard.WithCDN())
	}

	return speedboard.NewEndpoint(ec.ID, ec.URL, opts...)
}

func buildGridEndpoints(gc GridConfig) ([]speedboard.Endpoint, error) {
	opts := []speedboard.GridOption{
		speedboard.WithURLTemplate(gc.URLTemplate),
		speedboard.WithDimensions(gc.Dimensions),
		speedboard.WithGridIcon(gc.Icon),
		speedboard.WithGridGeography(gc.Geography),
	}
	if gc.Name != "" {
		opts = append(opts, speedboard.WithGridDisplayName(gc.Name))
	}
	if gc.LocationDimension != "" {
		opts = append(opts, speedboard.WithLocationDimension(gc.LocationDimension))
	}
	if gc.CDN {
		opts = append(opts, speedboard.WithGridCDN())
	}

	return speedboard.NewEndpointGrid(gc.ID, opts...)
}
