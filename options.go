package speedboard

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/speedboard/internal/sink"
)

// sbConfig holds mutable state during SpeedBoard construction.
type sbConfig struct {
	title      string
	endpoints  []Endpoint
	port       int
	dashboard  bool
	logger     *slog.Logger
	workers    int
	timeout    time.Duration
	backoff    time.Duration
	loopDelay  time.Duration
	stagger    time.Duration
	dedupDelay time.Duration
	windowSize int
	registry   *prometheus.Registry

	sampleCallbacks    []func(Sample)
	blocklistCallbacks []func([]Endpoint)
	progressCallbacks  []func(Progress)

	fileOutputs   []string
	influxOutputs []sink.InfluxConfig
}

// Option is a function that configures a [SpeedBoard] instance during construction.
//
// Options return an error if validation fails; [New] stops at the first one.
type Option func(*sbConfig) error

// WithEndpoint adds a single [Endpoint] to the registry.
//
// Can be called multiple times. Endpoint ids must be unique across all
// calls or [New] fails.
func WithEndpoint(e Endpoint) Option {
	return func(cfg *sbConfig) error {
		cfg.endpoints = append(cfg.endpoints, e)
		return nil
	}
}

// WithEndpoints adds multiple [Endpoint] values to the registry.
//
// Combines naturally with [NewEndpointGrid]:
//
//	grid, _ := speedboard.NewEndpointGrid("azure", ...)
//	sb, err := speedboard.New(speedboard.WithEndpoints(grid...))
func WithEndpoints(endpoints ...Endpoint) Option {
	return func(cfg *sbConfig) error {
		cfg.endpoints = append(cfg.endpoints, endpoints...)
		return nil
	}
}

// WithWorkers sets the number of concurrent probe workers.
//
// Workers bound how many probes run at once; there is no other rate limit.
// Defaults to 4.
//
// Returns an error if n is zero or negative.
func WithWorkers(n int) Option {
	return func(cfg *sbConfig) error {
		if n <= 0 {
			return errors.New("workers must be positive")
		}
		cfg.workers = n
		return nil
	}
}

// WithTimeout sets the per-probe deadline. A probe that exceeds it moves the
// endpoint to the blocklist. Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithBackoff sets how long an idle worker waits when every endpoint is
// blocked or in flight. Defaults to 1 second.
//
// Returns an error if the duration is zero or negative.
func WithBackoff(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d <= 0 {
			return errors.New("backoff must be positive")
		}
		cfg.backoff = d
		return nil
	}
}

// WithLoopDelay sets the pause between a worker's iterations. Defaults to 1ms.
//
// Returns an error if the duration is negative.
func WithLoopDelay(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d < 0 {
			return errors.New("loop delay cannot be negative")
		}
		cfg.loopDelay = d
		return nil
	}
}

// WithStagger sets the start offset between consecutive workers, so worker i
// begins after i*d. Defaults to 100ms.
//
// Returns an error if the duration is negative.
func WithStagger(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d < 0 {
			return errors.New("stagger cannot be negative")
		}
		cfg.stagger = d
		return nil
	}
}

// WithDedupDelay sets how long a worker waits after losing a race for an
// endpoint that another worker is already probing. Defaults to 10ms.
//
// Returns an error if the duration is zero or negative.
func WithDedupDelay(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d <= 0 {
			return errors.New("dedup delay must be positive")
		}
		cfg.dedupDelay = d
		return nil
	}
}

// WithWindowSize sets how many recent samples each endpoint's rolling
// average covers. Defaults to 100.
//
// Returns an error if n is zero or negative.
func WithWindowSize(n int) Option {
	return func(cfg *sbConfig) error {
		if n <= 0 {
			return errors.New("window size must be positive")
		}
		cfg.windowSize = n
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *sbConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithoutDashboard disables the HTTP server. The engine still probes and
// delivers events to callbacks, which suits embedding in another service.
func WithoutDashboard() Option {
	return func(cfg *sbConfig) error {
		cfg.dashboard = false
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "SpeedBoard".
func WithTitle(title string) Option {
	return func(cfg *sbConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the SpeedBoard instance.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *sbConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithSampleCallback registers a function to be called for every accepted sample.
//
// Callbacks run synchronously on the probing worker, after the rolling
// history has been updated, in registration order. They must be
// non-blocking. Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithSampleCallback(cb func(Sample)) Option {
	return func(cfg *sbConfig) error {
		if cb != nil {
			cfg.sampleCallbacks = append(cfg.sampleCallbacks, cb)
		}
		return nil
	}
}

// WithBlocklistCallback registers a function to be called whenever the set
// of blocked endpoints changes. It receives the full current list.
//
// Nil callbacks are silently ignored.
func WithBlocklistCallback(cb func([]Endpoint)) Option {
	return func(cfg *sbConfig) error {
		if cb != nil {
			cfg.blocklistCallbacks = append(cfg.blocklistCallbacks, cb)
		}
		return nil
	}
}

// WithProgressCallback registers a function to be called on warm-up
// progress and on the transition to [PhaseTesting].
//
// Nil callbacks are silently ignored.
func WithProgressCallback(cb func(Progress)) Option {
	return func(cfg *sbConfig) error {
		if cb != nil {
			cfg.progressCallbacks = append(cfg.progressCallbacks, cb)
		}
		return nil
	}
}

// WithMetricsRegistry registers the engine's Prometheus collectors on reg
// instead of a private registry. Use it to expose SpeedBoard metrics from an
// existing /metrics endpoint.
//
// Returns an error if reg is nil.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cfg *sbConfig) error {
		if reg == nil {
			return errors.New("metrics registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithFileOutput appends every accepted sample to a CSV file at path as
// "unix_ms,endpoint,duration_ms,status" lines. The file is opened by
// [SpeedBoard.Start] and closed on shutdown.
//
// Returns an error if path is empty.
func WithFileOutput(path string) Option {
	return func(cfg *sbConfig) error {
		if path == "" {
			return errors.New("file output path cannot be empty")
		}
		cfg.fileOutputs = append(cfg.fileOutputs, path)
		return nil
	}
}

// WithInfluxOutput writes every accepted sample to an InfluxDB v2 bucket as
// a "latency" point tagged with endpoint and status.
//
// Returns an error if url, org or bucket is empty.
func WithInfluxOutput(url, token, org, bucket string) Option {
	return func(cfg *sbConfig) error {
		ic := sink.InfluxConfig{URL: url, Token: token, Org: org, Bucket: bucket}
		if err := ic.Validate(); err != nil {
			return err
		}
		cfg.influxOutputs = append(cfg.influxOutputs, ic)
		return nil
	}
}
