package speedboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpalmerr/speedboard/dashboard"
	"github.com/jpalmerr/speedboard/internal/blocklist"
	"github.com/jpalmerr/speedboard/internal/endpoint"
	"github.com/jpalmerr/speedboard/internal/events"
	"github.com/jpalmerr/speedboard/internal/history"
	"github.com/jpalmerr/speedboard/internal/metrics"
	"github.com/jpalmerr/speedboard/internal/poller"
	"github.com/jpalmerr/speedboard/internal/probe"
	"github.com/jpalmerr/speedboard/internal/server"
	"github.com/jpalmerr/speedboard/internal/sink"
)

const defaultPort = 8080

// ErrAlreadyStarted is returned by [SpeedBoard.Start] on every call after the first.
var ErrAlreadyStarted = errors.New("speedboard already started")

// SpeedBoard is the main orchestrator for latency probing and dashboard serving.
//
// SpeedBoard owns a pool of workers that continuously probe every
// configured endpoint, a rolling history of accepted samples, a blocklist
// of endpoints that timed out, and an optional HTTP server streaming all of
// it to the dashboard. It is created using [New] with functional options and
// started with [SpeedBoard.Start].
//
// The typical lifecycle is:
//
//	sb, err := speedboard.New(speedboard.WithEndpoints(eps...))
//	if err != nil {
//	    slog.Error("failed to create speedboard", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	sb.Start(ctx) // blocks until context cancelled
//
// Query methods ([SpeedBoard.History], [SpeedBoard.Stats] and friends) are
// safe to call from any goroutine at any time, including before Start.
type SpeedBoard struct {
	title     string
	endpoints []Endpoint
	port      int
	dashboard bool
	logger    *slog.Logger

	fileOutputs   []string
	influxOutputs []sink.InfluxConfig

	bus       *events.Bus
	feed      *events.Feed
	blocklist *blocklist.Manager
	history   *history.Aggregator
	metrics   *metrics.Collector
	scheduler *poller.Scheduler

	mu      sync.Mutex
	started bool
}

// New creates a new [SpeedBoard] instance with the given options.
//
// Defaults:
//   - Workers: 4
//   - Probe timeout: 5 seconds
//   - Backoff when nothing is probeable: 1 second
//   - Rolling window: 100 samples
//   - Port: 8080
//
// An empty endpoint registry is allowed; the workers idle on backoff.
// Returns an error if any option is invalid or two endpoints share an id.
func New(opts ...Option) (*SpeedBoard, error) {
	defaults := poller.DefaultConfig()
	cfg := &sbConfig{
		port:       defaultPort,
		dashboard:  true,
		workers:    defaults.Workers,
		timeout:    defaults.Timeout,
		backoff:    defaults.Backoff,
		loopDelay:  defaults.LoopDelay,
		stagger:    defaults.Stagger,
		dedupDelay: defaults.DedupDelay,
		windowSize: history.DefaultWindowSize,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	internal := make([]endpoint.Endpoint, len(cfg.endpoints))
	for i, ep := range cfg.endpoints {
		internal[i] = ep.toInternal()
	}
	source, err := endpoint.NewStaticSource(internal)
	if err != nil {
		return nil, err
	}

	collector, err := metrics.New(cfg.registry)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logger)
	hist := history.NewAggregator(source, cfg.windowSize, logger)

	// history and metrics listen first so callbacks observe updated state
	bus.Subscribe(events.KindSample, hist.Listen)
	bus.Subscribe(events.KindSample, collector.Listen)
	bus.Subscribe(events.KindBlocklist, collector.Listen)

	bl := blocklist.NewManager(source, bus, logger)
	scheduler := poller.NewScheduler(source, probe.NewClient(), bl, bus, collector, poller.Config{
		Workers:    cfg.workers,
		Timeout:    cfg.timeout,
		Backoff:    cfg.backoff,
		LoopDelay:  cfg.loopDelay,
		DedupDelay: cfg.dedupDelay,
		Stagger:    cfg.stagger,
	}, logger)

	sb := &SpeedBoard{
		title:         cfg.title,
		endpoints:     cfg.endpoints,
		port:          cfg.port,
		dashboard:     cfg.dashboard,
		logger:        logger,
		fileOutputs:   cfg.fileOutputs,
		influxOutputs: cfg.influxOutputs,
		bus:           bus,
		feed:          events.NewFeed(bus),
		blocklist:     bl,
		history:       hist,
		metrics:       collector,
		scheduler:     scheduler,
	}

	for _, cb := range cfg.sampleCallbacks {
		sb.OnSample(cb)
	}
	for _, cb := range cfg.blocklistCallbacks {
		sb.OnBlocklistChange(cb)
	}
	for _, cb := range cfg.progressCallbacks {
		sb.OnProgress(cb)
	}

	return sb, nil
}

// Start begins probing endpoints and, unless [WithoutDashboard] was given,
// serving the dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// On cancellation the workers stop, in-flight probes are abandoned without
// producing samples or blocklist changes, and outputs are flushed and closed.
//
// Returns nil on graceful shutdown. Returns an error if an output cannot be
// opened or the HTTP server fails to start. A SpeedBoard runs once; later
// calls return [ErrAlreadyStarted].
func (sb *SpeedBoard) Start(ctx context.Context) error {
	sb.mu.Lock()
	if sb.started {
		sb.mu.Unlock()
		return ErrAlreadyStarted
	}
	sb.started = true
	sb.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}

	sinks, err := sb.openSinks()
	if err != nil {
		return err
	}

	sb.logger.Info("speedboard starting",
		"endpoint_count", len(sb.endpoints),
		"workers", sb.scheduler.Config().Workers,
		"timeout", sb.scheduler.Config().Timeout.String(),
	)

	sb.scheduler.Start(ctx)

	cleanup := func() {
		sb.scheduler.Stop()
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				sb.logger.Warn("failed to close output", "error", err)
			}
		}
	}

	if sb.dashboard {
		httpServer := server.NewServer(backend{sb}, server.Options{
			Port:    sb.port,
			Assets:  dashboard.Assets,
			Title:   sb.title,
			Metrics: sb.metrics.Handler(),
		}, sb.logger)
		if err := httpServer.Start(ctx); err != nil {
			cleanup()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		sb.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", sb.port))
	}

	<-ctx.Done()
	cleanup()
	sb.logger.Info("speedboard stopped")
	return nil
}

// openSinks opens every configured output and subscribes it to samples.
// On failure the already opened outputs are closed.
func (sb *SpeedBoard) openSinks() ([]sink.Sink, error) {
	var sinks []sink.Sink
	fail := func(err error) ([]sink.Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	for _, path := range sb.fileOutputs {
		f, err := sink.NewFile(path, sb.logger)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, f)
	}
	for _, ic := range sb.influxOutputs {
		in, err := sink.NewInflux(ic, sb.logger)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, in)
	}

	for _, s := range sinks {
		sb.bus.Subscribe(events.KindSample, s.Listen)
	}
	return sinks, nil
}

// OnSample registers cb for every accepted sample. Listeners added after
// Start see only subsequent samples. Nil callbacks are ignored.
//
// Callbacks run synchronously on a probe worker goroutine, so they should
// return quickly. No engine lock is held while they run: a callback may
// call any query method ([SpeedBoard.History], [SpeedBoard.Stats],
// [SpeedBoard.Progress], ...) and [SpeedBoard.Retry]. A panicking callback
// is recovered and logged.
func (sb *SpeedBoard) OnSample(cb func(Sample)) {
	if cb == nil {
		return
	}
	sb.bus.Subscribe(events.KindSample, func(ev events.Event) {
		if ev.Sample != nil {
			cb(sampleFromInternal(*ev.Sample))
		}
	})
}

// OnBlocklistChange registers cb for blocklist changes. The callback
// receives the full list of blocked endpoints in registry order.
//
// Callbacks follow the same rules as [SpeedBoard.OnSample]. Calling Retry
// from the callback is allowed; the resulting change is delivered after
// the callback returns. Changes are always delivered in the order they
// happened.
func (sb *SpeedBoard) OnBlocklistChange(cb func([]Endpoint)) {
	if cb == nil {
		return
	}
	sb.bus.Subscribe(events.KindBlocklist, func(ev events.Event) {
		cb(endpointsFromInternal(ev.Blocked))
	})
}

// OnProgress registers cb for warm-up progress updates. Callbacks follow
// the same rules as [SpeedBoard.OnSample] and may call [SpeedBoard.Progress].
func (sb *SpeedBoard) OnProgress(cb func(Progress)) {
	if cb == nil {
		return
	}
	sb.bus.Subscribe(events.KindProgress, func(ev events.Event) {
		if ev.Progress != nil {
			cb(progressFromInternal(*ev.Progress))
		}
	})
}

// Retry returns a blocked endpoint to the probe rotation. Its next
// countable result is treated as warm-up again.
//
// Retrying an endpoint that is not blocked is a no-op. Returns an error
// wrapping [ErrUnknownEndpoint] if id is not configured.
func (sb *SpeedBoard) Retry(id string) error {
	return sb.scheduler.Retry(id)
}

// History returns a snapshot of every endpoint's rolling record, fastest
// first. Endpoints without an accepted sample are absent.
func (sb *SpeedBoard) History() []Record {
	recs := sb.history.Read()
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = recordFromInternal(r)
	}
	return out
}

// Nearest returns the record with the lowest average among non-CDN
// endpoints. ok is false until such an endpoint has a sample.
func (sb *SpeedBoard) Nearest() (Record, bool) {
	rec, ok := sb.history.Nearest()
	if !ok {
		return Record{}, false
	}
	return recordFromInternal(rec), true
}

// Blocked returns the currently blocked endpoints in registry order.
func (sb *SpeedBoard) Blocked() []Endpoint {
	return endpointsFromInternal(sb.blocklist.Blocked())
}

// Stats returns a snapshot of scheduler state.
func (sb *SpeedBoard) Stats() Stats {
	return statsFromInternal(sb.scheduler.Stats())
}

// Progress returns the current warm-up progress.
func (sb *SpeedBoard) Progress() Progress {
	return progressFromInternal(sb.scheduler.Progress())
}

// Endpoints returns a copy of the configured endpoints.
func (sb *SpeedBoard) Endpoints() []Endpoint {
	cp := make([]Endpoint, len(sb.endpoints))
	copy(cp, sb.endpoints)
	return cp
}

// Port returns the configured HTTP port for the dashboard server.
func (sb *SpeedBoard) Port() int {
	return sb.port
}

// backend adapts SpeedBoard to the server's view of the engine.
type backend struct {
	sb *SpeedBoard
}

func (b backend) History() []history.Record { return b.sb.history.Read() }
func (b backend) Blocked() []endpoint.Endpoint { return b.sb.blocklist.Blocked() }
func (b backend) Stats() poller.Stats { return b.sb.scheduler.Stats() }
func (b backend) Progress() events.Progress { return b.sb.scheduler.Progress() }
func (b backend) Retry(id string) error { return b.sb.scheduler.Retry(id) }
func (b backend) Subscribe() <-chan events.Event { return b.sb.feed.Subscribe() }
func (b backend) Unsubscribe(ch <-chan events.Event) { b.sb.feed.Unsubscribe(ch) }
