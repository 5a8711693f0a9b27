package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/speedboard/internal/blocklist"
	"github.com/jpalmerr/speedboard/internal/endpoint"
	"github.com/jpalmerr/speedboard/internal/events"
	"github.com/jpalmerr/speedboard/internal/probe"
)

// Defaults for [Config].
const (
	DefaultWorkers    = 4
	DefaultTimeout    = 5 * time.Second
	DefaultBackoff    = time.Second
	DefaultLoopDelay  = time.Millisecond
	DefaultDedupDelay = 10 * time.Millisecond
	DefaultStagger    = 100 * time.Millisecond
)

// Config tunes the worker pool.
type Config struct {
	// Workers is the fixed number of concurrent workers.
	Workers int

	// Timeout bounds each probe. Exceeding it blocklists the endpoint.
	Timeout time.Duration

	// Backoff is the sleep when every endpoint is blocked.
	Backoff time.Duration

	// LoopDelay separates worker iterations.
	LoopDelay time.Duration

	// DedupDelay is the sleep after abandoning a pick whose endpoint
	// already has a probe in flight.
	DedupDelay time.Duration

	// Stagger delays the start of worker i by i*Stagger.
	Stagger time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Workers:    DefaultWorkers,
		Timeout:    DefaultTimeout,
		Backoff:    DefaultBackoff,
		LoopDelay:  DefaultLoopDelay,
		DedupDelay: DefaultDedupDelay,
		Stagger:    DefaultStagger,
	}
}

// Publisher receives sample and progress events.
type Publisher interface {
	Publish(events.Event)
}

// Observer is notified of every classified probe and of in-flight changes.
// Used for metrics; implementations must be cheap and non-blocking.
type Observer interface {
	ObserveProbe(endpointID string, kind probe.Kind, d time.Duration)
	SetInFlight(n int)
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	TotalEndpoints int `json:"total_endpoints"`
	BlockedCount   int `json:"blocked_count"`
	ActiveCount    int `json:"active_count"`
	QueueLength    int `json:"queue_length"`
	InFlightCount  int `json:"in_flight_count"`
}

// inFlightRecord marks an endpoint with a probe outstanding.
type inFlightRecord struct {
	start time.Time
	seq   uint64
}

// Scheduler runs a fixed pool of workers that probe endpoints forever.
//
// Each worker repeatedly takes the next endpoint from a shared rotation
// queue, refilled from the source minus blocked endpoints. At most one
// probe per endpoint is in flight at any time. The first countable result
// for each endpoint after start or reinstatement is discarded as warm-up.
// Timeouts blocklist the endpoint; network errors are samples.
//
// The rotation queue, in-flight map and warm-up set are guarded by one
// mutex; the blocked set lives in the [blocklist.Manager]. Events are
// published with no scheduler lock held.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	source    endpoint.Source
	prober    probe.Prober
	blocklist *blocklist.Manager
	publisher Publisher
	observer  Observer
	cfg       Config
	logger    *slog.Logger

	mu       sync.Mutex
	queue    []endpoint.Endpoint
	inFlight map[string]inFlightRecord
	warm     map[string]struct{}
	seq      uint64

	progressMu sync.Mutex
	progress   events.Progress
	resolved   map[string]struct{}
	progressQ  *events.Queue

	// emptyPolls counts selections that found nothing to probe
	emptyPolls atomic.Int64

	lifeMu  sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a [Scheduler].
//
// The scheduler registers itself with bl so that reinstated endpoints are
// warmed up again. Zero fields in cfg take their defaults. publisher and
// observer may be nil.
func NewScheduler(source endpoint.Source, prober probe.Prober, bl *blocklist.Manager, publisher Publisher, observer Observer, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		source:    source,
		prober:    prober,
		blocklist: bl,
		publisher: publisher,
		observer:  observer,
		cfg:       withDefaults(cfg),
		logger:    logger,
		inFlight:  make(map[string]inFlightRecord),
		warm:      make(map[string]struct{}),
		resolved:  make(map[string]struct{}),
		progressQ: events.NewQueue(publisher),
		progress: events.Progress{
			Phase: events.PhaseWarmup,
			Total: len(source.List()),
		},
	}

	bl.OnUnblock(s.resetWarmup)
	return s
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.LoopDelay < 0 {
		cfg.LoopDelay = def.LoopDelay
	}
	if cfg.DedupDelay <= 0 {
		cfg.DedupDelay = def.DedupDelay
	}
	if cfg.Stagger < 0 {
		cfg.Stagger = def.Stagger
	}
	return cfg
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Start launches the workers in the background.
//
// Worker i begins after i*Stagger. Start is idempotent; calls after the
// first, or after Stop, are no-ops. If ctx is nil, context.Background()
// is used.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("scheduler starting",
		"workers", s.cfg.Workers,
		"timeout", s.cfg.Timeout.String(),
		"endpoints", s.progress.Total,
	)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx, i)
	}
}

// Stop cancels all workers and waits for them to exit. In-flight probes
// are abandoned and their results discarded. Stop is idempotent and safe
// to call before Start.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.lifeMu.Unlock()

	s.wg.Wait()

	if c, ok := s.prober.(interface{ Close() }); ok {
		c.Close()
	}
}

// Retry reinstates a blocked endpoint.
//
// Returns an error wrapping [endpoint.ErrUnknownEndpoint] if id is not in
// the source. Retrying an endpoint that is not blocked is a no-op.
func (s *Scheduler) Retry(id string) error {
	if _, err := endpoint.Lookup(s.source, id); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	s.blocklist.Unblock(id)
	return nil
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() Stats {
	total := len(s.source.List())
	blocked := s.blocklist.Count()

	s.mu.Lock()
	queueLen := len(s.queue)
	inFlight := len(s.inFlight)
	s.mu.Unlock()

	return Stats{
		TotalEndpoints: total,
		BlockedCount:   blocked,
		ActiveCount:    total - blocked,
		QueueLength:    queueLen,
		InFlightCount:  inFlight,
	}
}

// Progress returns the current warm-up progress.
func (s *Scheduler) Progress() events.Progress {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	return s.progress
}

// worker runs the probe loop until ctx is cancelled.
func (s *Scheduler) worker(ctx context.Context, idx int) {
	defer s.wg.Done()

	if !sleep(ctx, time.Duration(idx)*s.cfg.Stagger) {
		return
	}

	for {
		if !sleep(ctx, s.iterate(ctx)) {
			return
		}
	}
}

// iterate performs one select-dispatch-classify cycle and returns how long
// to wait before the next one.
func (s *Scheduler) iterate(ctx context.Context) time.Duration {
	ep, ok := s.next()
	if !ok {
		s.emptyPolls.Add(1)
		return s.cfg.Backoff
	}

	seq, ok := s.dispatch(ep.ID)
	if !ok {
		return s.cfg.DedupDelay
	}

	// a stale queue entry may name an endpoint blocked since the last
	// refill; nothing else can block it while we hold its in-flight record
	if s.blocklist.IsBlocked(ep.ID) {
		s.clear(ep.ID, seq)
		return s.cfg.LoopDelay
	}

	out := s.safeProbe(ctx, ep)

	if ctx.Err() != nil {
		s.clear(ep.ID, seq)
		return 0
	}

	s.handle(ep, seq, out)
	return s.cfg.LoopDelay
}

// next pops the next probe target, refilling the rotation queue when
// empty. Returns false when every endpoint is blocked.
func (s *Scheduler) next() (endpoint.Endpoint, bool) {
	// snapshot before taking mu: the blocklist lock is ordered before ours
	blocked := s.blocklist.BlockedIDs()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.queue) == 0 {
			for _, ep := range s.source.List() {
				if _, b := blocked[ep.ID]; !b {
					s.queue = append(s.queue, ep)
				}
			}
			if len(s.queue) == 0 {
				return endpoint.Endpoint{}, false
			}
		}

		ep := s.queue[0]
		s.queue = s.queue[1:]
		if _, b := blocked[ep.ID]; b {
			continue
		}
		return ep, true
	}
}

// dispatch creates the in-flight record for id. Returns false if one
// already exists.
func (s *Scheduler) dispatch(id string) (uint64, bool) {
	s.mu.Lock()
	if _, busy := s.inFlight[id]; busy {
		s.mu.Unlock()
		return 0, false
	}
	s.seq++
	seq := s.seq
	s.inFlight[id] = inFlightRecord{start: time.Now(), seq: seq}
	n := len(s.inFlight)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SetInFlight(n)
	}
	return seq, true
}

// clear removes id's in-flight record if it still belongs to seq.
func (s *Scheduler) clear(id string, seq uint64) {
	s.mu.Lock()
	if rec, ok := s.inFlight[id]; ok && rec.seq == seq {
		delete(s.inFlight, id)
	}
	n := len(s.inFlight)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SetInFlight(n)
	}
}

// handle classifies a probe outcome. The in-flight record is cleared only
// after the result has been emitted or discarded, so two results for the
// same endpoint can never interleave.
func (s *Scheduler) handle(ep endpoint.Endpoint, seq uint64, out probe.Outcome) {
	defer s.clear(ep.ID, seq)

	s.mu.Lock()
	rec, ok := s.inFlight[ep.ID]
	if !ok || rec.seq != seq {
		s.mu.Unlock()
		s.logger.Debug("stale probe result discarded", "endpoint", ep.ID, "seq", seq)
		return
	}

	if out.Kind == probe.TimedOut {
		s.mu.Unlock()
		s.observe(ep.ID, out)
		s.logger.Warn("probe timed out",
			"endpoint", ep.ID,
			"elapsed_ms", out.Duration.Milliseconds(),
		)
		s.blocklist.Block(ep.ID)
		s.resolveWarmup(ep.ID)
		return
	}

	_, warmed := s.warm[ep.ID]
	if !warmed {
		s.warm[ep.ID] = struct{}{}
	}
	s.mu.Unlock()
	s.observe(ep.ID, out)

	if !warmed {
		s.logger.Debug("warm-up sample discarded",
			"endpoint", ep.ID,
			"latency_ms", out.Duration.Milliseconds(),
		)
		s.resolveWarmup(ep.ID)
		return
	}

	sample := events.Sample{
		EndpointID: ep.ID,
		Duration:   out.Duration,
		DurationMs: float64(out.Duration) / float64(time.Millisecond),
		Timestamp:  time.Now(),
		StatusCode: out.StatusCode,
	}
	if out.Kind == probe.NetworkError {
		sample.StatusCode = 0
		sample.Error = errorMessage(out.Err)
	}

	s.logger.Debug("sample accepted",
		"endpoint", ep.ID,
		"latency_ms", out.Duration.Milliseconds(),
		"status", sample.Status(),
	)
	s.publish(events.NewSampleEvent(sample))
}

// observe reports a classified, non-stale outcome to the observer.
func (s *Scheduler) observe(id string, out probe.Outcome) {
	if s.observer != nil {
		s.observer.ObserveProbe(id, out.Kind, out.Duration)
	}
}

// resetWarmup is the blocklist unblock hook. It runs under the blocklist
// lock, before the endpoint is visible as unblocked.
func (s *Scheduler) resetWarmup(id string) {
	s.mu.Lock()
	delete(s.warm, id)
	s.mu.Unlock()
}

// resolveWarmup records that id has left warm-up (by a countable result or
// by being blocked) and emits progress. The phase moves to testing exactly
// once, when every endpoint has resolved.
func (s *Scheduler) resolveWarmup(id string) {
	s.progressMu.Lock()
	if s.progress.Phase != events.PhaseWarmup {
		s.progressMu.Unlock()
		return
	}
	if _, done := s.resolved[id]; done {
		s.progressMu.Unlock()
		return
	}
	s.resolved[id] = struct{}{}
	s.progress.Completed = len(s.resolved)
	s.progressQ.Push(events.NewProgressEvent(s.progress))

	finished := s.progress.Completed >= s.progress.Total
	if finished {
		s.progress.Phase = events.PhaseTesting
		s.progressQ.Push(events.NewProgressEvent(s.progress))
	}
	total := s.progress.Total
	s.progressMu.Unlock()

	if finished {
		s.logger.Info("warm-up complete", "endpoints", total)
	}
	s.progressQ.Flush()
}

// safeProbe calls the prober with panic recovery. A panicking prober
// yields a NetworkError outcome.
func (s *Scheduler) safeProbe(ctx context.Context, ep endpoint.Endpoint) (out probe.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("prober panic",
				"correlation_id", correlationID,
				"endpoint", ep.ID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			out = probe.Outcome{
				Kind:     probe.NetworkError,
				Duration: time.Since(start),
				Err:      fmt.Errorf("prober panic (correlation_id: %s)", correlationID),
			}
		}
	}()
	return s.prober.Probe(ctx, ep.ProbeURL, s.cfg.Timeout)
}

func (s *Scheduler) publish(ev events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// sleep waits for d or until ctx is done. Returns false if ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
