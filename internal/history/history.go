// Package history turns raw latency samples into comparable statistics.
//
// This package is internal to SpeedBoard. The [Aggregator] keeps a bounded
// rolling window of durations per endpoint, the window's arithmetic mean,
// and a percentage normalized against the slowest current average.
package history

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/jpalmerr/speedboard/internal/endpoint"
	"github.com/jpalmerr/speedboard/internal/events"
)

// DefaultWindowSize is the number of samples kept per endpoint.
const DefaultWindowSize = 100

// Record is the aggregated view of one endpoint.
//
// Records returned by the [Aggregator] are snapshots; mutating them does
// not affect the aggregator.
type Record struct {
	EndpointID  string `json:"id"`
	DisplayName string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Location    string `json:"location,omitempty"`
	Geography   string `json:"geography,omitempty"`
	CDN         bool   `json:"cdn,omitempty"`

	AvailabilityZones []string `json:"availabilityZones,omitempty"`

	// Values holds the window durations in milliseconds, oldest first.
	Values []float64 `json:"values"`

	// Average is the mean of Values in milliseconds.
	Average float64 `json:"average"`

	// Percent is Average relative to the slowest endpoint's average, 0-100.
	Percent float64 `json:"percent"`

	// Median and P95 summarize the window in milliseconds.
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`

	// Samples counts every sample accepted since the record was created,
	// including those already evicted from the window.
	Samples int `json:"samples"`

	// UpdatedAt is the timestamp of the newest sample.
	UpdatedAt time.Time `json:"updated_at"`
}

type entry struct {
	meta      endpoint.Endpoint
	window    []float64
	average   float64
	percent   float64
	samples   int
	updatedAt time.Time
}

// Aggregator maintains a [Record] per endpoint.
//
// Records are created lazily on the first sample and never removed.
// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	order      []*entry // insertion order, for stable tie-breaking
	source     endpoint.Source
	windowSize int
	logger     *slog.Logger
}

// NewAggregator creates an [Aggregator] resolving display metadata from
// source. A windowSize below 1 selects [DefaultWindowSize].
func NewAggregator(source endpoint.Source, windowSize int, logger *slog.Logger) *Aggregator {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		entries:    make(map[string]*entry),
		source:     source,
		windowSize: windowSize,
		logger:     logger,
	}
}

// Record adds a sample and returns the updated record.
//
// Samples for ids unknown to the source are ignored and ok is false.
// Every record's Percent is recomputed, since the normalization
// denominator is shared.
func (a *Aggregator) Record(s events.Sample) (rec Record, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, exists := a.entries[s.EndpointID]
	if !exists {
		meta, err := endpoint.Lookup(a.source, s.EndpointID)
		if err != nil {
			a.logger.Debug("sample for unknown endpoint ignored", "endpoint", s.EndpointID)
			return Record{}, false
		}
		e = &entry{meta: meta, window: make([]float64, 0, a.windowSize)}
		a.entries[s.EndpointID] = e
		a.order = append(a.order, e)
	}

	e.window = append(e.window, s.DurationMs)
	if over := len(e.window) - a.windowSize; over > 0 {
		// shift in place to keep the backing array bounded
		n := copy(e.window, e.window[over:])
		e.window = e.window[:n]
	}
	e.samples++
	e.updatedAt = s.Timestamp
	e.average = stat.Mean(e.window, nil)

	a.normalize()

	return e.snapshot(), true
}

// Listen is an events.Listener feeding sample events into Record.
func (a *Aggregator) Listen(ev events.Event) {
	if ev.Kind != events.KindSample || ev.Sample == nil {
		return
	}
	a.Record(*ev.Sample)
}

// Read returns all records sorted by ascending average. Ties keep
// insertion order.
func (a *Aggregator) Read() []Record {
	a.mu.RLock()
	records := make([]Record, len(a.order))
	for i, e := range a.order {
		records[i] = e.snapshot()
	}
	a.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Average < records[j].Average
	})
	return records
}

// Get returns the record for id.
func (a *Aggregator) Get(id string) (Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.entries[id]
	if !ok {
		return Record{}, false
	}
	return e.snapshot(), true
}

// Nearest returns the lowest-average record that is not CDN-backed.
func (a *Aggregator) Nearest() (Record, bool) {
	for _, rec := range a.Read() {
		if !rec.CDN {
			return rec, true
		}
	}
	return Record{}, false
}

// Len returns the number of records.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}

// normalize recomputes Percent for every entry. Must hold mu.
// O(endpoints) per sample, fine for tens of endpoints.
func (a *Aggregator) normalize() {
	var max float64
	for _, e := range a.order {
		if e.average > max {
			max = e.average
		}
	}
	for _, e := range a.order {
		switch {
		case max <= 0:
			e.percent = 0
		case e.average == max:
			e.percent = 100
		default:
			e.percent = 100 * e.average / max
		}
	}
}

func (e *entry) snapshot() Record {
	values := make([]float64, len(e.window))
	copy(values, e.window)

	rec := Record{
		EndpointID:  e.meta.ID,
		DisplayName: e.meta.DisplayName,
		Icon:        e.meta.Icon,
		Location:    e.meta.Location,
		Geography:   e.meta.Geography,
		CDN:         e.meta.CDN,
		Values:      values,
		Average:     e.average,
		Percent:     e.percent,
		Samples:     e.samples,
		UpdatedAt:   e.updatedAt,
	}

	if zones := e.meta.AvailabilityZones; len(zones) > 0 {
		rec.AvailabilityZones = append([]string(nil), zones...)
	}

	if len(values) > 0 {
		sorted := make([]float64, len(values))
		copy(sorted, values)
		sort.Float64s(sorted)
		rec.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		rec.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}

	return rec
}
