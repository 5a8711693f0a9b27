package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/jpalmerr/speedboard/internal/events"
)

const (
	influxBuffer       = 1024
	influxWriteTimeout = 5 * time.Second
)

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Validate checks the required fields.
func (c InfluxConfig) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("influxdb url is required"))
	}
	if c.Org == "" {
		errs = append(errs, errors.New("influxdb org is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("influxdb bucket is required"))
	}
	return errors.Join(errs...)
}

// Influx writes samples as points of measurement "latency", tagged by
// endpoint and status, with field duration_ms.
//
// Points are queued and written by a single background goroutine; when the
// queue is full new points are dropped rather than stalling probe workers.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	points   chan *write.Point
	done     chan struct{}
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewInflux creates the sink and starts its writer.
func NewInflux(cfg InfluxConfig, logger *slog.Logger) (*Influx, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		points:   make(chan *write.Point, influxBuffer),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go s.run()
	return s, nil
}

// Listen queues sample events; other kinds are ignored.
func (s *Influx) Listen(ev events.Event) {
	if ev.Kind != events.KindSample || ev.Sample == nil {
		return
	}
	p := samplePoint(*ev.Sample)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.points <- p:
	default:
		s.logger.Warn("influxdb queue full, dropping sample", "endpoint", ev.Sample.EndpointID)
	}
}

// Close flushes queued points and releases the client.
func (s *Influx) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.points)
	s.mu.Unlock()

	<-s.done
	s.client.Close()
	return nil
}

func (s *Influx) run() {
	defer close(s.done)
	for p := range s.points {
		ctx, cancel := context.WithTimeout(context.Background(), influxWriteTimeout)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			s.logger.Error("influxdb write failed", "error", err)
		}
		cancel()
	}
}

func samplePoint(s events.Sample) *write.Point {
	return influxdb2.NewPointWithMeasurement("latency").
		AddTag("endpoint", s.EndpointID).
		AddTag("status", s.Status()).
		AddField("duration_ms", s.DurationMs).
		SetTime(s.Timestamp)
}
