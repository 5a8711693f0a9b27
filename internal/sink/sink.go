// Package sink forwards accepted latency samples to external outputs.
//
// This package is internal to SpeedBoard. Each sink is an event bus
// listener for sample events and must not block the publishing worker
// for long: the file sink appends one line per sample, and the InfluxDB
// sink hands points to a background writer.
package sink

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/jpalmerr/speedboard/internal/events"
)

// Sink receives samples until closed.
type Sink interface {
	Listen(ev events.Event)
	Close() error
}

// File appends samples to a file, one CSV line per sample:
//
//	unix_ms,endpoint,duration_ms,status
type File struct {
	mu     sync.Mutex
	w      io.WriteCloser
	path   string
	closed bool
	logger *slog.Logger
}

// NewFile opens (or creates) path for appending.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sample file: %w", err)
	}
	return &File{w: f, path: path, logger: logger}, nil
}

// Listen writes sample events; other kinds are ignored.
func (f *File) Listen(ev events.Event) {
	if ev.Kind != events.KindSample || ev.Sample == nil {
		return
	}
	s := ev.Sample

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	_, err := fmt.Fprintf(f.w, "%d,%s,%.3f,%s\n",
		s.Timestamp.UnixMilli(), s.EndpointID, s.DurationMs, s.Status())
	if err != nil {
		f.logger.Error("sample file write failed", "path", f.path, "error", err)
	}
}

// Close closes the file. Further samples are dropped.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.w.Close()
}
