package sink

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/speedboard/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent(id string, ms float64, code int, errMsg string) events.Event {
	return events.NewSampleEvent(events.Sample{
		EndpointID: id,
		Duration:   time.Duration(ms * float64(time.Millisecond)),
		DurationMs: ms,
		Timestamp:  time.UnixMilli(1700000000123),
		StatusCode: code,
		Error:      errMsg,
	})
}

func TestFile_WritesCSVLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	f, err := NewFile(path, testLogger())
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	f.Listen(sampleEvent("a", 12.5, 200, ""))
	f.Listen(sampleEvent("b", 30, 0, "connection refused"))
	f.Listen(events.NewBlocklistEvent(nil))
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	want := "1700000000123,a,12.500,200\n1700000000123,b,30.000,error\n"
	if string(data) != want {
		t.Errorf("file contents = %q, want %q", data, want)
	}
}

func TestFile_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	if err := os.WriteFile(path, []byte("existing\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(path, testLogger())
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	f.Listen(sampleEvent("a", 1, 204, ""))
	f.Close()

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "existing\n") {
		t.Errorf("existing contents overwritten: %q", data)
	}
}

func TestFile_ListenAfterClose(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "s.csv"), testLogger())
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	f.Close()

	// must not panic
	f.Listen(sampleEvent("a", 1, 200, ""))
	if err := f.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewFile_BadPath(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "missing", "s.csv"), testLogger()); err == nil {
		t.Error("NewFile() error = nil for missing directory")
	}
}

func TestInfluxConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     InfluxConfig
		wantErr string
	}{
		{name: "valid", cfg: InfluxConfig{URL: "http://localhost:8086", Org: "o", Bucket: "b"}},
		{name: "missing url", cfg: InfluxConfig{Org: "o", Bucket: "b"}, wantErr: "url is required"},
		{name: "missing org", cfg: InfluxConfig{URL: "http://x", Bucket: "b"}, wantErr: "org is required"},
		{name: "missing bucket", cfg: InfluxConfig{URL: "http://x", Org: "o"}, wantErr: "bucket is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInflux_WritesLatencyPoints(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewInflux(InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "b"}, testLogger())
	if err != nil {
		t.Fatalf("NewInflux() error = %v", err)
	}

	s.Listen(sampleEvent("a", 12.5, 200, ""))
	s.Listen(events.NewProgressEvent(events.Progress{}))
	s.Listen(sampleEvent("b", 30, 0, "refused"))
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("received %d writes, want 2", len(bodies))
	}
	if !strings.HasPrefix(bodies[0], "latency,endpoint=a,status=200 duration_ms=12.5") {
		t.Errorf("first point = %q", bodies[0])
	}
	if !strings.HasPrefix(bodies[1], "latency,endpoint=b,status=error duration_ms=30") {
		t.Errorf("second point = %q", bodies[1])
	}
}

func TestInflux_CloseIsIdempotent(t *testing.T) {
	s, err := NewInflux(InfluxConfig{URL: "http://127.0.0.1:1", Org: "o", Bucket: "b"}, testLogger())
	if err != nil {
		t.Fatalf("NewInflux() error = %v", err)
	}
	s.Close()
	s.Close()

	// must not panic after close
	s.Listen(sampleEvent("a", 1, 200, ""))
}
