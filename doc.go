// Package speedboard measures HTTP round-trip latency from the local machine
// to a fleet of regional endpoints and ranks them, live.
//
// SpeedBoard is SDK-first: configure endpoints and the engine with
// functional options, then run it under a context. A small pool of workers
// probes endpoints continuously, one probe per endpoint at a time, keeping a
// rolling window of recent latencies per endpoint. Endpoints that time out
// are moved to a blocklist until they are explicitly retried.
//
// # Quick Start
//
//	we, _ := speedboard.NewEndpoint("westeurope",
//	    "https://speedtestwe.blob.core.windows.net/cb.json",
//	    speedboard.WithDisplayName("West Europe"),
//	    speedboard.WithLocation("Amsterdam"),
//	)
//	sb, _ := speedboard.New(speedboard.WithEndpoint(we))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sb.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
//	sb, err := speedboard.New(
//	    speedboard.WithEndpoints(eps...),
//	    speedboard.WithWorkers(8),
//	    speedboard.WithTimeout(3 * time.Second),
//	    speedboard.WithWindowSize(50),
//	    speedboard.WithPort(9090),
//	)
//
// Regional fleets that follow a naming pattern can be expanded with
// [NewEndpointGrid].
//
// # Measurement Model
//
// Each endpoint's first countable result is discarded as warm-up (it pays
// for DNS and connection setup). After that, every successful probe and every
// network error becomes a [Sample]. A timeout never becomes a sample; it
// blocklists the endpoint. [SpeedBoard.Retry] puts it back and re-arms
// warm-up.
//
// Until every endpoint has finished warm-up the engine reports
// [PhaseWarmup] progress; afterwards it reports [PhaseTesting].
//
// # Observing
//
// Callbacks ([SpeedBoard.OnSample], [SpeedBoard.OnBlocklistChange],
// [SpeedBoard.OnProgress]) run synchronously in registration order. A panic
// in one is logged and does not affect the others.
//
// The embedded dashboard serves the same data over REST, Server-Sent
// Events and WebSocket, and exposes Prometheus metrics at /metrics.
//
// # Architecture
//
// SpeedBoard consists of several internal packages (under internal/):
//
//   - internal/poller: worker pool and probe scheduling
//   - internal/probe: HTTP probe execution and outcome classification
//   - internal/blocklist: endpoints withdrawn from rotation
//   - internal/history: rolling windows, averages and normalization
//   - internal/events: event bus and streaming feed
//   - internal/metrics: Prometheus collectors
//   - internal/sink: CSV and InfluxDB sample outputs
//   - internal/server: HTTP server with REST API, SSE and WebSocket
//   - dashboard: embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package speedboard
