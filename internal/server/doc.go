// Package server provides the HTTP server for the SpeedBoard dashboard and API.
//
// This package is internal to SpeedBoard and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - REST API: history, blocklist and stats snapshots under "/api", plus
//     endpoint reinstatement
//   - Streaming: engine events as Server-Sent Events at "/api/sse" and over
//     WebSocket at "/api/ws"
//   - Metrics: Prometheus exposition at "/metrics"
//
// Streamed events are JSON envelopes of the form {"type": ..., "data": ...}.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the speedboard library should not need to interact with this
// package directly. The server is started automatically by [speedboard.SpeedBoard.Start].
package server
