// Package poller runs the continuous latency probe loop for SpeedBoard.
//
// This package is internal to SpeedBoard. A fixed pool of workers shares a
// rotation queue of endpoints; each worker repeatedly takes the next
// endpoint, probes it, and classifies the outcome:
//
//   - the first countable result per endpoint is warm-up and discarded
//   - later successes and network errors are published as samples
//   - timeouts move the endpoint to the [blocklist.Manager]
//
// At most one probe per endpoint is outstanding at any time. Concurrency
// is bounded only by the worker count; there is no rate limiting.
//
// Users of the speedboard library should not need to interact with this
// package directly. Configuration is done through the main speedboard
// package.
package poller
