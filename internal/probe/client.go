// Package probe performs single timed HTTP requests against endpoints.
//
// This package is internal to SpeedBoard. A probe issues one GET, measures
// wall-clock time from dispatch to the first observed completion or abort,
// and folds every failure path into an [Outcome]. It never decides what to
// do with the result; that is the scheduler's job.
package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

// maxDrainSize bounds how much of a response body is read before the
// connection is released back to the pool.
const maxDrainSize = 64 << 10 // 64KB

// connection pooling limits, sized for tens of endpoints probed continuously
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// cacheBustParam is appended to every probe URL so intermediaries never
// answer from cache.
const cacheBustParam = "_"

// Kind classifies a probe result.
type Kind int

const (
	// Success means a response was received, regardless of status code.
	Success Kind = iota

	// TimedOut means no response arrived within the configured timeout.
	TimedOut

	// NetworkError means the request failed for another reason
	// (DNS, connection refused, TLS, protocol).
	NetworkError
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case TimedOut:
		return "timeout"
	case NetworkError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one probe.
type Outcome struct {
	// Kind is the classification.
	Kind Kind

	// Duration is the elapsed wall-clock time. Always set, including for
	// timeouts.
	Duration time.Duration

	// StatusCode is the HTTP status code. Zero unless Kind is Success.
	StatusCode int

	// Err describes the failure. nil for Success.
	Err error
}

// Prober performs one timed request to a URL.
//
// Implementations must not panic and must resolve every failure to an
// [Outcome].
type Prober interface {
	Probe(ctx context.Context, rawURL string, timeout time.Duration) Outcome
}

// Client is an HTTP [Prober] tuned for repeated latency measurement.
//
// Client applies timeouts per request via context rather than as a global
// client timeout. Connections are pooled, so only the first request per
// host pays DNS and TLS setup cost.
type Client struct {
	httpClient *http.Client
	seq        atomic.Uint64
}

// NewClient creates a new probe [Client].
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
			// a redirect still proves reachability; measure the first hop only
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe issues a single GET to rawURL and classifies the result.
//
// Any received response is a [Success]. Exceeding timeout yields [TimedOut]
// with the elapsed duration. Every other failure is a [NetworkError].
func (c *Client) Probe(ctx context.Context, rawURL string, timeout time.Duration) Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target, err := c.bust(rawURL)
	if err != nil {
		return Outcome{Kind: NetworkError, Err: err}
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return Outcome{Kind: NetworkError, Duration: time.Since(start), Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return classify(reqCtx, ctx, elapsed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// drain so the connection can be reused; body content is irrelevant
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))

	return Outcome{Kind: Success, Duration: elapsed, StatusCode: resp.StatusCode}
}

// Close releases idle pooled connections. Safe on a nil receiver.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// bust appends a unique query parameter to rawURL.
func (c *Client) bust(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(cacheBustParam, strconv.FormatInt(time.Now().UnixNano(), 36)+"-"+strconv.FormatUint(c.seq.Add(1), 36))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classify maps a transport error to an Outcome. A parent cancellation
// (shutdown) is reported as a NetworkError, not a timeout, so it can never
// blocklist an endpoint.
func classify(reqCtx, parent context.Context, elapsed time.Duration, err error) Outcome {
	if parent.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return Outcome{Kind: TimedOut, Duration: elapsed, Err: err}
	}

	var netErr net.Error
	if parent.Err() == nil && errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{Kind: TimedOut, Duration: elapsed, Err: err}
	}

	return Outcome{Kind: NetworkError, Duration: elapsed, Err: err}
}
