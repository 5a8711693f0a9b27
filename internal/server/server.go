package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jpalmerr/speedboard/internal/endpoint"
	"github.com/jpalmerr/speedboard/internal/events"
	"github.com/jpalmerr/speedboard/internal/history"
	"github.com/jpalmerr/speedboard/internal/poller"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// wsWriteTimeout bounds each WebSocket frame write.
	wsWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "SpeedBoard"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Envelope type for the initial history snapshot sent to stream clients.
const typeHistory = "history"

// Backend is the engine state the server exposes.
type Backend interface {
	History() []history.Record
	Blocked() []endpoint.Endpoint
	Stats() poller.Stats
	Progress() events.Progress
	Retry(id string) error
	Subscribe() <-chan events.Event
	Unsubscribe(ch <-chan events.Event)
}

// Options configures a [Server].
type Options struct {
	// Port is the TCP port to listen on. 0 picks a free port.
	Port int

	// Assets holds assets/index.html. Nil disables the dashboard route.
	Assets fs.FS

	// Title replaces {{.Title}} in the dashboard, HTML-escaped.
	Title string

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// envelope is the wire format of every streamed event.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func newEnvelope(ev events.Event) envelope {
	return envelope{Type: string(ev.Kind), Data: ev.Payload()}
}

// Server handles HTTP requests for the SpeedBoard dashboard and API.
//
// Routes:
//   - GET /: embedded dashboard HTML
//   - GET /api/history: aggregated records, fastest first
//   - GET /api/blocklist: blocked endpoints
//   - GET /api/stats: scheduler stats and warm-up progress
//   - POST /api/endpoints/{id}/retry: reinstate a blocked endpoint
//   - GET /api/sse: Server-Sent Events stream of engine events
//   - GET /api/ws: the same stream over WebSocket
//   - GET /metrics: Prometheus exposition
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	backend    Backend
	opts       Options
	httpServer *http.Server
	addr       net.Addr
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server]. The server is not started until
// [Server.Start] is called.
func NewServer(backend Backend, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/blocklist", s.handleBlocklist).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/endpoints/{id}/retry", s.handleRetry).Methods(http.MethodPost)
	api.HandleFunc("/sse", s.handleSSE).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}
	if s.opts.Assets != nil {
		r.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
	}

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.opts.Port, err)
	}
	s.addr = ln.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", s.addr.String())
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.opts.Assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.opts.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.opts.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.History())
}

func (s *Server) handleBlocklist(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Blocked())
}

type statsResponse struct {
	poller.Stats
	Progress events.Progress `json:"progress"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		Stats:    s.backend.Stats(),
		Progress: s.backend.Progress(),
	})
}

// handleRetry reinstates a blocked endpoint. Retrying an endpoint that is
// not blocked succeeds without effect.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := s.backend.Retry(id)
	switch {
	case errors.Is(err, endpoint.ErrUnknownEndpoint):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		s.logger.Error("retry failed", "endpoint", id, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "retry failed"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// snapshot returns the envelopes sent to a newly connected stream client.
func (s *Server) snapshot() []envelope {
	return []envelope{
		{Type: string(events.KindProgress), Data: s.backend.Progress()},
		{Type: string(events.KindBlocklist), Data: s.backend.Blocked()},
		{Type: typeHistory, Data: s.backend.History()},
	}
}

// handleSSE streams engine events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(env envelope) error {
		data, err := json.Marshal(env)
		if err != nil {
			s.logger.Error("failed to encode sse event", "type", env.Type, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.backend.Subscribe()
	defer s.backend.Unsubscribe(ch)

	for _, env := range s.snapshot() {
		if err := writeAndFlush(env); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(newEnvelope(ev)); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// handleWS streams the same envelopes as handleSSE over a WebSocket.
//
// Hijacked connections are not tracked by http.Server.Shutdown, so the
// handler watches the request context itself and sends a going-away close
// frame on shutdown.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.backend.Subscribe()
	defer s.backend.Unsubscribe(ch)

	// drain client frames so control messages are processed and a
	// disconnect is noticed
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(env envelope) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(env)
	}

	for _, env := range s.snapshot() {
		if err := write(env); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := write(newEnvelope(ev)); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-gone:
			return

		case <-r.Context().Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}
