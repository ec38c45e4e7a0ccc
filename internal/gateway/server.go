package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thesecretlab-dev/anima-dashboard/internal/audit"
	"github.com/thesecretlab-dev/anima-dashboard/internal/auth"
	"github.com/thesecretlab-dev/anima-dashboard/internal/config"
	"github.com/thesecretlab-dev/anima-dashboard/internal/observability"
	"github.com/thesecretlab-dev/anima-dashboard/internal/sandbox"
	"github.com/thesecretlab-dev/anima-dashboard/internal/security"
	"github.com/thesecretlab-dev/anima-dashboard/internal/sessions"
	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

const tickInterval = 30 * time.Second

// Server is the gateway process: HTTP listener, socket control plane,
// run dispatch, and the hardening layer in front of all of it.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string

	security   *security.State
	auth       *auth.Service
	store      sessions.Store
	hub        *Hub
	dispatcher *Dispatcher
	metrics    *observability.Metrics

	sessionListLimit int

	httpServer *http.Server
	stopTick   chan struct{}
}

// ServerOptions overrides parts of the default wiring.
type ServerOptions struct {
	// Runner executes agent runs; nil selects the sandbox shell runner
	// when the sandbox is enabled, the echo runner otherwise.
	Runner Runner

	// Registry receives the server's metrics; nil uses the Prometheus
	// default registry.
	Registry *prometheus.Registry

	Version string
}

// NewServer wires a gateway from configuration.
func NewServer(cfg *config.Config, logger *slog.Logger, opts ServerOptions) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	var reg prometheus.Registerer
	if opts.Registry != nil {
		reg = opts.Registry
	}
	metrics := observability.NewMetrics(reg)

	secState := security.NewState(cfg.Security, logger)
	secState.Audit().SetObserver(func(ev audit.Event) {
		metrics.SecurityEvents.WithLabelValues(string(ev.Type)).Inc()
	})
	store := sessions.NewMemoryStore(cfg.Gateway.Scope)
	hub := NewHub(cfg.Gateway.EventBuffer, metrics, logger)

	runner := opts.Runner
	if runner == nil {
		if cfg.Sandbox.Enabled {
			runner = &SandboxShellRunner{
				Config:  cfg.Sandbox,
				Runner:  sandbox.NewRunner("", logger),
				Metrics: metrics,
			}
		} else {
			runner = EchoRunner{}
		}
	}

	s := &Server{
		cfg:              cfg,
		logger:           logger,
		version:          opts.Version,
		security:         secState,
		auth:             auth.NewService(cfg.Auth),
		store:            store,
		hub:              hub,
		metrics:          metrics,
		sessionListLimit: cfg.Gateway.SessionListLimit,
		stopTick:         make(chan struct{}),
	}
	s.dispatcher = NewDispatcher(cfg.Gateway.Scope, store, secState, runner, hub, metrics, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	if cfg.Gateway.MetricsEnabled {
		if opts.Registry != nil {
			mux.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
		} else {
			mux.Handle("/metrics", promhttp.Handler())
		}
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Gateway.Addr(),
		Handler:           secState.Middleware(s.instrument(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Security exposes the hardening state for operational surfaces.
func (s *Server) Security() *security.State {
	return s.security
}

// Start serves until the context is canceled, then drains.
func (s *Server) Start(ctx context.Context) error {
	go s.tickLoop()
	s.hub.Publish(models.NewHealthEvent(true))

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the listener and the tick loop.
func (s *Server) Shutdown() error {
	close(s.stopTick)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// tickLoop publishes liveness heartbeats so surfaces can distinguish a
// quiet feed from a dead connection.
func (s *Server) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopTick:
			return
		case <-ticker.C:
			s.hub.Publish(models.NewTickEvent())
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.HealthResponse{OK: true, Version: s.version})
}

// instrument records request latency per method/path/status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(recorder.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack is required for the websocket upgrade to pass through the
// instrumentation wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
