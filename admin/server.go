// Package admin serves the operator-facing HTTP surface: liveness,
// Prometheus scraping, a JSON status dump of the pipeline's counters, and a
// live /ws/events counter stream for dashboards that would rather not poll
// /statusz.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/health"
	"github.com/trailmark-labs/ppm/metric"
	"github.com/trailmark-labs/ppm/pipeline"
	"github.com/trailmark-labs/ppm/security"
	"github.com/trailmark-labs/ppm/tlsutil"
)

// eventsBroadcastInterval is how often /ws/events pushes a fresh counter
// snapshot. Fast enough to feel live on an operator dashboard, slow enough
// that it never competes with the consume/filter/produce loop for CPU.
const eventsBroadcastInterval = 1 * time.Second

// StatusProvider supplies the counter snapshot /statusz reports.
// *pipeline.Engine satisfies this directly.
type StatusProvider interface {
	Counters() pipeline.Snapshot
}

// Server is the admin HTTP surface: /healthz, /metrics, /statusz.
type Server struct {
	addr     string
	registry *metric.Registry
	monitor  *health.Monitor
	status   StatusProvider
	tlsCfg   security.ServerTLSConfig
	logger   *slog.Logger

	events       *eventBroadcaster
	eventsCancel context.CancelFunc

	mu     sync.Mutex
	server *http.Server
}

// NewServer builds a Server bound to addr (":8080"-style). tlsCfg.Enabled
// turns on ListenAndServeTLS with a certificate loaded via tlsutil. logger
// may be nil, in which case a discarding logger is used.
func NewServer(addr string, registry *metric.Registry, monitor *health.Monitor, status StatusProvider, tlsCfg security.ServerTLSConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Server{
		addr:     addr,
		registry: registry,
		monitor:  monitor,
		status:   status,
		tlsCfg:   tlsCfg,
		logger:   logger,
		events:   newEventBroadcaster(status, logger),
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Start blocks serving until the server is closed by Stop or fails to bind.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("admin server already running"), "admin", "Start", "check running state")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/statusz", s.handleStatusz)
	mux.HandleFunc("/ws/events", s.events.handleWebSocket)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}

	srv := &http.Server{Addr: s.addr, Handler: mux}
	s.server = srv
	eventsCtx, cancel := context.WithCancel(context.Background())
	s.eventsCancel = cancel
	s.mu.Unlock()

	go s.events.Run(eventsCtx, eventsBroadcastInterval)

	if s.tlsCfg.Enabled {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(s.tlsCfg)
		if err != nil {
			return errors.WrapFatal(err, "admin", "Start", "load TLS config")
		}
		srv.TLSConfig = tlsConfig
		if err := srv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return errors.WrapFatal(err, "admin", "Start", fmt.Sprintf("listen on %s", s.addr))
		}
		return nil
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "admin", "Start", fmt.Sprintf("listen on %s", s.addr))
	}
	return nil
}

// Stop shuts the server down; safe to call even if Start never ran.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	if s.eventsCancel != nil {
		s.eventsCancel()
		s.eventsCancel = nil
	}
	err := s.server.Close()
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "admin", "Stop", "close HTTP server")
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := s.monitor.AggregateHealth("ppm")
	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleStatusz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.status == nil {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		return
	}
	_ = json.NewEncoder(w).Encode(s.status.Counters())
}
