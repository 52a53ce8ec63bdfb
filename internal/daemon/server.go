package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/pkg/memory"
	"github.com/rs/zerolog"
)

// StatsFunc reports the current store statistics for the health endpoint.
type StatsFunc func(ctx context.Context) (memory.Stats, error)

// MetricsServer serves /metrics and /health.
type MetricsServer struct {
	addr      string
	stats     StatsFunc
	logger    zerolog.Logger
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// NewMetricsServer creates a server bound to host:port. Port 0 picks a free
// port; Addr reports it after Start.
func NewMetricsServer(host string, port int, stats StatsFunc, logger zerolog.Logger) *MetricsServer {
	return &MetricsServer{
		addr:   net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		stats:  stats,
		logger: logger.With().Str("component", "metrics_server").Logger(),
	}
}

// Start binds the listener and serves in the background.
func (s *MetricsServer) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/health", s.handleHealth)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.startTime = time.Now()
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting metrics server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *MetricsServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (s *MetricsServer) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	s.logger.Info().Msg("Metrics server stopped")
	return nil
}

func (s *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}
	code := http.StatusOK

	if s.stats != nil {
		stats, err := s.stats(r.Context())
		if err != nil {
			response["status"] = "degraded"
			response["error"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response["memories"] = stats.Count
			response["engine"] = stats.Engine
			response["dimension"] = stats.Dimension
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
