package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/eventrelay/internal/config"
	"git.home.luguber.info/inful/eventrelay/internal/health"
	"git.home.luguber.info/inful/eventrelay/internal/metrics"
	"git.home.luguber.info/inful/eventrelay/internal/relay"
)

// statsSource is what the /stats endpoint needs from the relay.
type statsSource interface {
	Statistics(ctx context.Context) (relay.Statistics, error)
}

// adminServer serves health, metrics and relay statistics.
type adminServer struct {
	server *http.Server
}

func newAdminServer(cfg config.HTTPConfig, checker *health.Checker, promReg *prometheus.Registry, stats statsSource) *adminServer {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.HealthPath, checker.Handler)
	mux.Handle(cfg.MetricsPath, metrics.HTTPHandler(promReg))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		s, err := stats.Statistics(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			slog.Error("Failed to encode statistics", "error", err)
		}
	})

	return &adminServer{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// run blocks serving until the server is shut down.
func (s *adminServer) run() {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Admin HTTP server failed", "error", err)
	}
}

func (s *adminServer) stop(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("Admin HTTP server shutdown failed", "error", err)
	}
}
