package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/nodeagent/pkg/log"
	"github.com/autopeer-io/nodeagent/pkg/options"
)

// Status exposes the agent state to the local endpoints.
type Status interface {
	// Ready reports whether the platform session is up.
	Ready() bool

	// Snapshot returns a JSON-encodable view of the agent state.
	Snapshot() any
}

// Server is the local health, metrics and debug endpoint.
type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

func NewServer(opts *options.HttpOptions, status Status, gatherer prometheus.Gatherer) *Server {
	return &Server{
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      NewRouter(status, gatherer),
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		options: opts,
	}
}

// NewRouter builds the endpoint routes.
func NewRouter(status Status, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Readiness follows the platform session.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !status.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("platform session down"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status.Snapshot()); err != nil {
			log.Warn("Failed to encode state", "err", err)
		}
	}).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.Timeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
