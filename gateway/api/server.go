// Package api serves the gateway over HTTP: JSON-RPC forwarding per chain,
// broadcast, pool diagnostics, health and metrics.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second

	// maxBodyBytes bounds inbound JSON-RPC payloads
	maxBodyBytes = 10 << 20
)

// Server provides HTTP endpoints
type Server struct {
	logger   zerolog.Logger
	registry PoolRegistry
	gatherer prometheus.Gatherer
	server   *http.Server
}

// NewServer creates a new Server instance. gatherer may be nil, in which
// case /metrics is not mounted.
func NewServer(logger zerolog.Logger, port int, registry PoolRegistry, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		logger:   logger.With().Str("component", "api_server").Logger(),
		registry: registry,
		gatherer: gatherer,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the port and serves in the background
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("api server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	go func() {
		err := s.server.Serve(ln)
		switch err {
		case nil:
			s.logger.Info().Msg("API server stopped normally")
		case http.ErrServerClosed:
			s.logger.Info().Msg("API server closed gracefully")
		default:
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
