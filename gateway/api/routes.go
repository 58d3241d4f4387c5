package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// JSON-RPC forwarding
	r.HandleFunc("/eth", s.handleDefaultRPC).Methods(http.MethodPost)
	r.HandleFunc("/rpc/{chain_id}", s.handleRPC).Methods(http.MethodPost)

	// API v1 endpoints
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/pools", s.handlePools).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{chain_id}", s.handlePool).Methods(http.MethodGet)
	v1.HandleFunc("/broadcast/{chain_id}", s.handleBroadcast).Methods(http.MethodPost)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}
