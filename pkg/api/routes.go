package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the API under /api/v1 and the metrics endpoint for
// gatherer under /metrics.
func SetupRoutes(router *mux.Router, handlers *Handlers, gatherer prometheus.Gatherer) {
	api := router.PathPrefix("/api/v1").Subrouter()

	colorings := api.PathPrefix("/colorings").Subrouter()
	colorings.HandleFunc("", handlers.StartColoring).Methods(http.MethodPost)
	colorings.HandleFunc("", handlers.ListColorings).Methods(http.MethodGet)
	colorings.HandleFunc("/{jobId}", handlers.GetColoring).Methods(http.MethodGet)
	colorings.HandleFunc("/{jobId}", handlers.CancelColoring).Methods(http.MethodDelete)

	api.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// NewRouter builds the full handler with the middleware stack applied.
func NewRouter(handlers *Handlers, gatherer prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	SetupRoutes(router, handlers, gatherer)

	router.Use(LoggingMiddleware)
	router.Use(RecoveryMiddleware)

	// CORS wraps the router so preflight requests never reach route matching.
	return CORSMiddleware(router)
}
