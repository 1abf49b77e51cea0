package app

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"mediation-router/internal/common/logging"
	_ "mediation-router/internal/docs"
	"mediation-router/internal/handlers"
	"mediation-router/internal/middleware"
)

// SetupGatewayRoutes sends every request to the gateway handler. Paths reach
// dispatch as received, without cleaning or decoding.
func SetupGatewayRoutes(router *mux.Router, h *handlers.Handlers, logger logging.Logger) {
	router.SkipClean(true)
	router.UseEncodedPath()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))

	router.PathPrefix("/").HandlerFunc(h.Gateway)
}

// SetupAdminRoutes configures the admin API, its swagger docs, health and metrics
func SetupAdminRoutes(router *mux.Router, h *handlers.Handlers, metricsHandler http.Handler, logger logging.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))

	// Swagger documentation
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// Health check and metrics
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", metricsHandler).Methods("GET")

	admin := router.PathPrefix("/admin").Subrouter()

	// API deployment
	admin.HandleFunc("/apis", h.ListAPIs).Methods("GET")
	admin.HandleFunc("/apis/reorder", h.ReorderAPIs).Methods("POST")
	admin.HandleFunc("/apis/{name}", h.GetAPI).Methods("GET")
	admin.HandleFunc("/apis/{name}", h.PutAPI).Methods("PUT")
	admin.HandleFunc("/apis/{name}", h.DeleteAPI).Methods("DELETE")

	// Connection router and dispatch statistics
	admin.HandleFunc("/pool", h.GetPool).Methods("GET")
	admin.HandleFunc("/stats", h.GetStats).Methods("GET")
}
