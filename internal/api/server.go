// Package api exposes the daemon's HTTP ops surface.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/observability"
)

// Server wraps the ops router.
type Server struct {
	Mux *mux.Router
}

// New builds the router with logging and request metrics applied to every
// route, plus the prometheus exposition endpoint.
func New(a *API, logger *zap.Logger, reg *prometheus.Registry) *Server {
	root := mux.NewRouter()
	root.Use(Logging(logger), Metrics(observability.APIRequests))

	a.Register(root)
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &Server{Mux: root}
}
