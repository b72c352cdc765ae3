// Package server is the protocol gateway: it terminates the REST lifecycle
// endpoints and the per-session duplex websocket, translating wire messages
// into session registry operations.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxwire/voxwire/internal/logging"
)

// Handler assembles the gateway routes.
func Handler(hub *Hub, manager SessionManager) http.Handler {
	mux := http.NewServeMux()

	registerAPIRoutes(mux, manager)
	registerWSRoute(mux, hub, manager)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Serve runs the gateway until the listener fails.
func Serve(addr string, hub *Hub, manager SessionManager) error {
	log := logging.WithComponent("gateway")
	log.Info().Str("addr", addr).Msg("gateway listening")
	return http.ListenAndServe(addr, Handler(hub, manager))
}
