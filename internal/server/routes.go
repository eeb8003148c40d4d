// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import (
	"log/slog"
	"net/http"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application routes:
// the WebSocket endpoint, the health and root status endpoints, and the test page.
func SetupRoutes(hub *Hub, cfg *Config, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", RootHandler(hub, log))
	mux.HandleFunc("GET /health", StatusHandler(hub, log))
	mux.HandleFunc("/ws", WebSocketHandler(hub, cfg, log))
	mux.HandleFunc("GET /test", TestPageHandler)
	return mux
}
