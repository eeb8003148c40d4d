package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := newTestHub()
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })
	return hub
}

// TestStatusHandler tests the health endpoint body and status code.
func TestStatusHandler(t *testing.T) {
	req := require.New(t)
	hub := newRunningHub(t)
	mux := SetupRoutes(hub, NewConfig(), slog.New(slog.DiscardHandler))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	req.Equal(http.StatusOK, rr.Code)
	req.Equal("application/json", rr.Header().Get("Content-Type"))
	var body StatusResponse
	req.NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	req.Equal("ok", body.Status)
	req.Zero(body.ActiveUserCount)
	_, err := time.Parse(time.RFC3339, body.Timestamp)
	req.NoError(err)
}

// TestStatusHandlerHubStopped tests that a stopped hub reports unavailable.
func TestStatusHandlerHubStopped(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	go hub.Run()
	req.NoError(hub.Shutdown(time.Second))

	rr := httptest.NewRecorder()
	StatusHandler(hub, slog.New(slog.DiscardHandler))(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	req.Equal(http.StatusServiceUnavailable, rr.Code)
	var body StatusResponse
	req.NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	req.Equal("unavailable", body.Status)
}

// TestRootHandler tests the informational root endpoint.
func TestRootHandler(t *testing.T) {
	req := require.New(t)
	hub := newRunningHub(t)
	mux := SetupRoutes(hub, NewConfig(), slog.New(slog.DiscardHandler))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	req.Equal(http.StatusOK, rr.Code)
	var body RootResponse
	req.NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	req.Equal("Real-time chat relay", body.Message)
	req.Zero(body.ActiveUsers)
}

// TestSetupRoutes tests method restrictions and unknown paths.
func TestSetupRoutes(t *testing.T) {
	hub := newRunningHub(t)
	mux := SetupRoutes(hub, NewConfig(), slog.New(slog.DiscardHandler))

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"GET root", http.MethodGet, "/", http.StatusOK},
		{"POST root", http.MethodPost, "/", http.StatusMethodNotAllowed},
		{"GET health", http.MethodGet, "/health", http.StatusOK},
		{"DELETE health", http.MethodDelete, "/health", http.StatusMethodNotAllowed},
		{"GET test page", http.MethodGet, "/test", http.StatusOK},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			require.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

// TestWebSocketHandlerMethodValidation tests that non-GET requests are rejected.
func TestWebSocketHandlerMethodValidation(t *testing.T) {
	hub := newTestHub()
	handler := WebSocketHandler(hub, NewConfig(), slog.New(slog.DiscardHandler))

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler(rr, httptest.NewRequest(method, "/ws", strings.NewReader("x")))

			require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
			require.Contains(t, rr.Body.String(), "only accepts GET")
		})
	}
}

// TestWebSocketHandlerGETWithoutUpgrade tests that a plain GET fails the upgrade.
func TestWebSocketHandlerGETWithoutUpgrade(t *testing.T) {
	hub := newTestHub()
	handler := WebSocketHandler(hub, NewConfig(), slog.New(slog.DiscardHandler))

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

// TestTestPageHandler tests that the HTML page speaks the envelope protocol.
func TestTestPageHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	TestPageHandler(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, "text/html", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Body.String(), "set-username")
	require.Contains(t, rr.Body.String(), "chat-message")
}

// TestCreateServer tests the HTTP server timeouts.
func TestCreateServer(t *testing.T) {
	req := require.New(t)
	mux := http.NewServeMux()

	srv := CreateServer(":8080", mux)

	req.Equal(":8080", srv.Addr)
	req.Equal(mux, srv.Handler)
	req.Equal(15*time.Second, srv.ReadTimeout)
	req.Equal(15*time.Second, srv.WriteTimeout)
	req.Equal(60*time.Second, srv.IdleTimeout)
}
