// Package testhelpers provides common utilities for testing the chat relay
// end to end: a WebSocket chat client that speaks the JSON envelope protocol,
// and small HTTP helpers.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// DefaultOrigin is the origin allowed by the default server configuration.
const DefaultOrigin = "http://localhost:8080"

// Envelope is a decoded server frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(e.Data, v); err != nil {
		t.Fatalf("Failed to decode %s payload %s: %v", e.Event, e.Data, err)
	}
}

// ChatConn wraps a WebSocket connection and splits batched frames into
// individual envelopes.
type ChatConn struct {
	Conn    *websocket.Conn
	pending []Envelope
}

// WebSocketURL turns an httptest server URL into the relay's WebSocket URL.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the given Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Dial connects a chat client with the default allowed origin and registers
// its closing with t.Cleanup.
func Dial(t *testing.T, url string) *ChatConn {
	t.Helper()
	conn, err := ConnectWebSocket(url, DefaultOrigin)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	c := &ChatConn{Conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// Emit sends one event with the given payload. A nil payload omits data.
func (c *ChatConn) Emit(t *testing.T, event string, data any) {
	t.Helper()
	frame := map[string]any{"event": event}
	if data != nil {
		frame["data"] = data
	}
	if err := c.Conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to emit %s: %v", event, err)
	}
}

// Close sends a normal close frame and closes the connection.
func (c *ChatConn) Close() error {
	err := c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return c.Conn.Close()
}

// next returns the next envelope, reading a new frame if needed. ok is false
// when nothing arrived before the timeout.
func (c *ChatConn) next(timeout time.Duration) (Envelope, bool, error) {
	if len(c.pending) == 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Envelope{}, false, err
		}
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Envelope{}, false, nil
			}
			return Envelope{}, false, err
		}
		for _, part := range bytes.Split(frame, []byte{'\n'}) {
			if len(part) == 0 {
				continue
			}
			var env Envelope
			if err := json.Unmarshal(part, &env); err != nil {
				return Envelope{}, false, err
			}
			c.pending = append(c.pending, env)
		}
	}

	env := c.pending[0]
	c.pending = c.pending[1:]
	return env, true, nil
}

// WaitFor reads envelopes until one named event arrives, discarding others.
func (c *ChatConn) WaitFor(t *testing.T, event string) Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var skipped []string
	for time.Now().Before(deadline) {
		env, ok, err := c.next(time.Until(deadline))
		if err != nil {
			t.Fatalf("Error waiting for %s: %v", event, err)
		}
		if !ok {
			break
		}
		if env.Event == event {
			return env
		}
		skipped = append(skipped, env.Event)
	}
	t.Fatalf("Timed out waiting for %s (skipped %v)", event, skipped)
	return Envelope{}
}

// ExpectNothing fails if any event other than the ignored ones arrives within timeout.
// Timing out on a WebSocket read poisons the connection, so call it last.
func (c *ChatConn) ExpectNothing(t *testing.T, timeout time.Duration, ignore ...string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env, ok, err := c.next(time.Until(deadline))
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.Fatalf("Unexpected error while waiting for absence of events: %v", err)
		}
		if !ok {
			return
		}
		if !lo.Contains(ignore, env.Event) {
			t.Fatalf("Expected no event, got %s: %s", env.Event, env.Data)
		}
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}
