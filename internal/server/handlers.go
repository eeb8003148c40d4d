// Package server exposes HTTP handlers, including WebSocket upgrades, the
// status endpoints, and the built-in test page.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const statusQueryTimeout = 2 * time.Second

// StatusResponse is the body of the health endpoint.
type StatusResponse struct {
	Status          string `json:"status"`
	ActiveUserCount int    `json:"activeUserCount"`
	Timestamp       string `json:"timestamp"`
}

// RootResponse is the body of the informational root endpoint.
type RootResponse struct {
	Message     string `json:"message"`
	ActiveUsers int    `json:"activeUsers"`
}

func newUpgrader(cfg *Config, log *slog.Logger) *websocket.Upgrader {
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}
}

// WebSocketHandler upgrades GET requests to WebSocket, creates a Client with a
// fresh connection id and hands it to the hub, which starts its pumps.
func WebSocketHandler(hub *Hub, cfg *Config, log *slog.Logger) http.HandlerFunc {
	upgrader := newUpgrader(cfg, log)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, cfg)
		if err := hub.Register(client); err != nil {
			log.Warn("Rejecting connection", "addr", r.RemoteAddr, "error", err)
			_ = conn.Close()
		}
	}
}

// StatusHandler reports liveness and the number of named users.
func StatusHandler(hub *Hub, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), statusQueryTimeout)
		defer cancel()

		resp := StatusResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}
		code := http.StatusOK

		count, err := hub.ActiveUsers(ctx)
		if err != nil {
			log.Warn("Status query failed", "error", err)
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
		resp.ActiveUserCount = count

		writeJSON(w, code, resp, log)
	}
}

// RootHandler serves a short description of the service.
func RootHandler(hub *Hub, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), statusQueryTimeout)
		defer cancel()

		count, err := hub.ActiveUsers(ctx)
		if err != nil {
			log.Warn("Active user query failed", "error", err)
		}
		writeJSON(w, http.StatusOK, RootResponse{
			Message:     "Real-time chat relay",
			ActiveUsers: count,
		}, log)
	}
}

func writeJSON(w http.ResponseWriter, code int, body any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("Error writing JSON response", "error", err)
	}
}

// TestPageHandler serves an HTML page for trying the chat protocol from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        #typing { color: gray; font-style: italic; min-height: 1em; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>
    <div>Users online: <span id="count">0</span></div>

    <div>
        <input type="text" id="nameInput" placeholder="Username...">
        <button onclick="setUsername()">Join</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>
    <div id="typing"></div>

    <script>
        const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(proto + location.host + '/ws');
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const typingDiv = document.getElementById('typing');
        let typing = false;

        function emit(event, data) {
            ws.send(JSON.stringify({ event: event, data: data }));
        }

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.color = color || 'black';
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function handle(envelope) {
            const data = envelope.data;
            switch (envelope.event) {
            case 'user-joined':
            case 'user-left':
            case 'user-renamed':
                addLine(data.humanMessage, 'gray');
                document.getElementById('count').textContent = data.currentUserCount;
                break;
            case 'user-count':
                document.getElementById('count').textContent = data;
                break;
            case 'chat-message':
                addLine('[' + new Date(data.sentAt).toLocaleTimeString() + '] ' + data.senderName + ': ' + data.body);
                break;
            case 'typing-start':
                typingDiv.textContent = data + ' is typing...';
                break;
            case 'typing-stop':
                typingDiv.textContent = '';
                break;
            }
        }

        ws.onopen = function() {
            const status = document.getElementById('status');
            status.textContent = 'Connected';
            status.className = 'status connected';
        };
        ws.onclose = function() {
            const status = document.getElementById('status');
            status.textContent = 'Disconnected';
            status.className = 'status disconnected';
        };
        ws.onmessage = function(event) {
            event.data.split('\n').forEach(function(frame) {
                if (frame) { handle(JSON.parse(frame)); }
            });
        };

        function setUsername() {
            const name = document.getElementById('nameInput').value.trim();
            if (name) {
                emit('set-username', name);
                messageInput.disabled = false;
                document.getElementById('sendButton').disabled = false;
            }
        }

        function sendMessage() {
            const body = messageInput.value.trim();
            if (body) {
                emit('send-message', { body: body });
                messageInput.value = '';
            }
            if (typing) {
                typing = false;
                emit('typing-stop');
            }
        }

        messageInput.addEventListener('input', function() {
            if (!typing && messageInput.value) {
                typing = true;
                emit('typing-start');
            } else if (typing && !messageInput.value) {
                typing = false;
                emit('typing-stop');
            }
        });
        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
