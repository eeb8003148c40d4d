// Package server defines the JSON envelope exchanged over WebSocket frames and
// the helpers that translate frames to and from chat events.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Tyrowin/relaychat/internal/chat"
)

// Envelope is the JSON frame format in both directions:
// {"event": "<name>", "data": <payload>}.
type Envelope struct {
	Event string          `json:"event" validate:"required,max=64"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Event chat.Event `json:"event"`
	Data  any        `json:"data,omitempty"`
}

// SendMessagePayload is the data of an inbound send-message event. SenderName
// is accepted for compatibility but the registered name is always used.
type SendMessagePayload struct {
	SenderName string `json:"senderName,omitempty"`
	Body       string `json:"body"`
}

// inboundEvent is one decoded client event queued for the hub loop.
type inboundEvent struct {
	client *Client
	event  chat.Event
	text   string
}

var errUnknownEvent = errors.New("unknown event")

// decodeInbound parses a raw frame into the event the hub should dispatch.
func decodeInbound(raw []byte) (chat.Event, string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", "", fmt.Errorf("decode envelope: %w", err)
	}
	if err := validate.Struct(env); err != nil {
		return "", "", fmt.Errorf("validate envelope: %w", err)
	}

	event := chat.Event(env.Event)
	switch event {
	case chat.EventSetUsername:
		var name string
		if err := json.Unmarshal(env.Data, &name); err != nil {
			return "", "", fmt.Errorf("decode %s payload: %w", event, err)
		}
		return event, name, nil

	case chat.EventSendMessage:
		var payload SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return "", "", fmt.Errorf("decode %s payload: %w", event, err)
		}
		return event, payload.Body, nil

	case chat.EventTypingStart, chat.EventTypingStop:
		return event, "", nil

	default:
		return "", "", fmt.Errorf("%w: %q", errUnknownEvent, env.Event)
	}
}

func encodeEnvelope(event chat.Event, payload any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Event: event, Data: payload})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
