package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of one connection.
type State int

const (
	StateDisconnected State = iota
	StateAnonymous
	StateNamed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateNamed:
		return "named"
	default:
		return "disconnected"
	}
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithClock overrides the time source for message and presence timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithIDGenerator overrides how chat message ids are produced.
func WithIDGenerator(next func() string) Option {
	return func(h *Handler) {
		if next != nil {
			h.nextID = next
		}
	}
}

// Handler drives the Anonymous -> Named -> Disconnected state machine of
// every connection and decides what gets broadcast for each transition.
type Handler struct {
	registry    *Registry
	anonymous   map[ConnID]struct{}
	broadcaster Broadcaster
	log         *slog.Logger
	now         func() time.Time
	nextID      func() string
}

// NewHandler creates a Handler that owns a fresh Registry and emits through b.
func NewHandler(b Broadcaster, opts ...Option) *Handler {
	h := &Handler{
		registry:    NewRegistry(),
		anonymous:   make(map[ConnID]struct{}),
		broadcaster: b,
		log:         slog.New(slog.DiscardHandler),
		now:         time.Now,
		nextID:      newMessageID,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// newMessageID returns a time-ordered UUIDv7, falling back to a random v4
// if the v7 generator fails.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// State reports the lifecycle state of id. Unknown ids are Disconnected.
func (h *Handler) State(id ConnID) State {
	if _, ok := h.registry.Name(id); ok {
		return StateNamed
	}
	if _, ok := h.anonymous[id]; ok {
		return StateAnonymous
	}
	return StateDisconnected
}

// UserCount returns the number of named sessions.
func (h *Handler) UserCount() int {
	return h.registry.Count()
}

// Connect records a new Anonymous connection. Nothing is broadcast.
func (h *Handler) Connect(id ConnID) {
	if h.State(id) != StateDisconnected {
		h.log.Warn("Connection already known; ignoring connect", "conn", id)
		return
	}
	h.anonymous[id] = struct{}{}
	h.log.Debug("Connection entered anonymous state", "conn", id)
}

// SetUsername names an Anonymous connection and announces the join, or
// renames a Named one. Blank names are ignored.
func (h *Handler) SetUsername(id ConnID, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		h.log.Debug("Ignoring blank username", "conn", id)
		return
	}

	switch h.State(id) {
	case StateAnonymous:
		h.join(id, name)
	case StateNamed:
		h.rename(id, name)
	default:
		h.log.Debug("Ignoring username for unknown connection", "conn", id)
	}
}

func (h *Handler) join(id ConnID, name string) {
	delete(h.anonymous, id)
	h.registry.Register(id, name)
	count := h.registry.Count()
	h.log.Info("User joined the chat", "conn", id, "name", name, "users", count)

	h.broadcaster.BroadcastAll(EventUserJoined, PresenceEvent{
		SubjectName:      name,
		Kind:             PresenceJoined,
		HumanMessage:     fmt.Sprintf("%s has joined the chat", name),
		OccurredAt:       h.now().UTC(),
		CurrentUserCount: count,
	})
	h.broadcaster.BroadcastAll(EventUserCount, count)
}

func (h *Handler) rename(id ConnID, name string) {
	previous, _ := h.registry.Name(id)
	if previous == name {
		return
	}
	h.registry.Register(id, name)
	h.log.Info("User renamed", "conn", id, "from", previous, "to", name)

	h.broadcaster.BroadcastAll(EventUserRenamed, PresenceEvent{
		SubjectName:      name,
		PreviousName:     previous,
		Kind:             PresenceRenamed,
		HumanMessage:     fmt.Sprintf("%s is now known as %s", previous, name),
		OccurredAt:       h.now().UTC(),
		CurrentUserCount: h.registry.Count(),
	})
}

// SendMessage broadcasts body to every connection on behalf of a Named
// connection. Blank bodies and messages from Anonymous connections are dropped.
func (h *Handler) SendMessage(id ConnID, body string) {
	sender, ok := h.registry.Name(id)
	if !ok {
		h.log.Debug("Dropping message from unnamed connection", "conn", id)
		return
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}

	h.broadcaster.BroadcastAll(EventChatMessage, ChatMessage{
		ID:         h.nextID(),
		SenderName: sender,
		Body:       body,
		SentAt:     h.now().UTC(),
	})
}

// TypingStart tells every other connection that id is typing.
func (h *Handler) TypingStart(id ConnID) {
	if sender, ok := h.registry.Name(id); ok {
		h.broadcaster.BroadcastOthers(EventTypingStart, sender, id)
	}
}

// TypingStop tells every other connection that id stopped typing.
func (h *Handler) TypingStop(id ConnID) {
	if _, ok := h.registry.Name(id); ok {
		h.broadcaster.BroadcastOthers(EventTypingStop, nil, id)
	}
}

// Disconnect ends the lifecycle of id. A Named connection's departure is
// announced; an Anonymous one leaves silently.
func (h *Handler) Disconnect(id ConnID) {
	delete(h.anonymous, id)

	name, ok := h.registry.Remove(id)
	if !ok {
		h.log.Debug("Anonymous connection disconnected", "conn", id)
		return
	}

	count := h.registry.Count()
	h.log.Info("User left the chat", "conn", id, "name", name, "users", count)

	h.broadcaster.BroadcastAll(EventUserLeft, PresenceEvent{
		SubjectName:      name,
		Kind:             PresenceLeft,
		HumanMessage:     fmt.Sprintf("%s has left the chat", name),
		OccurredAt:       h.now().UTC(),
		CurrentUserCount: count,
	})
	h.broadcaster.BroadcastAll(EventUserCount, count)
}
