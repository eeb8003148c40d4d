package chat

import "time"

// ConnID identifies one live transport connection. It is assigned by the
// transport and never reused.
type ConnID string

// Event names an inbound or outbound chat event.
type Event string

// Inbound events, client to server.
const (
	EventSetUsername Event = "set-username"
	EventSendMessage Event = "send-message"
	EventTypingStart Event = "typing-start"
	EventTypingStop  Event = "typing-stop"
)

// Outbound events, server to client. Typing events reuse the inbound names.
const (
	EventUserJoined  Event = "user-joined"
	EventUserLeft    Event = "user-left"
	EventUserRenamed Event = "user-renamed"
	EventUserCount   Event = "user-count"
	EventChatMessage Event = "chat-message"
)

// ChatMessage is a text message fanned out to every connection.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderName string    `json:"senderName"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

// PresenceKind tells what happened to the subject of a PresenceEvent.
type PresenceKind string

const (
	PresenceJoined  PresenceKind = "joined"
	PresenceLeft    PresenceKind = "left"
	PresenceRenamed PresenceKind = "renamed"
)

// PresenceEvent announces a join, leave or rename together with the user
// count observed right after the change.
type PresenceEvent struct {
	SubjectName      string       `json:"subjectName"`
	PreviousName     string       `json:"previousName,omitempty"`
	Kind             PresenceKind `json:"kind"`
	HumanMessage     string       `json:"humanMessage"`
	OccurredAt       time.Time    `json:"occurredAt"`
	CurrentUserCount int          `json:"currentUserCount"`
}
