package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestHub() *Hub {
	return NewHub(slog.New(slog.DiscardHandler))
}

// newTestClient builds a client without a connection; pumps are never started.
func newTestClient(hub *Hub, buffer int) *Client {
	cfg := NewConfig()
	cfg.SendBufferSize = buffer
	return NewClient(nil, hub, "127.0.0.1:12345", cfg)
}

func drainFrames(t *testing.T, c *Client) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			for _, part := range bytes.Split(raw, []byte{'\n'}) {
				var f frame
				require.NoError(t, json.Unmarshal(part, &f))
				frames = append(frames, f)
			}
		default:
			return frames
		}
	}
}

func frameEvents(frames []frame) []string {
	events := make([]string, 0, len(frames))
	for _, f := range frames {
		events = append(events, f.Event)
	}
	return events
}

// TestNewHub tests that NewHub returns a hub with an empty client set.
func TestNewHub(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()

	req.NotNil(hub)
	req.Empty(hub.clients)
	req.NotNil(hub.chat)
	req.Zero(hub.chat.UserCount())
}

// TestNewClient tests that clients get distinct connection ids and a buffered send channel.
func TestNewClient(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()

	first := newTestClient(hub, 4)
	second := newTestClient(hub, 4)

	req.NotEmpty(first.ID())
	req.NotEqual(first.ID(), second.ID())
	req.Equal(4, cap(first.send))
	req.Equal(int64(NewConfig().MaxMessageSize), first.maxMessageSize)
}

// TestHubJoinAndMessageFanOut tests that presence and chat messages reach
// every client including the sender.
func TestHubJoinAndMessageFanOut(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	alice := newTestClient(hub, 16)
	bob := newTestClient(hub, 16)
	hub.addClient(alice)
	hub.addClient(bob)

	hub.handleInbound(inboundEvent{client: alice, event: chat.EventSetUsername, text: "Alice"})
	req.Equal([]string{"user-joined", "user-count"}, frameEvents(drainFrames(t, alice)))
	req.Equal([]string{"user-joined", "user-count"}, frameEvents(drainFrames(t, bob)))

	hub.handleInbound(inboundEvent{client: alice, event: chat.EventSendMessage, text: "hi"})
	for _, c := range []*Client{alice, bob} {
		frames := drainFrames(t, c)
		req.Len(frames, 1)
		req.Equal("chat-message", frames[0].Event)
		var msg chat.ChatMessage
		req.NoError(json.Unmarshal(frames[0].Data, &msg))
		req.Equal("Alice", msg.SenderName)
		req.Equal("hi", msg.Body)
		req.NotEmpty(msg.ID)
	}
}

// TestHubTypingSkipsSender tests that typing indicators are not echoed.
func TestHubTypingSkipsSender(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	alice := newTestClient(hub, 16)
	bob := newTestClient(hub, 16)
	hub.addClient(alice)
	hub.addClient(bob)
	hub.handleInbound(inboundEvent{client: alice, event: chat.EventSetUsername, text: "Alice"})
	drainFrames(t, alice)
	drainFrames(t, bob)

	hub.handleInbound(inboundEvent{client: alice, event: chat.EventTypingStart})
	hub.handleInbound(inboundEvent{client: alice, event: chat.EventTypingStop})

	req.Empty(drainFrames(t, alice))
	frames := drainFrames(t, bob)
	req.Equal([]string{"typing-start", "typing-stop"}, frameEvents(frames))
	req.JSONEq(`"Alice"`, string(frames[0].Data))
	req.Empty(frames[1].Data)
}

// TestHubRemoveClientAnnouncesLeave tests that unregistering a named client
// tells the remaining clients and that a second unregister is ignored.
func TestHubRemoveClientAnnouncesLeave(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	alice := newTestClient(hub, 16)
	bob := newTestClient(hub, 16)
	hub.addClient(alice)
	hub.addClient(bob)
	hub.handleInbound(inboundEvent{client: bob, event: chat.EventSetUsername, text: "Bob"})
	drainFrames(t, alice)

	hub.removeClient(bob)
	hub.removeClient(bob)

	req.True(bob.closed)
	frames := drainFrames(t, alice)
	req.Equal([]string{"user-left", "user-count"}, frameEvents(frames))
	var presence chat.PresenceEvent
	req.NoError(json.Unmarshal(frames[0].Data, &presence))
	req.Equal("Bob", presence.SubjectName)
	req.Equal("Bob has left the chat", presence.HumanMessage)
	req.Equal(0, presence.CurrentUserCount)
}

// TestHubIgnoresEventsFromUnknownClients tests that events racing with an
// unregister are dropped.
func TestHubIgnoresEventsFromUnknownClients(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	watcher := newTestClient(hub, 16)
	ghost := newTestClient(hub, 16)
	hub.addClient(watcher)

	hub.handleInbound(inboundEvent{client: ghost, event: chat.EventSetUsername, text: "Ghost"})

	req.Empty(drainFrames(t, watcher))
	req.Zero(hub.chat.UserCount())
}

// TestHubDropsSlowClient tests that a full send buffer closes that client's
// channel without blocking delivery to others.
func TestHubDropsSlowClient(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	slow := newTestClient(hub, 1)
	fast := newTestClient(hub, 16)
	hub.addClient(slow)
	hub.addClient(fast)

	// user-joined fills the slow buffer, user-count overflows it
	hub.handleInbound(inboundEvent{client: fast, event: chat.EventSetUsername, text: "Fast"})

	req.True(slow.closed)
	req.False(fast.closed)
	req.Equal([]string{"user-joined", "user-count"}, frameEvents(drainFrames(t, fast)))

	// Later broadcasts skip the dropped client
	hub.handleInbound(inboundEvent{client: fast, event: chat.EventSendMessage, text: "still here"})
	req.Equal([]string{"chat-message"}, frameEvents(drainFrames(t, fast)))
	req.Equal([]string{"user-joined"}, frameEvents(drainFrames(t, slow)))

	// The dropped client is still registered until its unregister arrives
	_, registered := hub.clients[slow.id]
	req.True(registered)
	hub.removeClient(slow)
	_, registered = hub.clients[slow.id]
	req.False(registered)
}

// TestHubActiveUsers tests the status query served by the event loop.
func TestHubActiveUsers(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	go hub.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	count, err := hub.ActiveUsers(ctx)
	req.NoError(err)
	req.Zero(count)

	req.NoError(hub.Shutdown(time.Second))

	_, err = hub.ActiveUsers(ctx)
	req.ErrorIs(err, ErrHubStopped)
	req.ErrorIs(hub.Register(newTestClient(hub, 1)), ErrHubStopped)
}

// TestHubActiveUsersContextCanceled tests that a query against a hub that is
// not running gives up with the context.
func TestHubActiveUsersContextCanceled(t *testing.T) {
	hub := newTestHub()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := hub.ActiveUsers(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestHubShutdownNoClients tests that Shutdown completes within the timeout
// when no clients are connected.
func TestHubShutdownNoClients(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))
}

// TestConcurrentShutdown tests that concurrent Shutdown calls are safe.
func TestConcurrentShutdown(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errs <- hub.Shutdown(time.Second) }()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
}
