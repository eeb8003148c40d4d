// Package server coordinates client registration, inbound chat events, and
// outbound fan-out for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/samber/lo"
)

// Hub owns every live WebSocket client and the chat lifecycle handler. All of
// its state is touched only by the Run goroutine; other goroutines talk to it
// through channels.
type Hub struct {
	clients    map[chat.ConnID]*Client
	chat       *chat.Handler
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	countReq   chan chan int
	log        *slog.Logger
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to Run. Extra options are passed to the chat
// handler, after the hub's own logger.
func NewHub(log *slog.Logger, opts ...chat.Option) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[chat.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		countReq:   make(chan chan int),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.chat = chat.NewHandler(h, append([]chat.Option{chat.WithLogger(log)}, opts...)...)
	return h
}

// Run starts the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)
			h.startPumps(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.inbound:
			h.handleInbound(ev)

		case reply := <-h.countReq:
			reply <- h.chat.UserCount()
		}
	}
}

// Register hands a new client to the event loop. It fails once the hub has stopped.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) submitUnregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) submitInbound(ev inboundEvent) {
	select {
	case h.inbound <- ev:
	case <-h.done:
	}
}

// ActiveUsers returns the number of named sessions as seen by the event loop.
func (h *Hub) ActiveUsers(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case h.countReq <- reply:
	case <-h.done:
		return 0, ErrHubStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Hub) addClient(client *Client) {
	client.closed = false
	h.clients[client.id] = client
	h.log.Info("Client registered", "addr", client.addr, "conn", client.id, "clients", len(h.clients))
	h.chat.Connect(client.id)
}

func (h *Hub) startPumps(client *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)
	h.closeSend(client)
	h.log.Info("Client unregistered", "addr", client.addr, "conn", client.id, "clients", len(h.clients))

	h.chat.Disconnect(client.id)
}

func (h *Hub) handleInbound(ev inboundEvent) {
	if _, ok := h.clients[ev.client.id]; !ok {
		return
	}

	switch ev.event {
	case chat.EventSetUsername:
		h.chat.SetUsername(ev.client.id, ev.text)
	case chat.EventSendMessage:
		h.chat.SendMessage(ev.client.id, ev.text)
	case chat.EventTypingStart:
		h.chat.TypingStart(ev.client.id)
	case chat.EventTypingStop:
		h.chat.TypingStop(ev.client.id)
	default:
		h.log.Warn("Ignoring unsupported inbound event", "event", ev.event, "conn", ev.client.id)
	}
}

// BroadcastAll implements chat.Broadcaster.
func (h *Hub) BroadcastAll(event chat.Event, payload any) {
	h.deliver(event, payload, func(*Client) bool { return true })
}

// BroadcastOthers implements chat.Broadcaster.
func (h *Hub) BroadcastOthers(event chat.Event, payload any, exclude chat.ConnID) {
	h.deliver(event, payload, func(c *Client) bool { return c.id != exclude })
}

func (h *Hub) deliver(event chat.Event, payload any, include func(*Client) bool) {
	message, err := encodeEnvelope(event, payload)
	if err != nil {
		h.log.Error("Failed to encode outbound event", "event", event, "error", err)
		return
	}

	targets := lo.Filter(lo.Values(h.clients), func(c *Client, _ int) bool {
		return !c.closed && include(c)
	})
	h.log.Debug("Broadcasting event", "event", event, "targets", len(targets))

	for _, client := range targets {
		if !h.trySend(client, message) {
			h.dropSlowClient(client)
		}
	}
}

func (h *Hub) trySend(client *Client, message []byte) bool {
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// dropSlowClient stops delivery to a client whose buffer is full. The client
// stays registered until its read pump reports the disconnect.
func (h *Hub) dropSlowClient(client *Client) {
	h.closeSend(client)
	h.log.Warn("Client dropped due to full send buffer", "addr", client.addr, "conn", client.id)
}

func (h *Hub) closeSend(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	close(client.send)
}

// shutdownClients closes every client's send channel and connection.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	clients := lo.Values(h.clients)
	for _, client := range clients {
		h.closeSend(client)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("Error closing client connection", "addr", client.addr, "error", err)
			}
		}
	}
	clear(h.clients)

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the event loop and waits for all client goroutines to
// finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
