// Package server coordinates the chat relay: connection lifecycle, presence,
// message fan-out and asynchronous bot replies, all driven from the Hub's
// single event loop.
package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/bot"
	"github.com/Tyrowin/gochat-relay/internal/presence"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// BotRunner answers a bot query. Run must always return a displayable reply.
type BotRunner interface {
	Run(ctx context.Context, prompt string) string
}

// Hub manages all WebSocket client connections and handles message broadcasting.
// Client state and every presence mutation happen on the goroutine running
// Run; the mutex only guards the client set for concurrent readers.
type Hub struct {
	clients    map[*Client]bool
	inbound    chan InboundEvent
	botReplies chan ChatMessage
	register   chan *Client
	unregister chan *Client
	registry   *presence.Registry
	bot        BotRunner
	log        *zap.Logger
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub that records presence in registry and answers bot
// queries through runner.
func NewHub(registry *presence.Registry, runner BotRunner, log *zap.Logger) *Hub {
	if registry == nil {
		registry = presence.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		inbound:    make(chan InboundEvent),
		botReplies: make(chan ChatMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		registry:   registry,
		bot:        runner,
		log:        log.Named("hub"),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for attaching new connections.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for detaching connections.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetInboundChan returns the channel client events are processed from.
func (h *Hub) GetInboundChan() chan<- InboundEvent {
	return h.inbound
}

// Registry returns the presence registry the hub maintains.
func (h *Hub) Registry() *presence.Registry {
	return h.registry
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// join attaches c, giving up if the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// leave detaches c, giving up if the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// dispatch queues an event for the hub loop.
func (h *Hub) dispatch(ev InboundEvent) bool {
	select {
	case h.inbound <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", zap.Any("panic", r))
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop. It returns once Shutdown is called
// and should run in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.attach(client)

		case client := <-h.unregister:
			if h.detach(client, "connection closed") {
				h.broadcastUserList()
			}

		case ev := <-h.inbound:
			h.handleEvent(ev)

		case reply := <-h.botReplies:
			h.broadcastChat(reply)
		}
	}
}

// attach adds a connection in the Unregistered state and starts its pumps.
func (h *Hub) attach(client *Client) {
	if client == nil {
		h.log.Warn("Received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	client.state = StateUnregistered
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	client.log.Info("Client connected", zap.Int("clients", clientCount))

	// Connections without a socket are driven directly through the hub's
	// channels.
	if client.conn == nil {
		return
	}

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

// detach closes a connection and drops its presence entry. It reports
// whether the user list changed.
func (h *Hub) detach(client *Client, reason string) bool {
	if client == nil {
		return false
	}

	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	close(client.send)

	wasRegistered := client.state == StateRegistered
	client.state = StateClosed
	client.log.Info("Client disconnected",
		zap.String("reason", reason),
		zap.String("username", client.username),
		zap.Int("clients", clientCount))

	if !wasRegistered {
		return false
	}
	return h.registry.Remove(client.id)
}

// handleEvent applies one client event to the relay state machine.
func (h *Hub) handleEvent(ev InboundEvent) {
	client := ev.Client
	if client == nil || client.state == StateClosed {
		return
	}

	switch ev.Name {
	case EventRegister:
		h.handleRegister(client, ev.Data)
	case EventChatMessage:
		h.handleChatMessage(client, ev.Data)
	case EventBotQuery:
		h.handleBotQuery(client, ev.Data)
	default:
		client.log.Info("Ignoring unknown event", zap.String("event", ev.Name))
	}
}

func (h *Hub) handleRegister(client *Client, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		client.log.Info("Ignoring register with empty display name")
		return
	}

	client.username = name
	client.state = StateRegistered
	h.registry.Register(client.id, name)
	client.log.Info("User joined", zap.String("username", name))

	h.broadcastUserList()
}

func (h *Hub) handleChatMessage(client *Client, text string) {
	msg := ChatMessage{Username: client.displayName(), Text: text}
	client.log.Debug("Chat message", zap.String("username", msg.Username), zap.Int("length", len(text)))
	h.broadcastChat(msg)
}

// handleBotQuery runs the query off the event loop. The reply goes to every
// connection open when it resolves, whether or not the asker is still here.
// Without a bot the fallback reply is broadcast at once.
func (h *Hub) handleBotQuery(client *Client, prompt string) {
	if h.bot == nil {
		client.log.Warn("Bot query received but no bot is configured")
		h.broadcastChat(ChatMessage{Username: bot.Name, Text: bot.FallbackText})
		return
	}
	client.log.Info("Bot query received", zap.String("username", client.displayName()))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		reply := ChatMessage{Username: bot.Name, Text: h.bot.Run(h.ctx, prompt)}
		select {
		case h.botReplies <- reply:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) broadcastChat(msg ChatMessage) {
	payload, err := encodeEvent(EventChatMessage, msg)
	if err != nil {
		h.log.Error("Failed to encode chat message", zap.Error(err))
		return
	}
	h.broadcast(payload)
}

func (h *Hub) broadcastUserList() {
	payload, err := encodeEvent(EventUserList, userListPayload(h.registry.List()))
	if err != nil {
		h.log.Error("Failed to encode user list", zap.Error(err))
		return
	}
	h.broadcast(payload)
}

// broadcast delivers payload to every open connection, sender included.
func (h *Hub) broadcast(payload []byte) {
	clients := h.getClientSnapshot()
	h.log.Debug("Broadcasting message", zap.Int("clients", len(clients)))

	h.removeFailedClients(h.broadcastToClients(clients, payload))
}

// broadcastToClients sends payload to each client and returns those that
// could not take it.
func (h *Hub) broadcastToClients(clients []*Client, payload []byte) []*Client {
	var clientsToRemove []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	return clientsToRemove
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return lo.Keys(h.clients)
}

// removeFailedClients drops clients whose send buffer is full. They leave the
// user list exactly as if they had disconnected.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	presenceChanged := false
	for _, client := range clientsToRemove {
		if h.detach(client, "send buffer full") {
			presenceChanged = true
		}
	}
	if presenceChanged {
		h.broadcastUserList()
	}
}

// shutdownClients detaches every connection and closes its socket so both
// pumps exit.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		h.detach(client, "server shutdown")
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					client.log.Warn("Error closing client connection", zap.Error(err))
				}
			}
		}
	}

	h.log.Info("Closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the event loop, cancels pending bot queries and waits for
// every goroutine the hub started, or until timeout.
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
