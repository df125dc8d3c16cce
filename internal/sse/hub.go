package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/logger"
)

// Client is one open event stream, subscribed to a single session.
type Client struct {
	ID        uuid.UUID
	SessionID string
	Outbound  chan model.Event
	done      chan struct{}
	closeOnce sync.Once
}

// Hub fans session events out to their subscribed streams.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:           log.With("component", "sse"),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

// Subscribe registers a new stream for the given session.
func (h *Hub) Subscribe(sessionID string) *Client {
	client := &Client{
		ID:        uuid.New(),
		SessionID: sessionID,
		Outbound:  make(chan model.Event, 32),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.subscriptions[sessionID]
	if !ok {
		clients = make(map[*Client]bool)
		h.subscriptions[sessionID] = clients
	}
	clients[client] = true

	h.log.Debug("sse client subscribed", "client", client.ID, "session", sessionID)
	return client
}

// Unsubscribe removes the stream and closes it.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	if clients, ok := h.subscriptions[client.SessionID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscriptions, client.SessionID)
		}
	}
	h.mu.Unlock()

	client.closeOnce.Do(func() { close(client.done) })
	h.log.Debug("sse client unsubscribed", "client", client.ID)
}

// Broadcast delivers one event to every stream of its session. Slow
// consumers lose events rather than blocking the orchestrator.
func (h *Hub) Broadcast(ev model.Event) {
	if ev.SessionID == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscriptions[ev.SessionID] {
		select {
		case client.Outbound <- ev:
		default:
			h.log.Warn("dropping sse event; outbound buffer full", "client", client.ID)
		}
	}
}

// SubscriberCount reports the open streams for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[sessionID])
}

// ServeHTTP streams the client's events until the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-client.Outbound:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("failed to marshal sse event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
