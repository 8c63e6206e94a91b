package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"wa_listings/models"
)

const (
	hubQueueSize      = 256
	clientBufferSize  = 64
	keepAliveInterval = 15 * time.Second
)

type client chan []byte

// Hub is the SSE sink. A single dispatcher goroutine copies each event to
// every connected client; a client whose buffer is full misses that event.
type Hub struct {
	mu      sync.RWMutex
	clients map[client]struct{}

	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	keepAlive time.Duration
	logger    *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:   make(map[client]struct{}),
		events:    make(chan []byte, hubQueueSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		keepAlive: keepAliveInterval,
		logger:    logger.With("component", "sse_hub"),
	}
	go h.dispatch()
	return h
}

// Send queues ev for every connected client. It blocks only while the
// dispatcher queue is full.
func (h *Hub) Send(ev models.Event) {
	msg, err := formatSSE(ev.Name, ev.Data)
	if err != nil {
		h.logger.Error("marshal event", "event", ev.Name, "error", err)
		return
	}
	select {
	case h.events <- msg:
	case <-h.done:
	}
}

func (h *Hub) dispatch() {
	defer close(h.stopped)
	for {
		select {
		case msg := <-h.events:
			h.fanout(msg)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) fanout(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c <- msg:
		default:
			h.logger.Warn("client buffer full, event dropped")
		}
	}
}

func (h *Hub) subscribe() client {
	c := make(client, clientBufferSize)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", "clients", n)
	return c
}

func (h *Hub) unsubscribe(c client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", "clients", n)
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the dispatcher and ends every open stream.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.stopped
	})
}

// ServeHTTP streams events to one subscriber until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	c := h.subscribe()
	defer h.unsubscribe(c)

	greeting, _ := formatSSE(models.EventConnectionStatus, models.ConnectionStatusPayload{Status: "connected"})
	w.Write(greeting)
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c:
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		}
	}
}

func formatSSE(name string, data any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, b)), nil
}
