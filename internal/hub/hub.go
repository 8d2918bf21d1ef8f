// Package hub streams judgment events to browsers over Server-Sent Events.
//
// Each message is written as a named SSE event so clients can attach
// listeners per type. A client may also narrow its stream server-side with
// ?types=liquidation,batch_completed.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// KeepAliveInterval is how often idle streams receive a comment line
var KeepAliveInterval = 30 * time.Second

// Message is one event queued for delivery
type Message struct {
	Name string
	Data any
}

type frame struct {
	name    string
	payload []byte
}

type subscriber struct {
	id     string
	types  map[string]bool // empty means every type
	frames chan frame
}

func (s *subscriber) wants(name string) bool {
	return len(s.types) == 0 || s.types[name]
}

// Hub fans messages out to connected subscribers. Slow subscribers lose
// messages rather than stall the others.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	join   chan *subscriber
	leave  chan *subscriber
	queue  chan Message
	done   chan struct{}
	logger *slog.Logger
}

// New creates a Hub. Call Run before serving clients.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		join:   make(chan *subscriber),
		leave:  make(chan *subscriber),
		queue:  make(chan Message, 256),
		done:   make(chan struct{}),
		logger: logger.With("component", "sse"),
	}
}

// Run delivers queued messages until ctx is done, then closes every stream
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subs {
				delete(h.subs, s)
				close(s.frames)
			}
			h.mu.Unlock()
			return

		case s := <-h.join:
			h.mu.Lock()
			h.subs[s] = struct{}{}
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Debug("subscriber joined", "subscriber", s.id, "total", n)

		case s := <-h.leave:
			h.mu.Lock()
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.frames)
			}
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Debug("subscriber left", "subscriber", s.id, "total", n)

		case msg := <-h.queue:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg Message) {
	payload, err := json.Marshal(msg.Data)
	if err != nil {
		h.logger.Error("marshal event", "event", msg.Name, "error", err)
		return
	}
	f := frame{name: msg.Name, payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(msg.Name) {
			continue
		}
		select {
		case s.frames <- f:
		default:
			h.logger.Warn("subscriber lagging, dropped event", "subscriber", s.id, "event", msg.Name)
		}
	}
}

// Publish queues a named event. It never blocks; when the queue is full
// the event is dropped.
func (h *Hub) Publish(name string, data any) {
	select {
	case h.queue <- Message{Name: name, Data: data}:
	default:
		h.logger.Warn("event queue full, dropped event", "event", name)
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP streams events until the client goes away or the hub stops
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s := &subscriber{
		id:     uuid.NewString(),
		types:  parseTypes(r.URL.Query().Get("types")),
		frames: make(chan frame, 64),
	}

	select {
	case h.join <- s:
	case <-h.done:
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	case <-r.Context().Done():
		return
	}
	defer func() {
		select {
		case h.leave <- s:
		case <-h.done:
		}
	}()

	// Streams outlive the server's WriteTimeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case f, ok := <-s.frames:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.name, f.payload); err != nil {
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func parseTypes(raw string) map[string]bool {
	types := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = true
		}
	}
	return types
}
