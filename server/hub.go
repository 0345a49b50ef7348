package server

import (
	"log/slog"
	"sync"

	"github.com/csb6/purple-youtube/chat"
	"github.com/csb6/purple-youtube/telemetry"
)

const subscriberBuffer = 32

// Hub fans chat batches out to SSE subscribers. A subscriber that falls
// behind loses batches instead of stalling the others.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []chat.Message]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan []chat.Message]struct{})}
}

// Subscribe registers a subscriber. The returned func unregisters it.
func (h *Hub) Subscribe() (<-chan []chat.Message, func()) {
	ch := make(chan []chat.Message, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	telemetry.AddSSESubscribers(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			telemetry.AddSSESubscribers(-1)
		})
	}
}

// Publish delivers batch to every subscriber without blocking.
func (h *Hub) Publish(batch []chat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- batch:
		default:
			slog.Warn("sse subscriber lagging; dropping batch", slog.String("component", "http"), slog.Int("messages", len(batch)))
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
