// Package telemetry fans wheel reports out to any number of live subscribers
// and exposes them on the admin debug pages.
package telemetry

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// SubscriberBuffer is the number of reports a subscriber may fall behind
// before reports are dropped for it.
const SubscriberBuffer = 64

// Hub multiplexes wheel reports to subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan wheel.Report
	closed      bool
	dropped     uint64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan wheel.Report)}
}

// randomID generates a subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new subscriber. The returned channel is closed by
// Unsubscribe or Close; after Close it is returned already closed.
func (h *Hub) Subscribe() (string, <-chan wheel.Report) {
	id := randomID()
	ch := make(chan wheel.Report, SubscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish hands r to every subscriber without blocking. Subscribers whose
// buffer is full miss the report.
func (h *Hub) Publish(r wheel.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- r:
		default:
			h.dropped++
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// not keeping up.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
