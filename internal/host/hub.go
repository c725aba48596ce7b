package host

import (
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/facegate/internal/session"
	"github.com/google/uuid"
)

// Hub fans controller events out to SSE clients. It implements session.Sink.
// A client whose buffer is full misses events rather than stalling the loop.
type Hub struct {
	buffer int

	mu      sync.RWMutex
	clients map[string]chan session.Event

	dropped atomic.Int64
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 64
	}
	return &Hub{buffer: buffer, clients: make(map[string]chan session.Event)}
}

// Emit delivers e to every client without blocking.
func (h *Hub) Emit(e session.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) subscribe() (string, <-chan session.Event) {
	id := uuid.NewString()
	ch := make(chan session.Event, h.buffer)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many deliveries were skipped because a client lagged.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
