package pushchannel

import (
	"context"
	"sync"
)

// Hub is an in-process Channel. Publish dispatches synchronously on the
// caller's goroutine.
type Hub struct {
	mu       sync.Mutex
	handlers map[string]map[uint64]Handler
	nextID   uint64
	closed   bool
}

func NewHub() *Hub {
	return &Hub{handlers: map[string]map[uint64]Handler{}}
}

func (h *Hub) Connect(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

func (h *Hub) On(event string, handler Handler) (Unsubscribe, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.nextID++
	id := h.nextID
	if h.handlers[event] == nil {
		h.handlers[event] = map[uint64]Handler{}
	}
	h.handlers[event][id] = handler

	return once(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers[event], id)
		if len(h.handlers[event]) == 0 {
			delete(h.handlers, event)
		}
	}), nil
}

func (h *Hub) Publish(_ context.Context, event string, payload []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	targets := make([]Handler, 0, len(h.handlers[event]))
	for _, handler := range h.handlers[event] {
		targets = append(targets, handler)
	}
	h.mu.Unlock()

	for _, handler := range targets {
		handler(payload)
	}
	return nil
}

// Subscribers returns the number of handlers registered for event.
func (h *Hub) Subscribers(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers[event])
}

func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.handlers = map[string]map[uint64]Handler{}
	h.mu.Unlock()
}
