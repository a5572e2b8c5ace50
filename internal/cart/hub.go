package cart

import (
	"context"
	"sync"
)

// CountUpdate is pushed to subscribers whenever a user's cart count changes.
type CountUpdate struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// Hub is an in-process per-user broadcaster of cart counts.
// Slow subscribers drop updates rather than block mutations.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan CountUpdate]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan CountUpdate]struct{}), buffer: 8}
}

// Subscribe returns a channel of updates for the user and a cancel func that
// must be called to release it.
func (h *Hub) Subscribe(userID string) (<-chan CountUpdate, func()) {
	ch := make(chan CountUpdate, h.buffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan CountUpdate]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) CartChanged(_ context.Context, userID string, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[userID] {
		select {
		case ch <- CountUpdate{UserID: userID, Count: count}:
		default:
		}
	}
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
