package app

import (
	"sync"

	"quizroom/internal/domain"
)

// Hub fans typed domain events out to the connections subscribed to a
// room code. Publish order equals commit order within a room because
// every publisher holds that room's transition lock.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe registers a listener for a room code. The caller must
// invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(roomCode string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	h.mu.Lock()
	subs, ok := h.rooms[roomCode]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		h.rooms[roomCode] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.rooms[roomCode]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.rooms, roomCode)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its room. A full
// subscriber buffer drops the oldest pending event rather than
// blocking the publisher.
func (h *Hub) Publish(event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.rooms[event.EventRoomCode()] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// SubscriberCount reports how many listeners a room currently has.
func (h *Hub) SubscriberCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}
