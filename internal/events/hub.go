package events

import (
	"sync"

	"github.com/aspira-app/aspira/api/internal/db"
)

/* Event types published for pending-action rows */
const (
	EventActionCreated = "action_created"
	EventActionUpdated = "action_updated"
)

/* Event is a row-level pending-action notification */
type Event struct {
	Type   string            `json:"type"`
	Action *db.PendingAction `json:"action"`
}

/* Hub fans pending-action events out to websocket subscribers. The hub
   carries events for all users; Subscribe hands out a channel that only
   ever receives events for the subscribing user. That filter is a
   security property, not cosmetic: the underlying feed is broader than
   any one user's scope. */
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

/* NewHub creates an event hub */
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

/* Subscribe registers a listener for one user's events. The returned
   cancel function must be called when the listener goes away. */
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan Event]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[userID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, userID)
			}
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

/* Publish delivers an event to the owning user's subscribers only. Slow
   subscribers drop events rather than block the publisher. */
func (h *Hub) Publish(event Event) {
	if event.Action == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[event.Action.UserID] {
		select {
		case ch <- event:
		default:
		}
	}
}
