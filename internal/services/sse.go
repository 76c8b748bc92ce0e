package services

import (
	"sync"
	"time"
)

// RevealEvent is pushed to SSE subscribers when a review becomes visible.
// Reviewer fields are already masked for anonymous reviews.
type RevealEvent struct {
	ReviewID     uint      `json:"review_id"`
	JobID        uint      `json:"job_id"`
	ReviewerID   uint      `json:"reviewer_id,omitempty"`
	ReviewerName string    `json:"reviewer_name"`
	RevieweeID   uint      `json:"reviewee_id"`
	ReviewerRole string    `json:"reviewer_role"`
	Rating       int       `json:"rating"`
	VisibleAt    time.Time `json:"visible_at"`
}

type sseClient struct {
	userID uint
	ch     chan RevealEvent
}

// SSEHub fans reveal events out to connected clients. A client subscribed
// with a user id only receives events about reviews that user received or
// wrote; userID 0 receives everything.
type SSEHub struct {
	clients map[string]*sseClient
	mu      sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]*sseClient),
	}
}

// Subscribe registers a client and returns its event channel.
func (h *SSEHub) Subscribe(clientID string, userID uint) <-chan RevealEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan RevealEvent, 100)
	h.clients[clientID] = &sseClient{userID: userID, ch: ch}
	return ch
}

func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.ch)
		delete(h.clients, clientID)
	}
}

// Publish never blocks; a client whose buffer is full misses the event.
func (h *SSEHub) Publish(event RevealEvent, partyIDs ...uint) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if !c.wants(partyIDs) {
			continue
		}
		select {
		case c.ch <- event:
		default:
		}
	}
}

func (c *sseClient) wants(partyIDs []uint) bool {
	if c.userID == 0 {
		return true
	}
	for _, id := range partyIDs {
		if id == c.userID {
			return true
		}
	}
	return false
}

func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
