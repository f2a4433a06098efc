// Package hub fans realtime events out to connected dashboard clients.
// Clients subscribe to a branch; an empty subscription receives every
// event.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type Subscription struct {
	BranchID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clock   func() time.Time
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action   string `json:"action"`
	BranchID string `json:"branch_id"`
}

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type servingPayload struct {
	BranchID  string `json:"branch_id"`
	BookingID string `json:"booking_id"`
}

func New() *Hub {
	return &Hub{
		clock:   func() time.Time { return time.Now().UTC() },
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

// PublishServing satisfies the store's Publisher hook: every seated
// transition lands here with the branch's new "now serving" marker.
func (h *Hub) PublishServing(branchID, bookingID string) {
	body, err := json.Marshal(servingPayload{BranchID: branchID, BookingID: bookingID})
	if err != nil {
		return
	}
	payload, err := json.Marshal(eventEnvelope{
		Type:      "serving_update",
		Payload:   body,
		CreatedAt: h.clock(),
	})
	if err != nil {
		return
	}
	h.Broadcast(payload, Subscription{BranchID: branchID})
}

func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func match(sub Subscription, meta Subscription) bool {
	if sub.BranchID != "" && meta.BranchID != sub.BranchID {
		return false
	}
	return true
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
