package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/otcheredev/clinicflow/internal/metrics"
	"github.com/otcheredev/clinicflow/internal/models"
)

// ClientBuffer is the per-client outbound queue length
const ClientBuffer = 64

// Client is one websocket connection on this instance
type Client struct {
	ID        string
	Principal models.Principal
	Send      chan []byte

	clinics map[string]struct{}
}

// NewClient creates an unregistered client
func NewClient(id string, p models.Principal) *Client {
	return &Client{
		ID:        id,
		Principal: p,
		Send:      make(chan []byte, ClientBuffer),
		clinics:   make(map[string]struct{}),
	}
}

// Hub tracks local websocket clients by the clinic channels they joined.
// It is also the Sink that delivers events to them.
type Hub struct {
	mu      sync.RWMutex
	clinics map[string]map[*Client]struct{}
	all     map[*Client]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clinics: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds a client with no clinic subscriptions
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; ok {
		return
	}
	h.all[c] = struct{}{}
	metrics.WebsocketClients.Inc()
}

// Unregister drops the client from every clinic channel and closes Send.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for clinic := range c.clinics {
		h.leaveLocked(c, clinic)
	}
	delete(h.all, c)
	close(c.Send)
	metrics.WebsocketClients.Dec()
}

// Join subscribes a registered client to a clinic's channel. Callers check
// that the client may observe the clinic.
func (h *Hub) Join(c *Client, clinicID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	if h.clinics[clinicID] == nil {
		h.clinics[clinicID] = make(map[*Client]struct{})
	}
	h.clinics[clinicID][c] = struct{}{}
	c.clinics[clinicID] = struct{}{}
}

// Leave unsubscribes a client from a clinic's channel
func (h *Hub) Leave(c *Client, clinicID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, clinicID)
}

func (h *Hub) leaveLocked(c *Client, clinicID string) {
	if subscribers, ok := h.clinics[clinicID]; ok {
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(h.clinics, clinicID)
		}
	}
	delete(c.clinics, clinicID)
}

// Broadcast sends data to every client of the clinic. A client whose buffer
// is full misses the message rather than stalling the others.
func (h *Hub) Broadcast(clinicID string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clinics[clinicID] {
		select {
		case c.Send <- data:
			sent++
		default:
		}
	}
	return sent
}

// Name implements Sink
func (h *Hub) Name() string { return "hub" }

// Deliver implements Sink. Having no subscribers is not an error.
func (h *Hub) Deliver(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	h.Broadcast(evt.ClinicID.String(), data)
	return nil
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// ClinicCount returns the number of clients on a clinic's channel
func (h *Hub) ClinicCount(clinicID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clinics[clinicID])
}
