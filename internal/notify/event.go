// Package notify fans visit state changes out to clinic subscribers.
// Delivery is best-effort: publishers never block on or learn about
// delivery failures, and consumers recover missed events by re-querying.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventPatientCheckedIn = "patient-checked-in"
	EventVisitUpdated     = "visit-updated"
)

// Event is one state change on a clinic's channel
type Event struct {
	Type      string    `json:"type"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	VisitID   uuid.UUID `json:"visit_id"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher accepts events without blocking the caller
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Sink delivers events to one transport
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt Event) error
}

// Discard drops every event. Used when no fanout is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
