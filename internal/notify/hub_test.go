package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(id string) *Client {
	return NewClient(id, models.Principal{ID: uuid.New(), Role: models.RoleDoctor})
}

func TestHub_JoinAndUnregister(t *testing.T) {
	hub := NewHub()
	c := newTestClient("c1")
	clinic := uuid.NewString()

	hub.Join(c, clinic)
	assert.Equal(t, 0, hub.ClinicCount(clinic), "unregistered clients cannot join")

	hub.Register(c)
	hub.Join(c, clinic)
	assert.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, 1, hub.ClinicCount(clinic))

	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.ClinicCount(clinic))

	_, open := <-c.Send
	assert.False(t, open)

	hub.Unregister(c)
}

func TestHub_DeliverOnlyToClinicSubscribers(t *testing.T) {
	hub := NewHub()
	clinicA, clinicB := uuid.New(), uuid.New()

	a := newTestClient("a")
	b := newTestClient("b")
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, clinicA.String())
	hub.Join(b, clinicB.String())

	evt := Event{Type: EventPatientCheckedIn, ClinicID: clinicA, VisitID: uuid.New(), Status: "Waiting", Timestamp: time.Now().UTC()}
	require.NoError(t, hub.Deliver(context.Background(), evt))

	select {
	case msg := <-a.Send:
		var got Event
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, evt.VisitID, got.VisitID)
		assert.Equal(t, EventPatientCheckedIn, got.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-b.Send:
		t.Fatal("other clinic's client received the event")
	default:
	}
}

func TestHub_FullClientDoesNotBlock(t *testing.T) {
	hub := NewHub()
	clinic := uuid.NewString()
	slow := newTestClient("slow")
	hub.Register(slow)
	hub.Join(slow, clinic)

	for i := 0; i < ClientBuffer; i++ {
		assert.Equal(t, 1, hub.Broadcast(clinic, []byte("x")))
	}
	assert.Equal(t, 0, hub.Broadcast(clinic, []byte("overflow")))
}

func TestHub_Leave(t *testing.T) {
	hub := NewHub()
	c := newTestClient("c")
	hub.Register(c)
	hub.Join(c, "one")
	hub.Join(c, "two")

	hub.Leave(c, "one")
	assert.Equal(t, 0, hub.ClinicCount("one"))
	assert.Equal(t, 1, hub.ClinicCount("two"))
	assert.Equal(t, 0, hub.Broadcast("one", []byte("x")))
}
