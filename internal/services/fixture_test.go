package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/cache"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/otcheredev/clinicflow/internal/notify"
	"github.com/otcheredev/clinicflow/internal/repository"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingPublisher) snapshot() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type fixture struct {
	store  *repository.MemoryStore
	cache  *cache.MemoryCache
	events *recordingPublisher

	clinics       *ClinicService
	visits        *VisitService
	prescriptions *PrescriptionService

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, false)
}

func newFixtureWith(t *testing.T, requireStart bool) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	c := cache.NewMemoryCache(time.Hour)
	t.Cleanup(func() { c.Close() })

	f := &fixture{
		store:  store,
		cache:  c,
		events: &recordingPublisher{},
		now:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	auditor := NewAuditor(store.Audit())
	auditor.nowFunc = f.clock

	f.clinics = NewClinicService(store.Clinics(), auditor, c, time.Minute, "https://clinic.example.com/")
	f.visits = NewVisitService(store.Clinics(), store.Visits(), store.Prescriptions(), f.events, auditor)
	f.visits.nowFunc = f.clock
	f.prescriptions = NewPrescriptionService(store.Clinics(), store.Visits(), store.Prescriptions(), f.events, auditor, requireStart)
	f.prescriptions.nowFunc = f.clock
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func doctor() models.Principal   { return models.Principal{ID: uuid.New(), Role: models.RoleDoctor} }
func patient() models.Principal  { return models.Principal{ID: uuid.New(), Role: models.RolePatient} }
func pharmacy() models.Principal { return models.Principal{ID: uuid.New(), Role: models.RolePharmacy} }

func (f *fixture) createClinic(t *testing.T, owner models.Principal) *models.Clinic {
	t.Helper()
	clinic, err := f.clinics.Create(context.Background(), owner, &models.CreateClinicRequest{
		Name:     "Riverside",
		Location: "12 River Rd",
	})
	require.NoError(t, err)
	return clinic
}

func (f *fixture) checkIn(t *testing.T, p models.Principal, clinicID uuid.UUID) *models.Visit {
	t.Helper()
	visit, err := f.visits.CheckIn(context.Background(), p, clinicID)
	require.NoError(t, err)
	return visit
}

func amoxicillin() []models.Medication {
	return []models.Medication{{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x/day", Duration: "7 days"}}
}

func (f *fixture) issue(t *testing.T, doc models.Principal, visitID uuid.UUID) *models.Prescription {
	t.Helper()
	rx, err := f.prescriptions.Issue(context.Background(), doc, &models.IssuePrescriptionRequest{
		VisitID:     visitID,
		Medications: amoxicillin(),
	})
	require.NoError(t, err)
	return rx
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	e, ok := AsError(err)
	require.Truef(t, ok, "expected domain error, got %v", err)
	require.Equal(t, kind, e.Kind, e.Message)
	return e
}
