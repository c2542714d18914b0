package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedClinic(t *testing.T, s *MemoryStore, token string) *models.Clinic {
	t.Helper()
	clinic := &models.Clinic{
		Name:        "Riverside",
		Location:    "12 River Rd",
		OwnerID:     uuid.New(),
		AccessToken: token,
		IsActive:    true,
	}
	require.NoError(t, s.Clinics().Create(context.Background(), clinic))
	return clinic
}

func seedVisit(t *testing.T, s *MemoryStore, clinicID uuid.UUID) *models.Visit {
	t.Helper()
	visit := &models.Visit{
		ClinicID:    clinicID,
		PatientID:   uuid.New(),
		Status:      models.VisitWaiting,
		CheckInTime: time.Now().UTC(),
	}
	require.NoError(t, s.Visits().CreateOpen(context.Background(), visit))
	return visit
}

func TestMemoryClinics_TokenUniqueness(t *testing.T) {
	s := NewMemoryStore()
	seedClinic(t, s, "tok-1")

	err := s.Clinics().Create(context.Background(), &models.Clinic{
		Name: "Other", Location: "x", OwnerID: uuid.New(), AccessToken: "tok-1", IsActive: true,
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryClinics_DeactivateHidesToken(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-2")

	got, err := s.Clinics().GetActiveByToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, clinic.ID, got.ID)

	_, err = s.Clinics().Deactivate(ctx, clinic.ID)
	require.NoError(t, err)

	_, err = s.Clinics().GetActiveByToken(ctx, "tok-2")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.Clinics().ListActiveByOwner(ctx, clinic.OwnerID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryVisits_ConcurrentCreateOpen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-3")
	patient := uuid.New()

	const n = 32
	var wg sync.WaitGroup
	var created, duplicates int32
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.Visits().CreateOpen(ctx, &models.Visit{
				ClinicID: clinic.ID, PatientID: patient, Status: models.VisitWaiting, CheckInTime: time.Now(),
			})
			switch err {
			case nil:
				atomic.AddInt32(&created, 1)
			case ErrDuplicate:
				atomic.AddInt32(&duplicates, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, created)
	assert.EqualValues(t, n-1, duplicates)
}

func TestMemoryVisits_ReopenAfterTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-4")
	visit := seedVisit(t, s, clinic.ID)

	_, err := s.Visits().Transition(ctx, visit.ID, []models.VisitStatus{models.VisitWaiting}, models.VisitCancelled, time.Now())
	require.NoError(t, err)

	_, err = s.Visits().FindOpen(ctx, clinic.ID, visit.PatientID)
	assert.ErrorIs(t, err, ErrNotFound)

	again := &models.Visit{ClinicID: clinic.ID, PatientID: visit.PatientID, Status: models.VisitWaiting, CheckInTime: time.Now()}
	assert.NoError(t, s.Visits().CreateOpen(ctx, again))
}

func TestMemoryVisits_TransitionCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-5")
	visit := seedVisit(t, s, clinic.ID)
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	updated, err := s.Visits().Transition(ctx, visit.ID, []models.VisitStatus{models.VisitWaiting}, models.VisitInProgress, at)
	require.NoError(t, err)
	assert.Equal(t, models.VisitInProgress, updated.Status)
	require.NotNil(t, updated.StartTime)
	assert.True(t, updated.StartTime.Equal(at))

	_, err = s.Visits().Transition(ctx, visit.ID, []models.VisitStatus{models.VisitWaiting}, models.VisitInProgress, at)
	assert.ErrorIs(t, err, ErrStateChanged)

	_, err = s.Visits().Transition(ctx, uuid.New(), []models.VisitStatus{models.VisitWaiting}, models.VisitInProgress, at)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryVisits_ReturnedCopiesAreDetached(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-6")
	visit := seedVisit(t, s, clinic.ID)

	got, err := s.Visits().GetByID(ctx, visit.ID)
	require.NoError(t, err)
	got.Status = models.VisitCompleted

	again, err := s.Visits().GetByID(ctx, visit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitWaiting, again.Status)
}

func newRx(visit *models.Visit, secret string) *models.Prescription {
	return &models.Prescription{
		VisitID:          visit.ID,
		ClinicID:         visit.ClinicID,
		PatientID:        visit.PatientID,
		DoctorID:         uuid.New(),
		Medications:      []models.Medication{{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x/day", Duration: "7 days"}},
		Status:           models.PrescriptionActive,
		RedemptionSecret: secret,
		IssuedAt:         time.Now().UTC(),
	}
}

func TestMemoryPrescriptions_IssueCompletesVisit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-7")
	visit := seedVisit(t, s, clinic.ID)

	updated, err := s.Prescriptions().IssueForVisit(ctx, newRx(visit, "sec-1"), models.OpenVisitStatuses)
	require.NoError(t, err)
	assert.Equal(t, models.VisitCompleted, updated.Status)
	assert.NotNil(t, updated.EndTime)

	rx, err := s.Prescriptions().GetByVisitID(ctx, visit.ID)
	require.NoError(t, err)
	assert.Equal(t, "sec-1", rx.RedemptionSecret)

	_, err = s.Prescriptions().IssueForVisit(ctx, newRx(visit, "sec-2"), models.OpenVisitStatuses)
	assert.ErrorIs(t, err, ErrStateChanged)
}

func TestMemoryPrescriptions_RejectedIssueLeavesVisitUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-8")
	first := seedVisit(t, s, clinic.ID)
	second := seedVisit(t, s, clinic.ID)

	_, err := s.Prescriptions().IssueForVisit(ctx, newRx(first, "same-secret"), models.OpenVisitStatuses)
	require.NoError(t, err)

	_, err = s.Prescriptions().IssueForVisit(ctx, newRx(second, "same-secret"), models.OpenVisitStatuses)
	assert.ErrorIs(t, err, ErrSecretTaken)

	got, err := s.Visits().GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitWaiting, got.Status)
	assert.Nil(t, got.EndTime)
}

func TestMemoryPrescriptions_ConcurrentMarkDispensed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-9")
	visit := seedVisit(t, s, clinic.ID)
	_, err := s.Prescriptions().IssueForVisit(ctx, newRx(visit, "sec-race"), models.OpenVisitStatuses)
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	var wins, losses int32
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Prescriptions().MarkDispensed(ctx, "sec-race", time.Now())
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else if err == ErrStateChanged {
				atomic.AddInt32(&losses, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, n-1, losses)
}

func TestMemoryClinics_DeleteCascadesVisitsOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clinic := seedClinic(t, s, "tok-10")
	done := seedVisit(t, s, clinic.ID)
	waiting := seedVisit(t, s, clinic.ID)
	_, err := s.Prescriptions().IssueForVisit(ctx, newRx(done, "sec-keep"), models.OpenVisitStatuses)
	require.NoError(t, err)

	removed, err := s.Clinics().DeleteWithVisits(ctx, clinic.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	_, err = s.Visits().GetByID(ctx, waiting.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Visits().FindOpen(ctx, clinic.ID, waiting.PatientID)
	assert.ErrorIs(t, err, ErrNotFound)

	rx, err := s.Prescriptions().GetBySecret(ctx, "sec-keep")
	require.NoError(t, err)
	assert.Equal(t, done.ID, rx.VisitID)

	_, err = s.Clinics().DeleteWithVisits(ctx, clinic.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryVisits_CreateOpenNeedsActiveClinic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	open := func(clinicID uuid.UUID) error {
		return s.Visits().CreateOpen(ctx, &models.Visit{
			ClinicID: clinicID, PatientID: uuid.New(), Status: models.VisitWaiting, CheckInTime: time.Now(),
		})
	}

	assert.ErrorIs(t, open(uuid.New()), ErrNotFound)

	inactive := seedClinic(t, s, "tok-11")
	_, err := s.Clinics().Deactivate(ctx, inactive.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, open(inactive.ID), ErrNotFound)

	deleted := seedClinic(t, s, "tok-12")
	_, err = s.Clinics().DeleteWithVisits(ctx, deleted.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, open(deleted.ID), ErrNotFound)
}
