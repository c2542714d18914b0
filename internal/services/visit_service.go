package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/otcheredev/clinicflow/internal/notify"
	"github.com/otcheredev/clinicflow/internal/repository"
	"github.com/rs/zerolog/log"
)

// checkInAttempts bounds the insert/lookup loop when the conflicting open
// visit closes between our failed insert and the lookup of its id.
const checkInAttempts = 3

// VisitService is the visit state machine
type VisitService struct {
	clinics       ClinicStore
	visits        VisitStore
	prescriptions PrescriptionStore
	publisher     notify.Publisher
	auditor       *Auditor
	nowFunc       func() time.Time
}

// NewVisitService creates a visit service. A nil publisher discards events.
func NewVisitService(clinics ClinicStore, visits VisitStore, prescriptions PrescriptionStore, publisher notify.Publisher, auditor *Auditor) *VisitService {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	return &VisitService{
		clinics:       clinics,
		visits:        visits,
		prescriptions: prescriptions,
		publisher:     publisher,
		auditor:       auditor,
		nowFunc:       time.Now,
	}
}

// VisitDetail is a visit with the prescription issued for it, if any
type VisitDetail struct {
	Visit        *models.Visit        `json:"visit"`
	Prescription *models.Prescription `json:"prescription"`
}

// WaitingRoom is a clinic's queue of waiting patients, oldest first
type WaitingRoom struct {
	Clinic  *models.Clinic     `json:"clinic"`
	Entries []models.WaitEntry `json:"waiting"`
}

// CheckIn opens a Waiting visit for the patient at an active clinic. A
// patient already waiting or in consultation there gets a Conflict carrying
// the open visit's id.
func (s *VisitService) CheckIn(ctx context.Context, patient models.Principal, clinicID uuid.UUID) (visit *models.Visit, err error) {
	started := s.nowFunc()
	defer func() {
		e := auditEntry{actor: patient, action: models.ActionVisitCheckIn, resourceType: "visit", clinicID: clinicID, started: started}
		if visit != nil {
			e.resourceID = visit.ID.String()
		}
		s.auditor.record(ctx, e, err)
	}()

	clinic, err := s.clinics.GetByID(ctx, clinicID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !clinic.IsActive) {
		return nil, newError(KindNotFound, "clinic not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}

	for attempt := 0; attempt < checkInAttempts; attempt++ {
		candidate := &models.Visit{
			ClinicID:    clinicID,
			PatientID:   patient.ID,
			Status:      models.VisitWaiting,
			CheckInTime: s.nowFunc().UTC(),
		}
		err := s.visits.CreateOpen(ctx, candidate)
		if err == nil {
			s.publisher.Publish(ctx, notify.Event{
				Type:      notify.EventPatientCheckedIn,
				ClinicID:  clinicID,
				VisitID:   candidate.ID,
				Status:    string(candidate.Status),
				Timestamp: candidate.CheckInTime,
			})
			return candidate, nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			// Deleted or deactivated since the lookup above.
			return nil, newError(KindNotFound, "clinic not found")
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create visit: %w", err)
		}

		open, err := s.visits.FindOpen(ctx, clinicID, patient.ID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find open visit: %w", err)
		}
		return nil, newError(KindConflict, "patient already has an open visit at this clinic").withVisit(open.ID)
	}
	return nil, fmt.Errorf("failed to check in after %d attempts", checkInAttempts)
}

// ListWaitingRoom returns the clinic's Waiting visits in check-in order, each
// with its wait in whole minutes.
func (s *VisitService) ListWaitingRoom(ctx context.Context, doctor models.Principal, clinicID uuid.UUID) (*WaitingRoom, error) {
	clinic, err := loadOwnedClinic(ctx, s.clinics, doctor, clinicID)
	if err != nil {
		return nil, err
	}

	visits, err := s.visits.ListByClinicStatus(ctx, clinicID, models.VisitWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting visits: %w", err)
	}

	now := s.nowFunc()
	entries := make([]models.WaitEntry, 0, len(visits))
	for _, v := range visits {
		entries = append(entries, models.WaitEntry{
			VisitID:     v.ID,
			PatientID:   v.PatientID,
			CheckInTime: v.CheckInTime,
			WaitMinutes: waitMinutes(v.CheckInTime, now),
		})
	}
	return &WaitingRoom{Clinic: clinic, Entries: entries}, nil
}

// waitMinutes is floor(elapsed seconds / 60), never negative.
func waitMinutes(checkIn, now time.Time) int64 {
	secs := int64(now.Sub(checkIn) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs / 60
}

// Start moves a Waiting visit to In-Progress. Of two concurrent starts on
// the same visit exactly one succeeds; the other sees InvalidState.
func (s *VisitService) Start(ctx context.Context, doctor models.Principal, visitID uuid.UUID) (visit *models.Visit, err error) {
	started := s.nowFunc()
	var clinicID uuid.UUID
	defer func() {
		s.auditor.record(ctx, auditEntry{
			actor: doctor, action: models.ActionVisitStart, resourceType: "visit",
			resourceID: visitID.String(), clinicID: clinicID, started: started,
		}, err)
	}()

	current, err := s.getVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	clinicID = current.ClinicID

	if _, err := loadOwnedClinic(ctx, s.clinics, doctor, current.ClinicID); err != nil {
		return nil, err
	}
	if current.Status != models.VisitWaiting {
		return nil, newError(KindInvalidState, "visit is %s, not Waiting", current.Status)
	}

	visit, err = s.transition(ctx, visitID, []models.VisitStatus{models.VisitWaiting}, models.VisitInProgress)
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// Cancel moves a Waiting visit to Cancelled. The patient or the clinic's
// doctor may cancel.
func (s *VisitService) Cancel(ctx context.Context, requester models.Principal, visitID uuid.UUID) (visit *models.Visit, err error) {
	started := s.nowFunc()
	var clinicID uuid.UUID
	defer func() {
		s.auditor.record(ctx, auditEntry{
			actor: requester, action: models.ActionVisitCancel, resourceType: "visit",
			resourceID: visitID.String(), clinicID: clinicID, started: started,
		}, err)
	}()

	current, err := s.getVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	clinicID = current.ClinicID

	if err := s.authorizeVisit(ctx, requester, current); err != nil {
		return nil, err
	}
	if current.Status != models.VisitWaiting {
		return nil, newError(KindInvalidState, "visit is %s, only Waiting visits can be cancelled", current.Status)
	}

	return s.transition(ctx, visitID, []models.VisitStatus{models.VisitWaiting}, models.VisitCancelled)
}

// Get returns a visit and its prescription. Only the visit's patient and the
// clinic's doctor may read it.
func (s *VisitService) Get(ctx context.Context, requester models.Principal, visitID uuid.UUID) (*VisitDetail, error) {
	visit, err := s.getVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeVisit(ctx, requester, visit); err != nil {
		return nil, err
	}

	detail := &VisitDetail{Visit: visit}
	rx, err := s.prescriptions.GetByVisitID(ctx, visitID)
	switch {
	case err == nil:
		detail.Prescription = rx
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to get prescription for visit: %w", err)
	}
	return detail, nil
}

// ListForPatient returns the patient's visits, newest first
func (s *VisitService) ListForPatient(ctx context.Context, patient models.Principal) ([]models.Visit, error) {
	visits, err := s.visits.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}

func (s *VisitService) getVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	visit, err := s.visits.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "visit not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return visit, nil
}

// authorizeVisit allows the visit's patient and the owning doctor.
func (s *VisitService) authorizeVisit(ctx context.Context, p models.Principal, visit *models.Visit) error {
	if p.Is(models.RolePatient) && visit.PatientID == p.ID {
		return nil
	}
	if p.Is(models.RoleDoctor) {
		clinic, err := s.clinics.GetByID(ctx, visit.ClinicID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to get clinic: %w", err)
		}
		if err == nil && ownsClinic(p, clinic) {
			return nil
		}
	}
	return newError(KindForbidden, "you may not access this visit")
}

// transition applies a compare-and-set and publishes the change. Losing the
// race is reported as InvalidState.
func (s *VisitService) transition(ctx context.Context, id uuid.UUID, from []models.VisitStatus, to models.VisitStatus) (*models.Visit, error) {
	visit, err := s.visits.Transition(ctx, id, from, to, s.nowFunc().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, newError(KindNotFound, "visit not found")
	case errors.Is(err, repository.ErrStateChanged):
		return nil, newError(KindInvalidState, "visit is no longer %s", from[0])
	case err != nil:
		return nil, fmt.Errorf("failed to update visit: %w", err)
	}

	log.Debug().
		Str("visit_id", visit.ID.String()).
		Str("status", string(visit.Status)).
		Msg("Visit transitioned")

	s.publisher.Publish(ctx, notify.Event{
		Type:      notify.EventVisitUpdated,
		ClinicID:  visit.ClinicID,
		VisitID:   visit.ID,
		Status:    string(visit.Status),
		Timestamp: s.nowFunc().UTC(),
	})
	return visit, nil
}
