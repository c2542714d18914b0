package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/otcheredev/clinicflow/internal/notify"
	"github.com/otcheredev/clinicflow/internal/repository"
	"github.com/otcheredev/clinicflow/pkg/logger"
	"github.com/rs/zerolog/log"
)

// PrescriptionService is the prescription state machine
type PrescriptionService struct {
	clinics       ClinicStore
	visits        VisitStore
	prescriptions PrescriptionStore
	publisher     notify.Publisher
	auditor       *Auditor
	nowFunc       func() time.Time
	newSecret     func(visitID uuid.UUID, at time.Time) (string, error)

	// requireStart rejects issuing against a visit that is still Waiting.
	requireStart bool
}

// NewPrescriptionService creates a prescription service
func NewPrescriptionService(clinics ClinicStore, visits VisitStore, prescriptions PrescriptionStore, publisher notify.Publisher, auditor *Auditor, requireStart bool) *PrescriptionService {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	return &PrescriptionService{
		clinics:       clinics,
		visits:        visits,
		prescriptions: prescriptions,
		publisher:     publisher,
		auditor:       auditor,
		nowFunc:       time.Now,
		newSecret:     NewRedemptionSecret,
		requireStart:  requireStart,
	}
}

// Issue creates the prescription for a visit and completes the visit in the
// same unit of work.
func (s *PrescriptionService) Issue(ctx context.Context, doctor models.Principal, req *models.IssuePrescriptionRequest) (rx *models.Prescription, err error) {
	started := s.nowFunc()
	var clinicID uuid.UUID
	defer func() {
		e := auditEntry{actor: doctor, action: models.ActionPrescriptionIssue, resourceType: "prescription", clinicID: clinicID, started: started}
		if rx != nil {
			e.resourceID = rx.ID.String()
		} else {
			e.resourceType, e.resourceID = "visit", req.VisitID.String()
		}
		s.auditor.record(ctx, e, err)
	}()

	visit, err := s.visits.GetByID(ctx, req.VisitID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "visit not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	clinicID = visit.ClinicID

	if _, err := loadOwnedClinic(ctx, s.clinics, doctor, visit.ClinicID); err != nil {
		return nil, err
	}
	if err := validateMedications(req.Medications); err != nil {
		return nil, err
	}

	from := s.issuableFrom()
	if err := s.checkIssuable(visit, from); err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	medications := cleanMedications(req.Medications)
	notes := strings.TrimSpace(req.Notes)

	var (
		candidate *models.Prescription
		completed *models.Visit
	)
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		var secret string
		if secret, err = s.newSecret(visit.ID, now); err != nil {
			return nil, err
		}
		candidate = &models.Prescription{
			VisitID:          visit.ID,
			ClinicID:         visit.ClinicID,
			PatientID:        visit.PatientID,
			DoctorID:         doctor.ID,
			Medications:      medications,
			Notes:            notes,
			Status:           models.PrescriptionActive,
			RedemptionSecret: secret,
			IssuedAt:         now,
		}
		completed, err = s.prescriptions.IssueForVisit(ctx, candidate, from)
		if !errors.Is(err, repository.ErrSecretTaken) {
			break
		}
		log.Warn().Str("visit_id", visit.ID.String()).Msg("Redemption secret collision, regenerating")
	}

	switch {
	case errors.Is(err, repository.ErrSecretTaken):
		return nil, fmt.Errorf("failed to issue prescription after %d attempts: %w", tokenAttempts, err)
	case errors.Is(err, repository.ErrNotFound):
		return nil, newError(KindNotFound, "visit not found")
	case errors.Is(err, repository.ErrStateChanged), errors.Is(err, repository.ErrDuplicate):
		return nil, s.lostIssueRace(ctx, visit.ID, from)
	case err != nil:
		return nil, fmt.Errorf("failed to issue prescription: %w", err)
	}
	rx = candidate

	log.Info().
		Str("prescription_id", rx.ID.String()).
		Str("visit_id", visit.ID.String()).
		Str("secret", logger.Redact(rx.RedemptionSecret)).
		Int("medications", len(rx.Medications)).
		Msg("Prescription issued")

	s.publisher.Publish(ctx, notify.Event{
		Type:      notify.EventVisitUpdated,
		ClinicID:  completed.ClinicID,
		VisitID:   completed.ID,
		Status:    string(completed.Status),
		Timestamp: now,
	})
	return rx, nil
}

func (s *PrescriptionService) issuableFrom() []models.VisitStatus {
	if s.requireStart {
		return []models.VisitStatus{models.VisitInProgress}
	}
	return models.OpenVisitStatuses
}

func (s *PrescriptionService) checkIssuable(visit *models.Visit, from []models.VisitStatus) error {
	switch {
	case visit.Status == models.VisitCompleted:
		return newError(KindConflict, "a prescription was already issued for this visit").withVisit(visit.ID)
	case visit.Status == models.VisitCancelled:
		return newError(KindInvalidState, "visit was cancelled")
	case !visit.Status.In(from):
		return newError(KindInvalidState, "visit must be In-Progress before a prescription is issued")
	}
	return nil
}

// lostIssueRace classifies a failed conditional issue by re-reading the visit.
func (s *PrescriptionService) lostIssueRace(ctx context.Context, visitID uuid.UUID, from []models.VisitStatus) error {
	visit, err := s.visits.GetByID(ctx, visitID)
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, "visit not found")
	}
	if err != nil {
		return fmt.Errorf("failed to re-read visit: %w", err)
	}
	if err := s.checkIssuable(visit, from); err != nil {
		return err
	}
	// Visit still issuable, so the insert hit an existing prescription.
	return newError(KindConflict, "a prescription was already issued for this visit").withVisit(visitID)
}

// ListForPatient returns the patient's prescriptions, newest first
func (s *PrescriptionService) ListForPatient(ctx context.Context, patient models.Principal) ([]models.Prescription, error) {
	list, err := s.prescriptions.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return list, nil
}

// LookupBySecret is the pharmacy's pre-redemption probe. A dispensed
// prescription yields Conflict carrying its dispensedAt.
func (s *PrescriptionService) LookupBySecret(ctx context.Context, secret string) (*models.Prescription, error) {
	rx, err := s.getBySecret(ctx, secret)
	if err != nil {
		return nil, err
	}
	if rx.Status == models.PrescriptionDispensed {
		return nil, newError(KindConflict, "prescription already dispensed").withDispensedAt(rx.DispensedAt)
	}
	return rx, nil
}

// Redeem marks the prescription dispensed. Under concurrent redemption of one
// secret exactly one call succeeds; every other call gets AlreadyDispensed
// with the original dispensedAt.
func (s *PrescriptionService) Redeem(ctx context.Context, pharmacy models.Principal, secret string) (rx *models.Prescription, err error) {
	started := s.nowFunc()
	defer func() {
		e := auditEntry{actor: pharmacy, action: models.ActionPrescriptionRedeem, resourceType: "prescription", started: started}
		if rx != nil {
			e.resourceID, e.clinicID = rx.ID.String(), rx.ClinicID
		} else {
			e.resourceID = logger.Redact(secret)
		}
		s.auditor.record(ctx, e, err)
	}()

	if secret == "" {
		return nil, newError(KindNotFound, "prescription not found")
	}

	rx, err = s.prescriptions.MarkDispensed(ctx, secret, s.nowFunc().UTC())
	switch {
	case err == nil:
		log.Info().
			Str("prescription_id", rx.ID.String()).
			Str("secret", logger.Redact(secret)).
			Msg("Prescription dispensed")
		return rx, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, newError(KindNotFound, "prescription not found")
	case errors.Is(err, repository.ErrStateChanged):
		existing, lookupErr := s.getBySecret(ctx, secret)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, newError(KindAlreadyDispensed, "prescription already dispensed").withDispensedAt(existing.DispensedAt)
	default:
		return nil, fmt.Errorf("failed to redeem prescription: %w", err)
	}
}

func (s *PrescriptionService) getBySecret(ctx context.Context, secret string) (*models.Prescription, error) {
	if secret == "" {
		return nil, newError(KindNotFound, "prescription not found")
	}
	rx, err := s.prescriptions.GetBySecret(ctx, secret)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "prescription not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	return rx, nil
}

func validateMedications(meds []models.Medication) error {
	if len(meds) == 0 {
		return newError(KindValidation, "at least one medication is required")
	}
	for i, m := range meds {
		if field := m.MissingField(); field != "" {
			return newError(KindValidation, "medication %d: %s is required", i+1, field)
		}
	}
	return nil
}

func cleanMedications(meds []models.Medication) []models.Medication {
	out := make([]models.Medication, len(meds))
	for i, m := range meds {
		out[i] = models.Medication{
			Name:         strings.TrimSpace(m.Name),
			Dosage:       strings.TrimSpace(m.Dosage),
			Frequency:    strings.TrimSpace(m.Frequency),
			Duration:     strings.TrimSpace(m.Duration),
			Instructions: strings.TrimSpace(m.Instructions),
		}
	}
	return out
}
