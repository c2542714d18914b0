package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
)

// ClinicStore persists clinics
type ClinicStore interface {
	Create(ctx context.Context, clinic *models.Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Clinic, error)
	GetActiveByToken(ctx context.Context, token string) (*models.Clinic, error)
	ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Clinic, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Clinic, error)
	DeleteWithVisits(ctx context.Context, id uuid.UUID) (int64, error)
}

// VisitStore persists visits. CreateOpen must reject a second open visit for
// the same clinic and patient, and Transition must be a compare-and-set on
// the status column.
type VisitStore interface {
	CreateOpen(ctx context.Context, visit *models.Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Visit, error)
	FindOpen(ctx context.Context, clinicID, patientID uuid.UUID) (*models.Visit, error)
	ListByClinicStatus(ctx context.Context, clinicID uuid.UUID, status models.VisitStatus) ([]models.Visit, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Visit, error)
	Transition(ctx context.Context, id uuid.UUID, from []models.VisitStatus, to models.VisitStatus, at time.Time) (*models.Visit, error)
}

// PrescriptionStore persists prescriptions. IssueForVisit completes the visit
// and inserts the prescription as one unit.
type PrescriptionStore interface {
	IssueForVisit(ctx context.Context, rx *models.Prescription, from []models.VisitStatus) (*models.Visit, error)
	GetByVisitID(ctx context.Context, visitID uuid.UUID) (*models.Prescription, error)
	GetBySecret(ctx context.Context, secret string) (*models.Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Prescription, error)
	MarkDispensed(ctx context.Context, secret string, at time.Time) (*models.Prescription, error)
}

// AuditStore persists audit entries
type AuditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	ListByClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}
