package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VisitRepository handles visit database operations
type VisitRepository struct {
	db *gorm.DB
}

// NewVisitRepository creates a new visit repository
func NewVisitRepository(db *gorm.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// CreateOpen inserts a Waiting visit at an active clinic. The clinic row is
// share-locked for the insert, so a concurrent delete or deactivation either
// finishes first (ErrNotFound) or waits and then cascades to the new visit.
// The partial unique index on (clinic_id, patient_id) for open statuses turns
// a concurrent second check-in into ErrDuplicate.
func (r *VisitRepository) CreateOpen(ctx context.Context, visit *models.Visit) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clinic models.Clinic
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id").
			Where("id = ? AND is_active = ?", visit.ClinicID, true).
			First(&clinic).Error; err != nil {
			return err
		}
		return tx.Omit("Clinic").Create(visit).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return fmt.Errorf("failed to create visit: %w", err)
}

// GetByID retrieves a visit
func (r *VisitRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	var visit models.Visit
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&visit).Error; err != nil {
		return nil, translate(err, "failed to get visit")
	}
	return &visit, nil
}

// FindOpen retrieves the patient's Waiting or In-Progress visit at a clinic
func (r *VisitRepository) FindOpen(ctx context.Context, clinicID, patientID uuid.UUID) (*models.Visit, error) {
	var visit models.Visit
	if err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND patient_id = ? AND status IN ?", clinicID, patientID, models.OpenVisitStatuses).
		First(&visit).Error; err != nil {
		return nil, translate(err, "failed to find open visit")
	}
	return &visit, nil
}

// ListByClinicStatus retrieves a clinic's visits in one status, in check-in order
func (r *VisitRepository) ListByClinicStatus(ctx context.Context, clinicID uuid.UUID, status models.VisitStatus) ([]models.Visit, error) {
	var visits []models.Visit
	if err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND status = ?", clinicID, status).
		Order("check_in_time ASC, id ASC").
		Find(&visits).Error; err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}

// ListByPatient retrieves a patient's visits, newest first
func (r *VisitRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Visit, error) {
	var visits []models.Visit
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("check_in_time DESC").
		Find(&visits).Error; err != nil {
		return nil, fmt.Errorf("failed to list patient visits: %w", err)
	}
	return visits, nil
}

// Transition moves a visit to status `to` only if it is currently in one of
// `from`, as a single conditional UPDATE ... RETURNING.
func (r *VisitRepository) Transition(ctx context.Context, id uuid.UUID, from []models.VisitStatus, to models.VisitStatus, at time.Time) (*models.Visit, error) {
	return transitionVisit(r.db.WithContext(ctx), id, from, to, at)
}

func transitionVisit(db *gorm.DB, id uuid.UUID, from []models.VisitStatus, to models.VisitStatus, at time.Time) (*models.Visit, error) {
	var visit models.Visit
	res := db.Model(&visit).
		Clauses(clause.Returning{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(transitionColumns(to, at))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to transition visit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.Visit{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check visit: %w", err)
		}
		if count == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrStateChanged
	}
	return &visit, nil
}

// transitionColumns lists the columns a transition into `to` writes.
func transitionColumns(to models.VisitStatus, at time.Time) map[string]interface{} {
	cols := map[string]interface{}{"status": to}
	switch to {
	case models.VisitInProgress:
		cols["start_time"] = at
	case models.VisitCompleted, models.VisitCancelled:
		cols["end_time"] = at
	}
	return cols
}
