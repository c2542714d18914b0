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

// PrescriptionRepository handles prescription database operations
type PrescriptionRepository struct {
	db *gorm.DB
}

// NewPrescriptionRepository creates a new prescription repository
func NewPrescriptionRepository(db *gorm.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

// IssueForVisit completes the prescription's visit (if it is in one of
// `from`) and inserts the prescription, in one transaction.
func (r *PrescriptionRepository) IssueForVisit(ctx context.Context, p *models.Prescription, from []models.VisitStatus) (*models.Visit, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	visit, err := transitionVisit(tx, p.VisitID, from, models.VisitCompleted, p.IssuedAt)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Create(p).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, r.classifyDuplicate(ctx, p.VisitID)
		}
		return nil, fmt.Errorf("failed to create prescription: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit prescription: %w", err)
	}
	return visit, nil
}

// classifyDuplicate tells the two unique indexes apart after a rejected
// insert: a committed prescription for the visit means ErrDuplicate, anything
// else was the redemption secret.
func (r *PrescriptionRepository) classifyDuplicate(ctx context.Context, visitID uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Prescription{}).
		Where("visit_id = ?", visitID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check prescription: %w", err)
	}
	if count > 0 {
		return ErrDuplicate
	}
	return ErrSecretTaken
}

// GetByVisitID retrieves the prescription bound to a visit
func (r *PrescriptionRepository) GetByVisitID(ctx context.Context, visitID uuid.UUID) (*models.Prescription, error) {
	var p models.Prescription
	if err := r.db.WithContext(ctx).
		Where("visit_id = ?", visitID).
		Order("issued_at DESC").
		First(&p).Error; err != nil {
		return nil, translate(err, "failed to get prescription by visit")
	}
	return &p, nil
}

// GetBySecret retrieves a prescription by its redemption secret
func (r *PrescriptionRepository) GetBySecret(ctx context.Context, secret string) (*models.Prescription, error) {
	var p models.Prescription
	if err := r.db.WithContext(ctx).Where("redemption_secret = ?", secret).First(&p).Error; err != nil {
		return nil, translate(err, "failed to get prescription by secret")
	}
	return &p, nil
}

// ListByPatient retrieves a patient's prescriptions, newest first
func (r *PrescriptionRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Prescription, error) {
	var list []models.Prescription
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("issued_at DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return list, nil
}

// MarkDispensed flips Active to Dispensed with one conditional UPDATE. Losers
// of a concurrent redemption get ErrStateChanged.
func (r *PrescriptionRepository) MarkDispensed(ctx context.Context, secret string, at time.Time) (*models.Prescription, error) {
	var p models.Prescription
	res := r.db.WithContext(ctx).
		Model(&p).
		Clauses(clause.Returning{}).
		Where("redemption_secret = ? AND status = ?", secret, models.PrescriptionActive).
		Updates(map[string]interface{}{
			"status":       models.PrescriptionDispensed,
			"dispensed_at": at,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to dispense prescription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Prescription{}).
			Where("redemption_secret = ?", secret).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check prescription: %w", err)
		}
		if count == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrStateChanged
	}
	return &p, nil
}
