package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClinicRepository handles clinic database operations
type ClinicRepository struct {
	db *gorm.DB
}

// NewClinicRepository creates a new clinic repository
func NewClinicRepository(db *gorm.DB) *ClinicRepository {
	return &ClinicRepository{db: db}
}

// Create inserts a clinic. A colliding access token yields ErrDuplicate.
func (r *ClinicRepository) Create(ctx context.Context, clinic *models.Clinic) error {
	if err := r.db.WithContext(ctx).Create(clinic).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create clinic: %w", err)
	}
	return nil
}

// GetByID retrieves a clinic regardless of its active flag
func (r *ClinicRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Clinic, error) {
	var clinic models.Clinic
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&clinic).Error; err != nil {
		return nil, translate(err, "failed to get clinic")
	}
	return &clinic, nil
}

// GetActiveByToken retrieves the active clinic holding an access token
func (r *ClinicRepository) GetActiveByToken(ctx context.Context, token string) (*models.Clinic, error) {
	var clinic models.Clinic
	if err := r.db.WithContext(ctx).
		Where("access_token = ? AND is_active = ?", token, true).
		First(&clinic).Error; err != nil {
		return nil, translate(err, "failed to get clinic by token")
	}
	return &clinic, nil
}

// ListActiveByOwner retrieves a doctor's active clinics, oldest first
func (r *ClinicRepository) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Clinic, error) {
	var clinics []models.Clinic
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Order("created_at ASC, id ASC").
		Find(&clinics).Error; err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	return clinics, nil
}

// Deactivate clears the active flag and returns the updated clinic
func (r *ClinicRepository) Deactivate(ctx context.Context, id uuid.UUID) (*models.Clinic, error) {
	var clinic models.Clinic
	res := r.db.WithContext(ctx).
		Model(&clinic).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to deactivate clinic: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &clinic, nil
}

// DeleteWithVisits removes a clinic and every visit recorded at it in one
// transaction. Prescriptions are retained. Returns the number of visits removed.
func (r *ClinicRepository) DeleteWithVisits(ctx context.Context, id uuid.UUID) (int64, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	visits := tx.Where("clinic_id = ?", id).Delete(&models.Visit{})
	if visits.Error != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to delete clinic visits: %w", visits.Error)
	}

	res := tx.Where("id = ?", id).Delete(&models.Clinic{})
	if res.Error != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to delete clinic: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return 0, ErrNotFound
	}

	if err := tx.Commit().Error; err != nil {
		return 0, fmt.Errorf("failed to commit clinic deletion: %w", err)
	}
	return visits.RowsAffected, nil
}

// translate maps gorm lookup errors onto repository sentinels
func translate(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
