package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions
const (
	ActionClinicCreate       = "clinic.create"
	ActionClinicDeactivate   = "clinic.deactivate"
	ActionClinicDelete       = "clinic.delete"
	ActionVisitCheckIn       = "visit.check_in"
	ActionVisitStart         = "visit.start"
	ActionVisitCancel        = "visit.cancel"
	ActionPrescriptionIssue  = "prescription.issue"
	ActionPrescriptionRedeem = "prescription.redeem"
)

// AuditLog records one attempted state transition
type AuditLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ActorID      uuid.UUID `gorm:"type:uuid;index" json:"actor_id"`
	ActorRole    Role      `gorm:"type:varchar(20)" json:"actor_role"`
	Action       string    `gorm:"type:varchar(100);not null;index" json:"action"`
	ResourceType string    `gorm:"type:varchar(50);index" json:"resource_type"`
	ResourceID   string    `gorm:"type:varchar(255);index" json:"resource_id"`
	ClinicID     uuid.UUID `gorm:"type:uuid;index" json:"clinic_id,omitempty"`
	Status       string    `gorm:"type:varchar(20);index" json:"status"` // success, failure
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	Duration     int64     `json:"duration_ms"` // milliseconds
	CreatedAt    time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
