package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VisitStatus is the lifecycle state of a visit
type VisitStatus string

const (
	VisitWaiting    VisitStatus = "Waiting"
	VisitInProgress VisitStatus = "In-Progress"
	VisitCompleted  VisitStatus = "Completed"
	VisitCancelled  VisitStatus = "Cancelled"
)

// OpenVisitStatuses are the states that count against the one-open-visit rule.
var OpenVisitStatuses = []VisitStatus{VisitWaiting, VisitInProgress}

// IsOpen reports whether the visit still occupies the patient's slot at the clinic.
func (s VisitStatus) IsOpen() bool {
	return s == VisitWaiting || s == VisitInProgress
}

// In reports whether s is one of set.
func (s VisitStatus) In(set []VisitStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// Visit is one patient's episode at one clinic
type Visit struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ClinicID    uuid.UUID   `gorm:"type:uuid;not null;index:idx_visits_clinic_status,priority:1" json:"clinic_id"`
	PatientID   uuid.UUID   `gorm:"type:uuid;not null;index" json:"patient_id"`
	Status      VisitStatus `gorm:"type:varchar(20);not null;default:'Waiting';index:idx_visits_clinic_status,priority:2" json:"status"`
	CheckInTime time.Time   `gorm:"not null;index" json:"check_in_time"`
	StartTime   *time.Time  `json:"start_time,omitempty"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
	Notes       string      `gorm:"type:text" json:"notes,omitempty"`

	// Clinic carries the foreign key only; deleting a clinic removes its visits.
	Clinic *Clinic `gorm:"foreignKey:ClinicID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName overrides the table name
func (Visit) TableName() string {
	return "visits"
}

// BeforeCreate hook
func (v *Visit) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// WaitEntry is one row of a clinic's waiting room
type WaitEntry struct {
	VisitID     uuid.UUID `json:"visit_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	CheckInTime time.Time `json:"check_in_time"`
	WaitMinutes int64     `json:"wait_time"`
}

// CheckInRequest is the body of a patient check-in
type CheckInRequest struct {
	ClinicID uuid.UUID `json:"clinic_id"`
}

// Clone returns a copy with its own timestamp pointers.
func (v Visit) Clone() Visit {
	cp := v
	if v.StartTime != nil {
		t := *v.StartTime
		cp.StartTime = &t
	}
	if v.EndTime != nil {
		t := *v.EndTime
		cp.EndTime = &t
	}
	return cp
}
