package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PrescriptionStatus is the redemption state of a prescription
type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "Active"
	PrescriptionDispensed PrescriptionStatus = "Dispensed"
)

// Medication is one line of a prescription. Instructions is optional.
type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

// MissingField returns the first required field left blank, or "".
func (m Medication) MissingField() string {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return "name"
	case strings.TrimSpace(m.Dosage) == "":
		return "dosage"
	case strings.TrimSpace(m.Frequency) == "":
		return "frequency"
	case strings.TrimSpace(m.Duration) == "":
		return "duration"
	}
	return ""
}

// Prescription is issued at the close of a visit and redeemed once at a pharmacy.
type Prescription struct {
	ID               uuid.UUID                      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	VisitID          uuid.UUID                      `gorm:"type:uuid;not null;uniqueIndex" json:"visit_id"`
	ClinicID         uuid.UUID                      `gorm:"type:uuid;not null;index" json:"clinic_id"`
	PatientID        uuid.UUID                      `gorm:"type:uuid;not null;index" json:"patient_id"`
	DoctorID         uuid.UUID                      `gorm:"type:uuid;not null;index" json:"doctor_id"`
	Medications      datatypes.JSONSlice[Medication] `gorm:"not null" json:"medications"`
	Notes            string                         `gorm:"type:text" json:"notes,omitempty"`
	Status           PrescriptionStatus             `gorm:"type:varchar(20);not null;default:'Active'" json:"status"`
	RedemptionSecret string                         `gorm:"type:varchar(128);not null;uniqueIndex" json:"redemption_secret"`
	IssuedAt         time.Time                      `gorm:"not null;index" json:"issued_at"`
	DispensedAt      *time.Time                     `json:"dispensed_at,omitempty"`
}

// TableName overrides the table name
func (Prescription) TableName() string {
	return "prescriptions"
}

// BeforeCreate hook
func (p *Prescription) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias stored medication slices.
func (p Prescription) Clone() Prescription {
	cp := p
	cp.Medications = append(datatypes.JSONSlice[Medication](nil), p.Medications...)
	if p.DispensedAt != nil {
		t := *p.DispensedAt
		cp.DispensedAt = &t
	}
	return cp
}

// IssuePrescriptionRequest is the body of a prescription issuance
type IssuePrescriptionRequest struct {
	VisitID     uuid.UUID    `json:"visit_id"`
	Medications []Medication `json:"medications"`
	Notes       string       `json:"notes,omitempty"`
}
