package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Clinic is a location operated by one doctor. Patients reach it through the
// secret AccessToken printed on the clinic's QR code.
type Clinic struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Location    string    `gorm:"type:varchar(500);not null" json:"location"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	AccessToken string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"access_token"`
	IsActive    bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName overrides the table name
func (Clinic) TableName() string {
	return "clinics"
}

// BeforeCreate hook
func (c *Clinic) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// PublicClinic is what an unauthenticated token lookup may reveal.
type PublicClinic struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Location string    `json:"location"`
}

// Public strips owner and secret fields.
func (c *Clinic) Public() PublicClinic {
	return PublicClinic{ID: c.ID, Name: c.Name, Location: c.Location}
}

// CreateClinicRequest is the body of a clinic registration
type CreateClinicRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}
