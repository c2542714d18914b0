package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role of an authenticated principal
type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RolePharmacy, RoleAdmin:
		return true
	}
	return false
}

// Principal is the acting identity resolved from a request
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// Is reports whether the principal has the given role
func (p Principal) Is(role Role) bool {
	return p.Role == role
}

// JWTClaims represents custom JWT claims
type JWTClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
	jwt.RegisteredClaims
}
