package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	accessTokenBytes = 32
	secretSaltBytes  = 16
)

// NewAccessToken returns a 256-bit random clinic access token, hex encoded.
func NewAccessToken() (string, error) {
	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewRedemptionSecret derives a prescription secret from the visit id, the
// issue time and fresh randomness, hashed so none of the inputs can be
// recovered from it.
func NewRedemptionSecret(visitID uuid.UUID, at time.Time) (string, error) {
	salt := make([]byte, secretSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate redemption secret: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(visitID.String()))
	h.Write([]byte{'-'})
	h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	h.Write([]byte{'-'})
	h.Write(salt)
	return hex.EncodeToString(h.Sum(nil)), nil
}
