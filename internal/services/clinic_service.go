package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/cache"
	"github.com/otcheredev/clinicflow/internal/metrics"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/otcheredev/clinicflow/internal/repository"
	"github.com/otcheredev/clinicflow/pkg/logger"
	"github.com/rs/zerolog/log"
)

// tokenAttempts bounds regeneration on the (practically impossible) event of
// an access token collision.
const tokenAttempts = 3

// Audit trail page sizes
const (
	defaultAuditPage = 50
	maxAuditPage     = 200
)

// ClinicService is the clinic registry
type ClinicService struct {
	clinics       ClinicStore
	auditor       *Auditor
	cache         cache.Cache
	tokenTTL      time.Duration
	publicBaseURL string
}

// NewClinicService creates a clinic registry. c may be nil to disable caching
// of public token lookups.
func NewClinicService(clinics ClinicStore, auditor *Auditor, c cache.Cache, tokenTTL time.Duration, publicBaseURL string) *ClinicService {
	return &ClinicService{
		clinics:       clinics,
		auditor:       auditor,
		cache:         c,
		tokenTTL:      tokenTTL,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Create registers a clinic owned by the calling doctor
func (s *ClinicService) Create(ctx context.Context, owner models.Principal, req *models.CreateClinicRequest) (clinic *models.Clinic, err error) {
	started := time.Now()
	defer func() {
		e := auditEntry{actor: owner, action: models.ActionClinicCreate, resourceType: "clinic", started: started}
		if clinic != nil {
			e.resourceID, e.clinicID = clinic.ID.String(), clinic.ID
		}
		s.auditor.record(ctx, e, err)
	}()

	name := strings.TrimSpace(req.Name)
	location := strings.TrimSpace(req.Location)
	if name == "" || location == "" {
		return nil, newError(KindValidation, "name and location are required")
	}

	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token, err := NewAccessToken()
		if err != nil {
			return nil, err
		}

		clinic = &models.Clinic{
			Name:        name,
			Location:    location,
			OwnerID:     owner.ID,
			AccessToken: token,
			IsActive:    true,
		}
		err = s.clinics.Create(ctx, clinic)
		if err == nil {
			log.Info().
				Str("clinic_id", clinic.ID.String()).
				Str("owner_id", owner.ID.String()).
				Str("token", logger.Redact(token)).
				Msg("Clinic created")
			return clinic, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create clinic: %w", err)
		}
	}
	return nil, errors.New("failed to allocate a unique clinic access token")
}

// List returns the owner's active clinics, oldest first
func (s *ClinicService) List(ctx context.Context, owner models.Principal) ([]models.Clinic, error) {
	clinics, err := s.clinics.ListActiveByOwner(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	return clinics, nil
}

// ResolveByToken is the unauthenticated lookup behind a scanned clinic code.
// Only public display fields are returned.
func (s *ClinicService) ResolveByToken(ctx context.Context, token string) (*models.PublicClinic, error) {
	if token == "" {
		return nil, newError(KindNotFound, "clinic not found")
	}

	key := cache.ClinicTokenKey(token)
	if s.cache != nil {
		var cached models.PublicClinic
		err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Clinic cache read failed")
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	clinic, err := s.clinics.GetActiveByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "clinic not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve clinic token: %w", err)
	}

	public := clinic.Public()
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, public, s.tokenTTL); err != nil {
			log.Warn().Err(err).Msg("Clinic cache write failed")
		}
	}
	return &public, nil
}

// Deactivate hides the clinic from token lookups and check-ins
func (s *ClinicService) Deactivate(ctx context.Context, owner models.Principal, clinicID uuid.UUID) (clinic *models.Clinic, err error) {
	started := time.Now()
	defer func() {
		s.auditor.record(ctx, auditEntry{
			actor: owner, action: models.ActionClinicDeactivate, resourceType: "clinic",
			resourceID: clinicID.String(), clinicID: clinicID, started: started,
		}, err)
	}()

	existing, err := s.Owned(ctx, owner, clinicID)
	if err != nil {
		return nil, err
	}

	clinic, err = s.clinics.Deactivate(ctx, clinicID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "clinic not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate clinic: %w", err)
	}

	s.forgetToken(ctx, existing.AccessToken)
	return clinic, nil
}

// Delete removes the clinic and its visits. Prescriptions stay redeemable.
func (s *ClinicService) Delete(ctx context.Context, owner models.Principal, clinicID uuid.UUID) (err error) {
	started := time.Now()
	defer func() {
		s.auditor.record(ctx, auditEntry{
			actor: owner, action: models.ActionClinicDelete, resourceType: "clinic",
			resourceID: clinicID.String(), clinicID: clinicID, started: started,
		}, err)
	}()

	existing, err := s.Owned(ctx, owner, clinicID)
	if err != nil {
		return err
	}

	removed, err := s.clinics.DeleteWithVisits(ctx, clinicID)
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, "clinic not found")
	}
	if err != nil {
		return fmt.Errorf("failed to delete clinic: %w", err)
	}

	s.forgetToken(ctx, existing.AccessToken)
	log.Info().
		Str("clinic_id", clinicID.String()).
		Int64("visits_removed", removed).
		Msg("Clinic deleted")
	return nil
}

// AuditTrail lists recorded transition attempts touching an owned clinic,
// newest first.
func (s *ClinicService) AuditTrail(ctx context.Context, doctor models.Principal, clinicID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if _, err := loadOwnedClinic(ctx, s.clinics, doctor, clinicID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultAuditPage
	case limit > maxAuditPage:
		limit = maxAuditPage
	}
	if offset < 0 {
		offset = 0
	}
	if s.auditor == nil {
		return []models.AuditLog{}, nil
	}

	entries, err := s.auditor.store.ListByClinic(ctx, clinicID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit trail: %w", err)
	}
	return entries, nil
}

// CheckInURL is the payload encoded in a clinic's printed code
func (s *ClinicService) CheckInURL(token string) string {
	return s.publicBaseURL + "/check-in?token=" + url.QueryEscape(token)
}

// Owned loads a clinic and checks that the principal is its doctor
func (s *ClinicService) Owned(ctx context.Context, p models.Principal, clinicID uuid.UUID) (*models.Clinic, error) {
	return loadOwnedClinic(ctx, s.clinics, p, clinicID)
}

func (s *ClinicService) forgetToken(ctx context.Context, token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ClinicTokenKey(token)); err != nil {
		log.Warn().Err(err).Str("token", logger.Redact(token)).Msg("Failed to invalidate clinic cache")
	}
}

func loadOwnedClinic(ctx context.Context, clinics ClinicStore, p models.Principal, clinicID uuid.UUID) (*models.Clinic, error) {
	clinic, err := clinics.GetByID(ctx, clinicID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "clinic not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}
	if !ownsClinic(p, clinic) {
		return nil, newError(KindForbidden, "you do not own this clinic")
	}
	return clinic, nil
}

func ownsClinic(p models.Principal, clinic *models.Clinic) bool {
	return p.Is(models.RoleDoctor) && clinic.OwnerID == p.ID
}
