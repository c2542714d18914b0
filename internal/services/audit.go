package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/metrics"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/rs/zerolog/log"
)

const auditWriteTimeout = 2 * time.Second

// Auditor records transition attempts. Writes are best-effort: failures are
// logged and never reach the caller. A nil Auditor only counts metrics.
type Auditor struct {
	store   AuditStore
	nowFunc func() time.Time
}

// NewAuditor creates an auditor backed by store
func NewAuditor(store AuditStore) *Auditor {
	return &Auditor{store: store, nowFunc: time.Now}
}

type auditEntry struct {
	actor        models.Principal
	action       string
	resourceType string
	resourceID   string
	clinicID     uuid.UUID
	started      time.Time
}

func (a *Auditor) record(ctx context.Context, e auditEntry, opErr error) {
	outcome := outcomeOf(opErr)
	metrics.Transitions.WithLabelValues(e.action, outcome).Inc()

	if a == nil || a.store == nil {
		return
	}

	entry := &models.AuditLog{
		ActorID:      e.actor.ID,
		ActorRole:    e.actor.Role,
		Action:       e.action,
		ResourceType: e.resourceType,
		ResourceID:   e.resourceID,
		ClinicID:     e.clinicID,
		Status:       "success",
		Duration:     a.nowFunc().Sub(e.started).Milliseconds(),
	}
	if opErr != nil {
		entry.Status = "failure"
		entry.ErrorMessage = opErr.Error()
	}

	// The request may already be finished; the audit write outlives it.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := a.store.Create(writeCtx, entry); err != nil {
		log.Warn().Err(err).
			Str("action", e.action).
			Str("resource_id", e.resourceID).
			Msg("Failed to write audit entry")
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if e, ok := AsError(err); ok {
		return string(e.Kind)
	}
	return "error"
}
