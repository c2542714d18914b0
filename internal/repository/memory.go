package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
)

// MemoryStore keeps clinics, visits, prescriptions and audit entries in
// process memory. Every mutation runs under one lock, which gives it the same
// uniqueness and compare-and-set guarantees the postgres repositories get
// from indexes and conditional updates.
type MemoryStore struct {
	mu sync.RWMutex

	clinics      map[uuid.UUID]*models.Clinic
	clinicTokens map[string]uuid.UUID

	visits     map[uuid.UUID]*models.Visit
	openVisits map[openVisitKey]uuid.UUID

	prescriptions map[uuid.UUID]*models.Prescription
	bySecret      map[string]uuid.UUID
	byVisit       map[uuid.UUID]uuid.UUID

	audit []models.AuditLog

	nowFunc func() time.Time
}

type openVisitKey struct {
	clinicID  uuid.UUID
	patientID uuid.UUID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clinics:       make(map[uuid.UUID]*models.Clinic),
		clinicTokens:  make(map[string]uuid.UUID),
		visits:        make(map[uuid.UUID]*models.Visit),
		openVisits:    make(map[openVisitKey]uuid.UUID),
		prescriptions: make(map[uuid.UUID]*models.Prescription),
		bySecret:      make(map[string]uuid.UUID),
		byVisit:       make(map[uuid.UUID]uuid.UUID),
		nowFunc:       time.Now,
	}
}

// Clinics returns the clinic view of the store
func (m *MemoryStore) Clinics() *MemoryClinics { return &MemoryClinics{m} }

// Visits returns the visit view of the store
func (m *MemoryStore) Visits() *MemoryVisits { return &MemoryVisits{m} }

// Prescriptions returns the prescription view of the store
func (m *MemoryStore) Prescriptions() *MemoryPrescriptions { return &MemoryPrescriptions{m} }

// Audit returns the audit view of the store
func (m *MemoryStore) Audit() *MemoryAudit { return &MemoryAudit{m} }

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Clinics
// ---------------------------------------------------------------------------

// MemoryClinics implements clinic storage on a MemoryStore
type MemoryClinics struct{ s *MemoryStore }

func (c *MemoryClinics) Create(ctx context.Context, clinic *models.Clinic) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if _, taken := c.s.clinicTokens[clinic.AccessToken]; taken {
		return ErrDuplicate
	}
	if clinic.ID == uuid.Nil {
		clinic.ID = uuid.New()
	}
	if _, taken := c.s.clinics[clinic.ID]; taken {
		return ErrDuplicate
	}
	if clinic.CreatedAt.IsZero() {
		clinic.CreatedAt = c.s.nowFunc().UTC()
	}

	stored := *clinic
	c.s.clinics[stored.ID] = &stored
	c.s.clinicTokens[stored.AccessToken] = stored.ID
	return nil
}

func (c *MemoryClinics) GetByID(ctx context.Context, id uuid.UUID) (*models.Clinic, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	clinic, ok := c.s.clinics[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *clinic
	return &cp, nil
}

func (c *MemoryClinics) GetActiveByToken(ctx context.Context, token string) (*models.Clinic, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	id, ok := c.s.clinicTokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	clinic := c.s.clinics[id]
	if !clinic.IsActive {
		return nil, ErrNotFound
	}
	cp := *clinic
	return &cp, nil
}

func (c *MemoryClinics) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Clinic, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	out := make([]models.Clinic, 0)
	for _, clinic := range c.s.clinics {
		if clinic.OwnerID == ownerID && clinic.IsActive {
			out = append(out, *clinic)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (c *MemoryClinics) Deactivate(ctx context.Context, id uuid.UUID) (*models.Clinic, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	clinic, ok := c.s.clinics[id]
	if !ok {
		return nil, ErrNotFound
	}
	clinic.IsActive = false
	cp := *clinic
	return &cp, nil
}

func (c *MemoryClinics) DeleteWithVisits(ctx context.Context, id uuid.UUID) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	clinic, ok := c.s.clinics[id]
	if !ok {
		return 0, ErrNotFound
	}

	var removed int64
	for vid, v := range c.s.visits {
		if v.ClinicID != id {
			continue
		}
		delete(c.s.openVisits, openVisitKey{v.ClinicID, v.PatientID})
		delete(c.s.visits, vid)
		removed++
	}
	delete(c.s.clinicTokens, clinic.AccessToken)
	delete(c.s.clinics, id)
	return removed, nil
}

// ---------------------------------------------------------------------------
// Visits
// ---------------------------------------------------------------------------

// MemoryVisits implements visit storage on a MemoryStore
type MemoryVisits struct{ s *MemoryStore }

func (v *MemoryVisits) CreateOpen(ctx context.Context, visit *models.Visit) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if clinic, ok := v.s.clinics[visit.ClinicID]; !ok || !clinic.IsActive {
		return ErrNotFound
	}
	key := openVisitKey{visit.ClinicID, visit.PatientID}
	if _, exists := v.s.openVisits[key]; exists && visit.Status.IsOpen() {
		return ErrDuplicate
	}
	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}

	stored := visit.Clone()
	v.s.visits[stored.ID] = &stored
	if stored.Status.IsOpen() {
		v.s.openVisits[key] = stored.ID
	}
	return nil
}

func (v *MemoryVisits) GetByID(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	visit, ok := v.s.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := visit.Clone()
	return &cp, nil
}

func (v *MemoryVisits) FindOpen(ctx context.Context, clinicID, patientID uuid.UUID) (*models.Visit, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	id, ok := v.s.openVisits[openVisitKey{clinicID, patientID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := v.s.visits[id].Clone()
	return &cp, nil
}

func (v *MemoryVisits) ListByClinicStatus(ctx context.Context, clinicID uuid.UUID, status models.VisitStatus) ([]models.Visit, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	out := make([]models.Visit, 0)
	for _, visit := range v.s.visits {
		if visit.ClinicID == clinicID && visit.Status == status {
			out = append(out, visit.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckInTime.Equal(out[j].CheckInTime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CheckInTime.Before(out[j].CheckInTime)
	})
	return out, nil
}

func (v *MemoryVisits) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Visit, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	out := make([]models.Visit, 0)
	for _, visit := range v.s.visits {
		if visit.PatientID == patientID {
			out = append(out, visit.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CheckInTime.After(out[j].CheckInTime)
	})
	return out, nil
}

func (v *MemoryVisits) Transition(ctx context.Context, id uuid.UUID, from []models.VisitStatus, to models.VisitStatus, at time.Time) (*models.Visit, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	return v.s.transitionLocked(id, from, to, at)
}

// transitionLocked is the compare-and-set on a visit's status. Caller holds mu.
func (m *MemoryStore) transitionLocked(id uuid.UUID, from []models.VisitStatus, to models.VisitStatus, at time.Time) (*models.Visit, error) {
	visit, ok := m.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !visit.Status.In(from) {
		return nil, ErrStateChanged
	}

	visit.Status = to
	stamp := at
	switch to {
	case models.VisitInProgress:
		visit.StartTime = &stamp
	case models.VisitCompleted, models.VisitCancelled:
		visit.EndTime = &stamp
	}
	if !to.IsOpen() {
		delete(m.openVisits, openVisitKey{visit.ClinicID, visit.PatientID})
	}

	cp := visit.Clone()
	return &cp, nil
}

// ---------------------------------------------------------------------------
// Prescriptions
// ---------------------------------------------------------------------------

// MemoryPrescriptions implements prescription storage on a MemoryStore
type MemoryPrescriptions struct{ s *MemoryStore }

func (p *MemoryPrescriptions) IssueForVisit(ctx context.Context, rx *models.Prescription, from []models.VisitStatus) (*models.Visit, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	// Check every constraint before touching the visit so a rejected insert
	// leaves nothing behind.
	visit, ok := p.s.visits[rx.VisitID]
	if !ok {
		return nil, ErrNotFound
	}
	if !visit.Status.In(from) {
		return nil, ErrStateChanged
	}
	if _, exists := p.s.byVisit[rx.VisitID]; exists {
		return nil, ErrDuplicate
	}
	if _, exists := p.s.bySecret[rx.RedemptionSecret]; exists {
		return nil, ErrSecretTaken
	}
	if rx.ID == uuid.Nil {
		rx.ID = uuid.New()
	}

	updated, err := p.s.transitionLocked(rx.VisitID, from, models.VisitCompleted, rx.IssuedAt)
	if err != nil {
		return nil, err
	}

	stored := rx.Clone()
	p.s.prescriptions[stored.ID] = &stored
	p.s.bySecret[stored.RedemptionSecret] = stored.ID
	p.s.byVisit[stored.VisitID] = stored.ID
	return updated, nil
}

func (p *MemoryPrescriptions) GetByVisitID(ctx context.Context, visitID uuid.UUID) (*models.Prescription, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	id, ok := p.s.byVisit[visitID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p.s.prescriptions[id].Clone()
	return &cp, nil
}

func (p *MemoryPrescriptions) GetBySecret(ctx context.Context, secret string) (*models.Prescription, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	id, ok := p.s.bySecret[secret]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p.s.prescriptions[id].Clone()
	return &cp, nil
}

func (p *MemoryPrescriptions) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Prescription, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	out := make([]models.Prescription, 0)
	for _, rx := range p.s.prescriptions {
		if rx.PatientID == patientID {
			out = append(out, rx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

func (p *MemoryPrescriptions) MarkDispensed(ctx context.Context, secret string, at time.Time) (*models.Prescription, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	id, ok := p.s.bySecret[secret]
	if !ok {
		return nil, ErrNotFound
	}
	rx := p.s.prescriptions[id]
	if rx.Status != models.PrescriptionActive {
		return nil, ErrStateChanged
	}

	stamp := at
	rx.Status = models.PrescriptionDispensed
	rx.DispensedAt = &stamp

	cp := rx.Clone()
	return &cp, nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// MemoryAudit implements audit storage on a MemoryStore
type MemoryAudit struct{ s *MemoryStore }

func (a *MemoryAudit) Create(ctx context.Context, log *models.AuditLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = a.s.nowFunc().UTC()
	}
	a.s.audit = append(a.s.audit, *log)
	return nil
}

// Entries returns a snapshot of recorded audit entries, oldest first
func (a *MemoryAudit) Entries() []models.AuditLog {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	return append([]models.AuditLog(nil), a.s.audit...)
}

func (a *MemoryAudit) ListByClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	var out []models.AuditLog
	for i := len(a.s.audit) - 1; i >= 0; i-- {
		if a.s.audit[i].ClinicID == clinicID {
			out = append(out, a.s.audit[i])
		}
	}
	if offset >= len(out) {
		return []models.AuditLog{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
