package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/otcheredev/clinicflow/internal/services"
)

type VisitHandler struct {
	visits *services.VisitService
}

func NewVisitHandler(visits *services.VisitService) *VisitHandler {
	return &VisitHandler{visits: visits}
}

// CheckIn opens a visit for the calling patient
func (h *VisitHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.CheckInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ClinicID == uuid.Nil {
		badRequest(w, "clinic_id is required")
		return
	}

	visit, err := h.visits.CheckIn(r.Context(), p, req.ClinicID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, visit)
}

// ListMine lists the calling patient's visits
func (h *VisitHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	visits, err := h.visits.ListForPatient(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"visits": visits})
}

// WaitingRoom lists a clinic's waiting patients
func (h *VisitHandler) WaitingRoom(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	clinicID, ok := uuidParam(w, r, "clinicID")
	if !ok {
		return
	}

	room, err := h.visits.ListWaitingRoom(r.Context(), p, clinicID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Start moves a waiting visit into consultation
func (h *VisitHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.visits.Start)
}

// Cancel withdraws a waiting visit
func (h *VisitHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.visits.Cancel)
}

type visitTransition func(ctx context.Context, p models.Principal, visitID uuid.UUID) (*models.Visit, error)

func (h *VisitHandler) transition(w http.ResponseWriter, r *http.Request, apply visitTransition) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	visitID, ok := uuidParam(w, r, "visitID")
	if !ok {
		return
	}

	visit, err := apply(r.Context(), p, visitID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

// Get returns a visit with its prescription
func (h *VisitHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	visitID, ok := uuidParam(w, r, "visitID")
	if !ok {
		return
	}

	detail, err := h.visits.Get(r.Context(), p, visitID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
