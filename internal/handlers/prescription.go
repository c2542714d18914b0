package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/otcheredev/clinicflow/internal/services"
)

type PrescriptionHandler struct {
	prescriptions *services.PrescriptionService
}

func NewPrescriptionHandler(prescriptions *services.PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{prescriptions: prescriptions}
}

// Issue writes a prescription and completes its visit
func (h *PrescriptionHandler) Issue(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.IssuePrescriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VisitID == uuid.Nil {
		badRequest(w, "visit_id is required")
		return
	}

	rx, err := h.prescriptions.Issue(r.Context(), p, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rx)
}

// ListMine is the patient's health locker
func (h *PrescriptionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	list, err := h.prescriptions.ListForPatient(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prescriptions": list})
}

// Lookup lets a pharmacy inspect a scanned prescription before dispensing
func (h *PrescriptionHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	rx, err := h.prescriptions.LookupBySecret(r.Context(), chi.URLParam(r, "secret"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rx)
}

// Redeem dispenses a prescription exactly once
func (h *PrescriptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	rx, err := h.prescriptions.Redeem(r.Context(), p, chi.URLParam(r, "secret"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rx)
}
