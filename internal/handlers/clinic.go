package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/otcheredev/clinicflow/internal/services"
)

type ClinicHandler struct {
	clinics *services.ClinicService
}

func NewClinicHandler(clinics *services.ClinicService) *ClinicHandler {
	return &ClinicHandler{clinics: clinics}
}

type createClinicResponse struct {
	Clinic     *models.Clinic `json:"clinic"`
	CheckInURL string         `json:"check_in_url"`
}

// Create registers a clinic for the calling doctor
func (h *ClinicHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.CreateClinicRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	clinic, err := h.clinics.Create(r.Context(), p, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createClinicResponse{
		Clinic:     clinic,
		CheckInURL: h.clinics.CheckInURL(clinic.AccessToken),
	})
}

// ListMine lists the caller's active clinics
func (h *ClinicHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	clinics, err := h.clinics.List(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clinics": clinics})
}

// ResolveToken is the unauthenticated lookup behind a scanned clinic code
func (h *ClinicHandler) ResolveToken(w http.ResponseWriter, r *http.Request) {
	clinic, err := h.clinics.ResolveByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clinic)
}

// Deactivate hides a clinic from check-in
func (h *ClinicHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	clinicID, ok := uuidParam(w, r, "clinicID")
	if !ok {
		return
	}

	clinic, err := h.clinics.Deactivate(r.Context(), p, clinicID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clinic)
}

// AuditTrail pages through a clinic's audit entries
func (h *ClinicHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	clinicID, ok := uuidParam(w, r, "clinicID")
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := intQuery(w, r, "offset", 0)
	if !ok {
		return
	}

	entries, err := h.clinics.AuditTrail(r.Context(), p, clinicID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// Delete removes a clinic and its visits
func (h *ClinicHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	clinicID, ok := uuidParam(w, r, "clinicID")
	if !ok {
		return
	}

	if err := h.clinics.Delete(r.Context(), p, clinicID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
