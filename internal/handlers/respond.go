package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/middleware"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/otcheredev/clinicflow/internal/services"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error       string     `json:"error"`
	Kind        string     `json:"kind"`
	VisitID     *uuid.UUID `json:"visit_id,omitempty"`
	DispensedAt *time.Time `json:"dispensed_at,omitempty"`
}

var kindStatus = map[services.Kind]int{
	services.KindValidation:       http.StatusBadRequest,
	services.KindNotFound:         http.StatusNotFound,
	services.KindForbidden:        http.StatusForbidden,
	services.KindInvalidState:     http.StatusConflict,
	services.KindConflict:         http.StatusConflict,
	services.KindAlreadyDispensed: http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps domain errors to their status and hides everything else
// behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := services.AsError(err); ok {
		status, known := kindStatus[e.Kind]
		if known {
			writeJSON(w, status, errorResponse{
				Error:       e.Message,
				Kind:        string(e.Kind),
				VisitID:     e.VisitID,
				DispensedAt: e.DispensedAt,
			})
			return
		}
	}

	log.Error().Err(err).
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Msg("Request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: "ServerError"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: string(services.KindValidation)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			badRequest(w, "request body is required")
		} else {
			badRequest(w, "invalid request body")
		}
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(w, "invalid "+name)
		return 0, false
	}
	return n, true
}

// principal returns the authenticated caller. Routes using it sit behind
// middleware.Identity.
func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Kind: "Unauthorized"})
	}
	return p, ok
}
