package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"clinika.org/internal/audit"
	"clinika.org/internal/auth"
	"clinika.org/internal/clinic"
)

type registerPatientRequest struct {
	FullName string `json:"full_name"`
	BornOn   string `json:"born_on,omitempty"`
}

func (a *API) handlePatients(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		patients, err := a.clinic.List(r.Context(), claims.TenantID, limit)
		if err != nil {
			handleClinicError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"patients": patients})
	case http.MethodPost:
		var req registerPatientRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		patient, err := a.clinic.Register(r.Context(), claims.TenantID, req.FullName, req.BornOn)
		if err != nil {
			handleClinicError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "clinic.patient.registered", map[string]any{
			"patient_id": patient.ID,
			"tenant_id":  patient.TenantID,
		})
		writeJSON(w, http.StatusCreated, patient)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePatientResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/patients/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	patient, err := a.clinic.Get(r.Context(), claims.TenantID, id)
	if err != nil {
		handleClinicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func handleClinicError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, clinic.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, clinic.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	}
}
