// Package handler exposes the school registry over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/schools/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/apierror"
	"github.com/enrolly/enrolly-backend/platform/go/logging"
	"github.com/enrolly/enrolly-backend/platform/go/scope"
)

// Handler serves the school endpoints.
type Handler struct {
	schools *service.Service
}

// New constructs a Handler.
func New(schools *service.Service) *Handler {
	return &Handler{schools: schools}
}

// Routes builds the school router. The listing is scoped to the credential's
// bound school, so a caller only ever sees their own tenant here.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	return r
}

type schoolResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	IsActive bool      `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, ok := scope.FromContext(r.Context())
	if !ok {
		apierror.Write(w, nil, apierror.Authentication("CONTEXT_REQUIRED", "credential is not bound to a school and season"))
		return
	}

	school, err := h.schools.Get(r.Context(), access.Context.SchoolID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierror.Write(w, nil, apierror.NotFound("SCHOOL_NOT_FOUND", "school not found"))
			return
		}
		apierror.Write(w, logging.FromRequest(r, nil), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode([]schoolResponse{{
		ID:       school.ID,
		Name:     school.Name,
		Slug:     school.Slug,
		IsActive: school.IsActive,
	}})
}
