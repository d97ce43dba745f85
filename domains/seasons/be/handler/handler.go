// Package handler exposes the season lifecycle over HTTP. Every route runs
// behind the scope gate, so the school is always the one bound into the
// caller's credential, never a request parameter.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/enrolly/enrolly-backend/domains/seasons/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/apierror"
	"github.com/enrolly/enrolly-backend/platform/go/logging"
	"github.com/enrolly/enrolly-backend/platform/go/scope"
)

const dateLayout = "2006-01-02"

// Handler serves the season endpoints.
type Handler struct {
	seasons *service.Service
}

// New constructs a Handler.
func New(seasons *service.Service) *Handler {
	return &Handler{seasons: seasons}
}

// Routes builds the season router. Mutating routes additionally require the
// manage middleware supplied by the caller.
func (h *Handler) Routes(requireManage func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.list)
	r.Get("/current", h.getCurrent)
	r.Get("/{seasonID}", h.get)

	r.Group(func(g chi.Router) {
		g.Use(requireManage)
		g.Post("/", h.create)
		g.Put("/{seasonID}", h.update)
		g.Post("/{seasonID}/activate", h.activate)
		g.Post("/{seasonID}/close", h.close)
		g.Delete("/{seasonID}", h.delete)
	})

	return r
}

type seasonPayload struct {
	Name      *string `json:"name"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	IsActive  *bool   `json:"is_active"`
}

type seasonResponse struct {
	ID        uuid.UUID  `json:"id"`
	SchoolID  uuid.UUID  `json:"school_id"`
	Name      string     `json:"name"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	IsActive  bool       `json:"is_active"`
	IsClosed  bool       `json:"is_closed"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ClosedBy  *uuid.UUID `json:"closed_by,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	access, ok := requireAccess(w, r)
	if !ok {
		return
	}

	var payload seasonPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid JSON payload", nil))
		return
	}

	input := service.CreateInput{}
	fields := service.FieldErrors{}
	if payload.Name != nil {
		input.Name = *payload.Name
	}
	if payload.StartDate != nil {
		input.StartDate = parseDate(*payload.StartDate, "start_date", fields)
	}
	if payload.EndDate != nil {
		input.EndDate = parseDate(*payload.EndDate, "end_date", fields)
	}
	if payload.IsActive != nil {
		input.IsActive = *payload.IsActive
	}
	if len(fields) > 0 {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid season payload", fields))
		return
	}

	season, err := h.seasons.Create(r.Context(), access.Context.SchoolID, input)
	if err != nil {
		writeSeasonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(season))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	access, ok := requireAccess(w, r)
	if !ok {
		return
	}
	seasonID, ok := parseSeasonID(w, r)
	if !ok {
		return
	}

	var payload seasonPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid JSON payload", nil))
		return
	}

	input := service.UpdateInput{Name: payload.Name, IsActive: payload.IsActive}
	fields := service.FieldErrors{}
	if payload.StartDate != nil {
		parsed := parseDate(*payload.StartDate, "start_date", fields)
		input.StartDate = &parsed
	}
	if payload.EndDate != nil {
		parsed := parseDate(*payload.EndDate, "end_date", fields)
		input.EndDate = &parsed
	}
	if len(fields) > 0 {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid season payload", fields))
		return
	}

	season, err := h.seasons.Update(r.Context(), access.Context.SchoolID, seasonID, input)
	if err != nil {
		writeSeasonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(season))
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	access, ok := requireAccess(w, r)
	if !ok {
		return
	}
	seasonID, ok := parseSeasonID(w, r)
	if !ok {
		return
	}

	season, err := h.seasons.Activate(r.Context(), access.Context.SchoolID, seasonID)
	if err != nil {
		writeSeasonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(season))
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	access, ok := requireAccess(w, r)
	if !ok {
		return
	}
	seasonID, ok := parseSeasonID(w, r)
	if !ok {
		return
	}

	season, err := h.seasons.Close(r.Context(), access.Context.SchoolID, seasonID)
	if err != nil {
		writeSeasonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(season))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	access, ok := requireAccess(w, r)
	if !ok {
		return
	}
	seasonID, ok := parseSeasonID(w, r)
	if !ok {
		return
	}

	if err := h.seasons.Delete(r.Context(), access.Context.SchoolID, seasonID); err != nil {
		writeSeasonError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	access, ok := requireAccess(w, r)
	if !ok {
		return
	}
	seasonID, ok := parseSeasonID(w, r)
	if !ok {
		return
	}

	season, err := h.seasons.GetByID(r.Context(), access.Context.SchoolID, seasonID)
	if err != nil {
		writeSeasonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(season))
}

func (h *Handler) getCurrent(w http.ResponseWriter, r *http.Request) {
	access, ok := requireAccess(w, r)
	if !ok {
		return
	}

	season, err := h.seasons.GetCurrent(r.Context(), access.Context.SchoolID)
	if err != nil {
		writeSeasonError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(season))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, ok := requireAccess(w, r)
	if !ok {
		return
	}

	seasons, err := h.seasons.List(r.Context(), access.Context.SchoolID)
	if err != nil {
		writeSeasonError(w, r, err)
		return
	}

	responses := make([]seasonResponse, 0, len(seasons))
	for _, season := range seasons {
		responses = append(responses, toResponse(season))
	}
	writeJSON(w, http.StatusOK, responses)
}

// requireAccess fetches the Access attached by the scope gate. Missing access
// on these routes means the gate was not mounted, but the client still gets a
// well-formed 401 instead of a panic.
func requireAccess(w http.ResponseWriter, r *http.Request) (scope.Access, bool) {
	access, ok := scope.FromContext(r.Context())
	if !ok {
		apierror.Write(w, nil, apierror.Authentication("CONTEXT_REQUIRED", "credential is not bound to a school and season"))
		return scope.Access{}, false
	}
	return access, true
}

func parseSeasonID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "seasonID"))
	if err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid season id", map[string][]string{
			"season_id": {"must be a valid UUID"},
		}))
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(raw, field string, fields service.FieldErrors) time.Time {
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		fields[field] = append(fields[field], "must be a date in YYYY-MM-DD format")
		return time.Time{}
	}
	return parsed
}

func writeSeasonError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid season payload", validationErr.Fields))
	case errors.Is(err, service.ErrNotFound):
		apierror.Write(w, nil, apierror.NotFound("SEASON_NOT_FOUND", "season not found"))
	case errors.Is(err, service.ErrNoActive):
		apierror.Write(w, nil, apierror.NotFound("NO_ACTIVE_SEASON", "school has no active season"))
	case errors.Is(err, service.ErrClosed):
		apierror.Write(w, nil, apierror.Conflict("SEASON_CLOSED", "season is closed"))
	case errors.Is(err, service.ErrAlreadyClosed):
		apierror.Write(w, nil, apierror.Conflict("SEASON_ALREADY_CLOSED", "season is already closed"))
	case errors.Is(err, service.ErrHasData):
		apierror.Write(w, nil, apierror.Conflict("SEASON_HAS_DATA", "closed seasons cannot be deleted"))
	default:
		apierror.Write(w, logging.FromRequest(r, nil), err)
	}
}

func toResponse(season service.Season) seasonResponse {
	return seasonResponse{
		ID:        season.ID,
		SchoolID:  season.SchoolID,
		Name:      season.Name,
		StartDate: season.StartDate.Format(dateLayout),
		EndDate:   season.EndDate.Format(dateLayout),
		IsActive:  season.IsActive,
		IsClosed:  season.IsClosed,
		ClosedAt:  season.ClosedAt,
		ClosedBy:  season.ClosedBy,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
