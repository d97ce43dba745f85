// Package handler exposes authentication and the tenant/period selection
// flow over HTTP. Routes split into three groups with different middleware
// needs: public (login, start), session (selection, any valid credential) and
// scoped (permissions, finalized credentials only).
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	accesssvc "github.com/enrolly/enrolly-backend/domains/access/be/service"
	"github.com/enrolly/enrolly-backend/domains/auth/be/service"
	schoolsvc "github.com/enrolly/enrolly-backend/domains/schools/be/service"
	seasonsvc "github.com/enrolly/enrolly-backend/domains/seasons/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/apierror"
	platformauth "github.com/enrolly/enrolly-backend/platform/go/auth"
	"github.com/enrolly/enrolly-backend/platform/go/logging"
	"github.com/enrolly/enrolly-backend/platform/go/scope"
)

const dateLayout = "2006-01-02"

// Handler serves the auth endpoints.
type Handler struct {
	auth   *service.Service
	access *accesssvc.Service
}

// New constructs a Handler.
func New(auth *service.Service, access *accesssvc.Service) *Handler {
	return &Handler{auth: auth, access: access}
}

// Routes builds the auth router. Login and start are public; the selection
// routes sit behind the bearer middleware but not the scope gate, because
// intermediate credentials are exactly the ones they exist for; permissions
// requires a finalized credential and so takes the gate too.
func (h *Handler) Routes(bearer, gate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Post("/login", h.login)
	r.Post("/start", h.start)

	r.Group(func(g chi.Router) {
		g.Use(bearer)
		g.Get("/schools", h.schools)
		g.Get("/schools/{schoolID}/seasons", h.schoolSeasons)
		g.Post("/select-school", h.selectSchool)
		g.Post("/select-season", h.selectSeason)
	})

	r.Group(func(g chi.Router) {
		g.Use(bearer, gate)
		g.Get("/permissions", h.permissions)
	})

	return r
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	SeasonID string `json:"season_id"`
}

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}

type contextResponse struct {
	SchoolID *uuid.UUID `json:"school_id"`
	SeasonID *uuid.UUID `json:"season_id"`
}

type schoolResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

type seasonResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	IsClosed  bool      `json:"is_closed"`
}

type sessionResponse struct {
	Token       string           `json:"token"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Finalized   bool             `json:"finalized"`
	User        userResponse     `json:"user"`
	Context     *contextResponse `json:"context,omitempty"`
	Role        string           `json:"role,omitempty"`
	Permissions []string         `json:"permissions"`
	Schools     []schoolResponse `json:"schools,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid JSON payload", nil))
		return
	}

	seasonID := uuid.Nil
	if payload.SeasonID != "" {
		parsed, err := uuid.Parse(payload.SeasonID)
		if err != nil {
			apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid season_id", map[string][]string{
				"season_id": {"must be a valid UUID"},
			}))
			return
		}
		seasonID = parsed
	}

	session, err := h.auth.Login(r.Context(), payload.Email, payload.Password, seasonID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid JSON payload", nil))
		return
	}

	session, err := h.auth.Start(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) schools(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	schools, err := h.auth.Schools(r.Context(), principal)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchoolResponses(schools))
}

func (h *Handler) schoolSeasons(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	schoolID, err := uuid.Parse(chi.URLParam(r, "schoolID"))
	if err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid school id", map[string][]string{
			"school_id": {"must be a valid UUID"},
		}))
		return
	}

	seasons, err := h.auth.SchoolSeasons(r.Context(), principal, schoolID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	responses := make([]seasonResponse, 0, len(seasons))
	for _, season := range seasons {
		responses = append(responses, seasonResponse{
			ID:        season.ID,
			Name:      season.Name,
			StartDate: season.StartDate.Format(dateLayout),
			EndDate:   season.EndDate.Format(dateLayout),
			IsActive:  season.IsActive,
			IsClosed:  season.IsClosed,
		})
	}
	writeJSON(w, http.StatusOK, responses)
}

type selectPayload struct {
	SchoolID string `json:"school_id"`
	SeasonID string `json:"season_id"`
}

func (h *Handler) selectSchool(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var payload selectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid JSON payload", nil))
		return
	}
	schoolID, err := uuid.Parse(payload.SchoolID)
	if err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid school_id", map[string][]string{
			"school_id": {"must be a valid UUID"},
		}))
		return
	}

	session, err := h.auth.SelectSchool(r.Context(), principal, schoolID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) selectSeason(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var payload selectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid JSON payload", nil))
		return
	}
	seasonID, err := uuid.Parse(payload.SeasonID)
	if err != nil {
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "invalid season_id", map[string][]string{
			"season_id": {"must be a valid UUID"},
		}))
		return
	}

	session, err := h.auth.SelectSeason(r.Context(), principal, seasonID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// permissions answers "what can I do right now": a live resolution against
// the bound season, never the snapshot stored in the credential. The body is
// a bare array of permission names.
func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	access, ok := scope.FromContext(r.Context())
	if !ok {
		apierror.Write(w, nil, apierror.Authentication("CONTEXT_REQUIRED", "credential is not bound to a school and season"))
		return
	}

	seasonID, err := scope.EffectiveSeason(access, r.URL.Query().Get("season_id"))
	if err != nil {
		apierror.Write(w, nil, err)
		return
	}

	permissions, err := h.access.ResolvePermissions(r.Context(), access.UserID, seasonID)
	if err != nil {
		apierror.Write(w, logging.FromRequest(r, nil), err)
		return
	}
	if permissions == nil {
		permissions = []string{}
	}
	writeJSON(w, http.StatusOK, permissions)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (platformauth.Principal, bool) {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		apierror.Write(w, nil, apierror.Authentication("UNAUTHENTICATED", "missing credential"))
		return platformauth.Principal{}, false
	}
	return principal, true
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		apierror.Write(w, nil, apierror.Authentication("INVALID_CREDENTIALS", "invalid email or password"))
	case errors.Is(err, service.ErrSeasonRequired):
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "season_id is required", map[string][]string{
			"season_id": {"season_id is required"},
		}))
	case errors.Is(err, service.ErrUnknownSeason):
		apierror.Write(w, nil, apierror.Validation("VALIDATION_FAILED", "unknown season", map[string][]string{
			"season_id": {"unknown season"},
		}))
	case errors.Is(err, service.ErrUnauthenticated):
		apierror.Write(w, nil, apierror.Authentication("UNAUTHENTICATED", "invalid or expired credential"))
	case errors.Is(err, service.ErrAlreadyFinalized):
		apierror.Write(w, nil, apierror.Conflict("CONTEXT_ALREADY_BOUND", "credential context is already bound"))
	case errors.Is(err, service.ErrSchoolNotFound), errors.Is(err, schoolsvc.ErrNotFound):
		apierror.Write(w, nil, apierror.NotFound("SCHOOL_NOT_FOUND", "school not found"))
	case errors.Is(err, service.ErrSeasonNotFound), errors.Is(err, seasonsvc.ErrNotFound):
		apierror.Write(w, nil, apierror.NotFound("SEASON_NOT_FOUND", "season not found"))
	default:
		apierror.Write(w, logging.FromRequest(r, nil), err)
	}
}

func toSessionResponse(session service.Session) sessionResponse {
	resp := sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Finalized: session.Finalized,
		User: userResponse{
			ID:       session.User.ID,
			Email:    session.User.Email,
			FullName: session.User.FullName,
		},
		Role:        session.Role,
		Permissions: session.Permissions,
		Schools:     toSchoolResponses(session.Schools),
	}
	if session.SchoolID != nil || session.SeasonID != nil {
		resp.Context = &contextResponse{SchoolID: session.SchoolID, SeasonID: session.SeasonID}
	}
	return resp
}

func toSchoolResponses(schools []schoolsvc.School) []schoolResponse {
	if schools == nil {
		return nil
	}
	responses := make([]schoolResponse, 0, len(schools))
	for _, school := range schools {
		responses = append(responses, schoolResponse{ID: school.ID, Name: school.Name, Slug: school.Slug})
	}
	return responses
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
