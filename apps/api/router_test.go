package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	accessrepo "github.com/enrolly/enrolly-backend/domains/access/be/repo"
	accesssvc "github.com/enrolly/enrolly-backend/domains/access/be/service"
	authrepo "github.com/enrolly/enrolly-backend/domains/auth/be/repo"
	authsvc "github.com/enrolly/enrolly-backend/domains/auth/be/service"
	schoolsrepo "github.com/enrolly/enrolly-backend/domains/schools/be/repo"
	schoolsvc "github.com/enrolly/enrolly-backend/domains/schools/be/service"
	seasonsrepo "github.com/enrolly/enrolly-backend/domains/seasons/be/repo"
	seasonsvc "github.com/enrolly/enrolly-backend/domains/seasons/be/service"
)

const testPassword = "correct horse battery staple"

type world struct {
	server     *httptest.Server
	seasons    *seasonsvc.Service
	access     *accesssvc.Service
	seasonRepo *seasonsrepo.Memory
	schoolRepo *schoolsrepo.Memory
	user       authsvc.User
	school     schoolsvc.School
	season     seasonsvc.Season
}

// newWorld stands up the full middleware stack over in-memory repositories:
// one school, one active season, one manager.
func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()

	w := &world{
		seasonRepo: seasonsrepo.NewMemory(),
		schoolRepo: schoolsrepo.NewMemory(),
	}
	w.seasons = seasonsvc.New(w.seasonRepo)
	w.access = accesssvc.New(accessrepo.NewMemory())
	schoolService := schoolsvc.New(w.schoolRepo)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	w.user = authsvc.User{
		ID:           uuid.New(),
		Email:        "morgan@example.com",
		FullName:     "Morgan Reed",
		PasswordHash: string(hash),
	}
	users := authrepo.NewMemoryUsers()
	users.Add(w.user)

	w.school = schoolsvc.School{ID: uuid.New(), Name: "Greenfield Academy", Slug: "greenfield", IsActive: true}
	w.schoolRepo.Add(w.school)
	w.schoolRepo.GrantMembership(w.user.ID, w.school.ID)

	w.season, err = w.seasons.Create(ctx, w.school.ID, seasonsvc.CreateInput{
		Name:      "2025/26",
		StartDate: time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	})
	require.NoError(t, err)
	w.seasonRepo.GrantMembership(w.user.ID, w.season.ID)

	require.NoError(t, w.access.DefineRole(ctx, "manager", []string{"manage seasons", "view schools"}))
	require.NoError(t, w.access.AssignRole(ctx, w.user.ID, w.season.ID, "manager"))

	authService := authsvc.New(users, authrepo.NewMemoryCredentials(), w.seasons, schoolService, w.access, authsvc.Config{})

	router, err := NewRouter(RouterConfig{Logger: zaptest.NewLogger(t)}, Services{
		Auth:    authService,
		Access:  w.access,
		Seasons: w.seasons,
		Schools: schoolService,
	})
	require.NoError(t, err)

	w.server = httptest.NewServer(router)
	t.Cleanup(w.server.Close)
	return w
}

func (w *world) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, w.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

// doList is do for endpoints whose body is a JSON array.
func (w *world) doList(t *testing.T, method, path, token string) (int, []any) {
	t.Helper()

	req, err := http.NewRequest(method, w.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded []any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func (w *world) login(t *testing.T) string {
	t.Helper()
	status, body := w.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":     w.user.Email,
		"password":  testPassword,
		"season_id": w.season.ID.String(),
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealthProbes(t *testing.T) {
	t.Parallel()
	w := newWorld(t)

	status, _ := w.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = w.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestAuthenticationRequired(t *testing.T) {
	t.Parallel()
	w := newWorld(t)

	status, body := w.do(t, http.MethodGet, "/api/v1/seasons", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHENTICATED", body["error_code"])

	status, body = w.do(t, http.MethodGet, "/api/v1/seasons", "not-a-real-token", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHENTICATED", body["error_code"])

	status, body = w.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":     w.user.Email,
		"password":  "wrong",
		"season_id": w.season.ID.String(),
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "INVALID_CREDENTIALS", body["error_code"])
}

func TestSeasonLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	token := w.login(t)

	// The listing is scoped to the bound school.
	status, _ := w.do(t, http.MethodGet, "/api/v1/seasons", token, nil)
	require.Equal(t, http.StatusOK, status)

	// Overlapping dates are rejected with a field-attributed 422.
	status, body := w.do(t, http.MethodPost, "/api/v1/seasons", token, map[string]any{
		"name":       "Overlap",
		"start_date": "2026-01-15",
		"end_date":   "2026-12-01",
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "VALIDATION_FAILED", body["error_code"])
	require.Contains(t, body["errors"], "start_date")

	// An adjacent season is fine: the interval is half-open.
	status, body = w.do(t, http.MethodPost, "/api/v1/seasons", token, map[string]any{
		"name":       "2026/27",
		"start_date": "2026-07-01",
		"end_date":   "2027-07-01",
	})
	require.Equal(t, http.StatusCreated, status)
	nextID := body["id"].(string)

	// Activation swaps the single active season atomically.
	status, _ = w.do(t, http.MethodPost, "/api/v1/seasons/"+nextID+"/activate", token, nil)
	require.Equal(t, http.StatusOK, status)
	status, body = w.do(t, http.MethodGet, "/api/v1/seasons/current", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, nextID, body["id"])

	// Close is terminal and write-once.
	status, body = w.do(t, http.MethodPost, "/api/v1/seasons/"+nextID+"/close", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["is_closed"])
	require.Equal(t, w.user.ID.String(), body["closed_by"])

	status, body = w.do(t, http.MethodPost, "/api/v1/seasons/"+nextID+"/close", token, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "SEASON_ALREADY_CLOSED", body["error_code"])

	status, body = w.do(t, http.MethodPut, "/api/v1/seasons/"+nextID, token, map[string]any{"name": "renamed"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "SEASON_CLOSED", body["error_code"])

	status, body = w.do(t, http.MethodDelete, "/api/v1/seasons/"+nextID, token, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "SEASON_HAS_DATA", body["error_code"])

	// No active season is left after closing the active one.
	status, body = w.do(t, http.MethodGet, "/api/v1/seasons/current", token, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NO_ACTIVE_SEASON", body["error_code"])
}

func TestPermissionRevocationIsLive(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()
	token := w.login(t)

	// The credential was minted while the permission was granted, but the
	// gate resolves permissions live, so revocation bites immediately.
	require.NoError(t, w.access.RevokePermission(ctx, "manager", "manage seasons"))

	status, body := w.do(t, http.MethodPost, "/api/v1/seasons", token, map[string]any{
		"name":       "2027/28",
		"start_date": "2027-09-01",
		"end_date":   "2028-07-01",
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "PERMISSION_DENIED", body["error_code"])

	// Reads without a permission requirement still work.
	status, _ = w.do(t, http.MethodGet, "/api/v1/seasons", token, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestSelectionFlowOverHTTP(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	ctx := context.Background()

	// A second school forces the selection flow.
	lakeside := schoolsvc.School{ID: uuid.New(), Name: "Lakeside College", Slug: "lakeside", IsActive: true}
	w.schoolRepo.Add(lakeside)
	w.schoolRepo.GrantMembership(w.user.ID, lakeside.ID)
	lakesideSeason, err := w.seasons.Create(ctx, lakeside.ID, seasonsvc.CreateInput{
		Name:      "Lakeside 2025/26",
		StartDate: time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	})
	require.NoError(t, err)
	w.seasonRepo.GrantMembership(w.user.ID, lakesideSeason.ID)
	require.NoError(t, w.access.AssignRole(ctx, w.user.ID, lakesideSeason.ID, "manager"))

	status, body := w.do(t, http.MethodPost, "/api/v1/auth/start", "", map[string]any{
		"email":    w.user.Email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["finalized"])
	intermediate := body["token"].(string)
	require.Len(t, body["schools"], 2)

	// An intermediate credential cannot reach season-scoped routes.
	status, body = w.do(t, http.MethodGet, "/api/v1/seasons", intermediate, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "CONTEXT_REQUIRED", body["error_code"])

	// But it can drive the selection flow.
	status, _ = w.do(t, http.MethodGet, "/api/v1/auth/schools/"+lakeside.ID.String()+"/seasons", intermediate, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = w.do(t, http.MethodPost, "/api/v1/auth/select-school", intermediate, map[string]any{
		"school_id": lakeside.ID.String(),
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["finalized"])
	finalized := body["token"].(string)

	// The predecessor was revoked when the successor was minted.
	status, body = w.do(t, http.MethodGet, "/api/v1/auth/schools", intermediate, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHENTICATED", body["error_code"])

	// The finalized credential is bound to lakeside and sees only lakeside.
	status, body = w.do(t, http.MethodGet, "/api/v1/seasons/current", finalized, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, lakesideSeason.ID.String(), body["id"])

	status, body = w.do(t, http.MethodGet, "/api/v1/seasons/"+w.season.ID.String(), finalized, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "SEASON_NOT_FOUND", body["error_code"])
}

func TestSchoolsAndPermissionsEndpoints(t *testing.T) {
	t.Parallel()
	w := newWorld(t)
	token := w.login(t)

	// The body is a bare array of permission names.
	status, perms := w.doList(t, http.MethodGet, "/api/v1/auth/permissions", token)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, perms, "manage seasons")
	require.Contains(t, perms, "view schools")

	// An explicit season_id must match the credential's binding.
	status, body := w.do(t, http.MethodGet, "/api/v1/auth/permissions?season_id="+uuid.NewString(), token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "SEASON_SCOPE_MISMATCH", body["error_code"])

	status, perms = w.doList(t, http.MethodGet, "/api/v1/auth/permissions?season_id="+w.season.ID.String(), token)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, perms, "manage seasons")

	// GET /schools returns only the bound tenant.
	status, schools := w.doList(t, http.MethodGet, "/api/v1/schools", token)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, schools, 1)
}
