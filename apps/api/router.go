package main

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	accesssvc "github.com/enrolly/enrolly-backend/domains/access/be/service"
	authhandler "github.com/enrolly/enrolly-backend/domains/auth/be/handler"
	authsvc "github.com/enrolly/enrolly-backend/domains/auth/be/service"
	schoolshandler "github.com/enrolly/enrolly-backend/domains/schools/be/handler"
	schoolsvc "github.com/enrolly/enrolly-backend/domains/schools/be/service"
	seasonshandler "github.com/enrolly/enrolly-backend/domains/seasons/be/handler"
	seasonsvc "github.com/enrolly/enrolly-backend/domains/seasons/be/service"
	platformauth "github.com/enrolly/enrolly-backend/platform/go/auth"
	platformlogging "github.com/enrolly/enrolly-backend/platform/go/logging"
	platformmiddleware "github.com/enrolly/enrolly-backend/platform/go/middleware"
	"github.com/enrolly/enrolly-backend/platform/go/scope"
)

// Services groups the domain services the router mounts. Pulled out of main
// so tests can assemble the full middleware stack over in-memory repos.
type Services struct {
	Auth    *authsvc.Service
	Access  *accesssvc.Service
	Seasons *seasonsvc.Service
	Schools *schoolsvc.Service
}

// RouterConfig carries the router-level knobs.
type RouterConfig struct {
	Logger         *zap.Logger
	RequestTimeout time.Duration
	// ContractPath points at the OpenAPI document used for runtime request
	// validation. Empty skips validation (tests).
	ContractPath string
}

// NewRouter assembles the full HTTP surface: health probes at the root and
// the authenticated API under /api/v1.
func NewRouter(cfg RouterConfig, services Services) (http.Handler, error) {
	if services.Auth == nil || services.Access == nil || services.Seasons == nil || services.Schools == nil {
		return nil, errors.New("router: all services are required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	root := chi.NewRouter()
	root.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	if cfg.Logger != nil {
		root.Use(platformlogging.RequestLogger(cfg.Logger))
	}

	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	bearer := platformauth.Bearer(services.Auth.Verify)
	gate := scope.RequireSeasonScope(services.Access)

	api := chi.NewRouter()
	if cfg.ContractPath != "" {
		validator, err := newContractValidator(cfg.ContractPath)
		if err != nil {
			return nil, fmt.Errorf("loading api contract: %w", err)
		}
		api.Use(validator)
	}

	api.Mount("/auth", authhandler.New(services.Auth, services.Access).Routes(bearer, gate))

	api.Group(func(r chi.Router) {
		// RequestTrace sits after bearer so the audit info carries the user.
		r.Use(bearer, platformmiddleware.RequestTrace, gate)
		r.Mount("/seasons", seasonshandler.New(services.Seasons).Routes(scope.RequirePermission("manage seasons")))
		r.Mount("/schools", schoolshandler.New(services.Schools).Routes())
	})

	root.Mount("/api/v1", api)
	return root, nil
}

// newContractValidator loads the OpenAPI document and builds request
// validation middleware, so a request that violates the contract never
// reaches a handler.
func newContractValidator(path string) (func(http.Handler) http.Handler, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	spec, err := loader.LoadFromFile(absPath)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, err
	}

	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaContract,
		},
	}), nil
}
