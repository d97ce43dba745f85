package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	accessrepo "github.com/enrolly/enrolly-backend/domains/access/be/repo"
	accesssvc "github.com/enrolly/enrolly-backend/domains/access/be/service"
	authrepo "github.com/enrolly/enrolly-backend/domains/auth/be/repo"
	authsvc "github.com/enrolly/enrolly-backend/domains/auth/be/service"
	schoolsrepo "github.com/enrolly/enrolly-backend/domains/schools/be/repo"
	schoolsvc "github.com/enrolly/enrolly-backend/domains/schools/be/service"
	seasonsrepo "github.com/enrolly/enrolly-backend/domains/seasons/be/repo"
	seasonsvc "github.com/enrolly/enrolly-backend/domains/seasons/be/service"
	platformlogging "github.com/enrolly/enrolly-backend/platform/go/logging"
	"github.com/enrolly/enrolly-backend/platform/go/persistence"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	SelectionTTL    time.Duration `env:"SELECTION_TOKEN_TTL" envDefault:"10m"`
	ContractPath    string        `env:"CONTRACT_PATH" envDefault:"contracts/api.yaml"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	seasonStore, err := persistence.NewSeasonStore(ctx, pool)
	if err != nil {
		logger.Fatal("init season store", zap.Error(err))
	}
	schoolStore, err := persistence.NewSchoolStore(ctx, pool)
	if err != nil {
		logger.Fatal("init school store", zap.Error(err))
	}
	userStore, err := persistence.NewUserStore(ctx, pool)
	if err != nil {
		logger.Fatal("init user store", zap.Error(err))
	}
	accessStore, err := persistence.NewAccessStore(ctx, pool)
	if err != nil {
		logger.Fatal("init access store", zap.Error(err))
	}
	credentialStore, err := persistence.NewCredentialStore(ctx, pool)
	if err != nil {
		logger.Fatal("init credential store", zap.Error(err))
	}

	seasonRepo, err := seasonsrepo.NewPostgres(seasonStore)
	if err != nil {
		logger.Fatal("init season repo", zap.Error(err))
	}
	schoolRepo, err := schoolsrepo.NewPostgres(schoolStore)
	if err != nil {
		logger.Fatal("init school repo", zap.Error(err))
	}
	accessRepo, err := accessrepo.NewPostgres(accessStore)
	if err != nil {
		logger.Fatal("init access repo", zap.Error(err))
	}
	userRepo, err := authrepo.NewPostgresUsers(userStore)
	if err != nil {
		logger.Fatal("init user repo", zap.Error(err))
	}
	credentialRepo, err := authrepo.NewPostgresCredentials(credentialStore)
	if err != nil {
		logger.Fatal("init credential repo", zap.Error(err))
	}

	seasonService := seasonsvc.New(seasonRepo)
	schoolService := schoolsvc.New(schoolRepo)
	accessService := accesssvc.New(accessRepo)
	authService := authsvc.New(userRepo, credentialRepo, seasonService, schoolService, accessService, authsvc.Config{
		TokenTTL:     cfg.TokenTTL,
		SelectionTTL: cfg.SelectionTTL,
	})

	router, err := NewRouter(RouterConfig{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		ContractPath:   cfg.ContractPath,
	}, Services{
		Auth:    authService,
		Access:  accessService,
		Seasons: seasonService,
		Schools: schoolService,
	})
	if err != nil {
		logger.Fatal("build router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
