package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/filesmanager/internal/auth"
	"github.com/maneesh/filesmanager/internal/bootstrap"
	"github.com/maneesh/filesmanager/internal/config"
	"github.com/maneesh/filesmanager/internal/credentials"
	"github.com/maneesh/filesmanager/internal/files"
	"github.com/maneesh/filesmanager/internal/handlers"
	"github.com/maneesh/filesmanager/internal/health"
	"github.com/maneesh/filesmanager/internal/logging"
	"github.com/maneesh/filesmanager/internal/queue"
	"github.com/maneesh/filesmanager/internal/session"
	"github.com/maneesh/filesmanager/internal/tracing"
	"github.com/maneesh/filesmanager/internal/users"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.New("files-manager", "info", "json").WithError(err).Fatal("failed to load config")
	}

	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	log.WithField("port", cfg.ServicePort).Info("starting Files Manager API")

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint, cfg.TracingEnabled, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.WithError(err).Error("error shutting down tracer")
		}
	}()

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	stores, err := bootstrap.Open(startCtx, cfg, log)
	cancelStart()
	if err != nil {
		log.WithError(err).Fatal("failed to open stores")
	}
	defer stores.Close()

	hasher := credentials.NewHasher(cfg.BcryptCost)
	jobs := queue.NewClient(stores.Redis.Client(), cfg.JobMaxAttempts)
	userRepo := stores.TiDB.Users()
	fileRepo := stores.TiDB.Files()

	resolver := auth.NewResolver(
		session.NewStore(stores.Redis, cfg.SessionTTL),
		userRepo,
		hasher,
		stores.Redis,
		log,
	)

	router := handlers.NewRouter(handlers.Deps{
		Auth:        resolver,
		Files:       files.NewService(fileRepo, stores.Blobs, jobs, resolver, log),
		Users:       users.NewService(userRepo, hasher, jobs, log),
		UserCounter: userRepo,
		FileCounter: fileRepo,
		Health: health.NewChecker(health.Checks{
			"redis": stores.Redis.Ping,
			"db":    stores.TiDB.Ping,
			"blobs": stores.Blobs.Ping,
		}, health.DefaultTimeout, log),
		Log:          log,
		MaxBodyBytes: cfg.MaxUploadBytes,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("server listening on port %s", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server exited")
}
