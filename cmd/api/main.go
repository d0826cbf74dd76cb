package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/appforge/internal/api"
	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/execx"
	"github.com/timmy/appforge/internal/logger"
	"github.com/timmy/appforge/internal/repository"
	"github.com/timmy/appforge/internal/service"
	"github.com/timmy/appforge/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Log.ServiceName,
		LogFile:     cfg.Log.File,
		LogFileOnly: cfg.Log.FileOnly,
		MaxSizeMB:   100,
		MaxBackups:  7,
		MaxAgeDays:  30,
		Compress:    true,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database. Persistence is best-effort: jobs run fully
	// in-memory when no database is reachable.
	var jobRepo *repository.JobRepository
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Warn("Database unavailable, job persistence disabled: %v", err)
	} else {
		jobRepo = repository.NewJobRepository(db)
	}

	// Initialize generation backends
	registry := service.NewGeneratorRegistry(&cfg.Generation)
	if len(registry.Providers()) == 0 {
		logger.Fatal("No generation backend configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}
	logger.Info("Generation backends configured: %v (default: %s)",
		registry.Providers(), cfg.Generation.Provider)

	// Initialize pipeline services
	runner := execx.NewShellRunner()
	extractService := service.NewExtractService()
	scaffoldService := service.NewScaffoldService(runner, cfg.Workspace.CommandTimeout)
	deployService := service.NewDeployService(runner, scaffoldService, &cfg.Deploy)
	if !deployService.Enabled() {
		logger.Warn("No deployment token configured, jobs will complete without deployment")
	}

	// Initialize artifact storage (optional)
	var artifactStore storage.ObjectStorage
	if cfg.Artifact.Enabled {
		s3Store, err := storage.NewS3Storage(&storage.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			UseSSL:    cfg.Artifact.UseSSL,
			Bucket:    cfg.Artifact.Bucket,
			Region:    cfg.Artifact.Region,
			PublicURL: cfg.Artifact.PublicURL,
		})
		if err != nil {
			logger.Fatal("Failed to initialize artifact storage: %v", err)
		}
		if err := s3Store.EnsureBucket(context.Background()); err != nil {
			logger.Fatal("Failed to ensure artifact bucket: %v", err)
		}
		artifactStore = s3Store
	}
	artifactService := service.NewArtifactService(artifactStore)

	orchestrator := service.NewOrchestrator(
		registry,
		extractService,
		scaffoldService,
		deployService,
		artifactService,
		jobRepo,
		&cfg.Workspace,
	)

	// Jobs interrupted by a previous shutdown cannot be resumed
	if err := orchestrator.RecoverInterrupted(context.Background()); err != nil {
		logger.Warn("Failed to recover interrupted jobs: %v", err)
	}

	// Setup router
	router := api.SetupRouter(orchestrator, &cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting API server on port %d (mode: %s)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
