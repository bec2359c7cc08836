package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/contracts"
	"github.com/eventpulse/eventpulse/internal/curated"
	"github.com/eventpulse/eventpulse/internal/data/db"
	"github.com/eventpulse/eventpulse/internal/ingest"
	"github.com/eventpulse/eventpulse/internal/jobs/worker"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/queue"
	"github.com/eventpulse/eventpulse/internal/rawstore"
	"github.com/eventpulse/eventpulse/internal/repos"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading configuration...")
	cfg := config.Load()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	ingestionRepo := repos.NewIngestionRepo(thePG, log)
	schemaRepo := repos.NewDatasetSchemaRepo(thePG, log)
	reportRepo := repos.NewQualityReportRepo(thePG, log)
	lineageRepo := repos.NewLineageRepo(thePG, log)
	auditRepo := repos.NewAuditRepo(thePG, log)

	// Services
	log.Info("Setting up services...", "storage_backend", cfg.StorageBackend, "queue_backend", cfg.QueueBackend)
	registry := contracts.NewRegistry(cfg.ContractsDir, log)
	store, err := rawstore.New(&cfg, log)
	if err != nil {
		log.Error("Could not init raw store", "error", err)
		os.Exit(1)
	}
	q, err := queue.New(&cfg, log)
	if err != nil {
		log.Error("Could not init queue", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	loader := curated.NewLoader(thePG, log)
	processor := ingest.NewProcessor(&cfg, registry, store, loader,
		ingestionRepo, schemaRepo, reportRepo, lineageRepo, auditRepo, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Worker + sweeper
	w := worker.NewWorker(&cfg, q, processor, log)
	w.Start(ctx)
	sweeper := worker.NewSweeper(&cfg, ingestionRepo, auditRepo, q, log)
	sweeper.Start(ctx)

	log.Info("eventpulse worker running", "app_env", cfg.AppEnv)
	<-ctx.Done()
	log.Info("Shutting down")
	w.Wait()
}
