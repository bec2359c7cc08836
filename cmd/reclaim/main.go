package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/data/db"
	"github.com/eventpulse/eventpulse/internal/jobs/worker"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/queue"
	"github.com/eventpulse/eventpulse/internal/repos"
)

// One-shot reclaim of stuck PROCESSING ingestions, for operators who want to
// sweep immediately instead of waiting for the in-process sweeper.
func main() {
	var ttlSeconds int
	var limit int
	flag.IntVar(&ttlSeconds, "ttl-seconds", 0, "override PROCESSING_TTL_SECONDS")
	flag.IntVar(&limit, "limit", 0, "override RECLAIM_MAX_PER_RUN")
	flag.Parse()

	log, err := logger.New("production")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load()
	if ttlSeconds > 0 {
		cfg.ProcessingTTL = time.Duration(ttlSeconds) * time.Second
	}
	if limit > 0 {
		cfg.ReclaimMaxPerRun = limit
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	ingestionRepo := repos.NewIngestionRepo(thePG, log)
	auditRepo := repos.NewAuditRepo(thePG, log)
	q, err := queue.New(&cfg, log)
	if err != nil {
		log.Error("Could not init queue", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	sweeper := worker.NewSweeper(&cfg, ingestionRepo, auditRepo, q, log)
	n, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		log.Error("Sweep failed", "error", err)
		os.Exit(1)
	}
	log.Info("Sweep complete", "reclaimed", n)
}
