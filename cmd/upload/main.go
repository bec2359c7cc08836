package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/data/db"
	"github.com/eventpulse/eventpulse/internal/intake"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/queue"
	"github.com/eventpulse/eventpulse/internal/rawstore"
	"github.com/eventpulse/eventpulse/internal/repos"
)

// Registers a local file as a new ingestion: copies it into the raw landing
// zone, records the RECEIVED row and enqueues it for the worker.
func main() {
	var dataset string
	var source string
	flag.StringVar(&dataset, "dataset", "", "dataset name (required)")
	flag.StringVar(&source, "source", "cli", "source label recorded on the ingestion")
	flag.Parse()

	if dataset == "" || flag.NArg() != 1 {
		fmt.Println("usage: upload -dataset <name> [-source <label>] <file>")
		os.Exit(2)
	}
	srcPath := flag.Arg(0)

	log, err := logger.New("production")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load()

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

	ingestionRepo := repos.NewIngestionRepo(thePG, log)
	auditRepo := repos.NewAuditRepo(thePG, log)
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

	svc := intake.NewService(&cfg, store, ingestionRepo, auditRepo, q, log)
	ing, err := svc.RegisterUpload(context.Background(), dataset, source, srcPath)
	if err != nil {
		log.Error("Upload failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(ing.ID.String())
}
