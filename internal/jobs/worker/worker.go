package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/ingest"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/queue"
)

const dequeueTimeout = 2 * time.Second

// Worker drains the ingestion queue into the processor. Each loop iteration
// dequeues one id; the processor's claim step keeps concurrent workers from
// double-processing.
type Worker struct {
	cfg       *config.Settings
	q         queue.Queue
	processor *ingest.Processor
	log       *logger.Logger
	group     *errgroup.Group
}

func NewWorker(cfg *config.Settings, q queue.Queue, processor *ingest.Processor, baseLog *logger.Logger) *Worker {
	return &Worker{
		cfg:       cfg,
		q:         q,
		processor: processor,
		log:       baseLog.With("component", "IngestionWorker"),
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := w.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting ingestion worker pool", "concurrency", concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(ctx, workerID)
			return nil
		})
	}
	w.group = g
}

// Wait blocks until every loop has exited after the context is cancelled.
func (w *Worker) Wait() {
	if w.group != nil {
		_ = w.group.Wait()
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		default:
		}

		id, ok, err := w.q.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("Worker loop stopped", "worker_id", workerID)
				return
			}
			w.log.Warn("Dequeue failed", "worker_id", workerID, "error", err.Error())
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		res := w.processor.Process(ctx, id)
		switch res.Outcome {
		case ingest.OutcomeLoaded:
			w.log.Info("Ingestion processed",
				"worker_id", workerID, "ingestion_id", id.String(), "rows_loaded", res.RowsLoaded)
		case ingest.OutcomeSkipped:
			// another worker got there first, nothing to do
		case ingest.OutcomeFailedException:
			w.log.Warn("Ingestion failed",
				"worker_id", workerID, "ingestion_id", id.String(), "error", res.Err.Error())
		default:
			w.log.Warn("Ingestion rejected",
				"worker_id", workerID, "ingestion_id", id.String(), "outcome", string(res.Outcome))
		}
	}
}
