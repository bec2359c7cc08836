package worker

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/queue"
	"github.com/eventpulse/eventpulse/internal/repos"
	"github.com/eventpulse/eventpulse/internal/types"
)

// Sweeper periodically reclaims ingestions whose worker died mid-flight:
// PROCESSING rows with no heartbeat inside the TTL go back to
// FAILED_EXCEPTION and are re-enqueued for another attempt.
type Sweeper struct {
	cfg        *config.Settings
	ingestions repos.IngestionRepo
	audit      repos.AuditRepo
	q          queue.Queue
	log        *logger.Logger
}

func NewSweeper(cfg *config.Settings, ingestions repos.IngestionRepo, audit repos.AuditRepo, q queue.Queue, baseLog *logger.Logger) *Sweeper {
	return &Sweeper{
		cfg:        cfg,
		ingestions: ingestions,
		audit:      audit,
		q:          q,
		log:        baseLog.With("component", "IngestionSweeper"),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	s.log.Info("Starting stuck-ingestion sweeper",
		"interval", interval.String(), "ttl", s.cfg.ProcessingTTL.String())
	go s.runLoop(ctx, interval)
}

func (s *Sweeper) runLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Warn("Sweep failed", "error", err.Error())
			}
		}
	}
}

// SweepOnce reclaims one batch of stuck rows and re-enqueues them. Returns
// the number reclaimed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.ingestions.ReclaimStuck(ctx, nil, s.cfg.ProcessingTTL, s.cfg.ReclaimMaxPerRun)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		idCopy := id
		details, _ := json.Marshal(map[string]interface{}{
			"ttl_seconds": int(s.cfg.ProcessingTTL.Seconds()),
		})
		ev := &types.AuditEvent{
			EventType:   "ingestion.reclaimed",
			Actor:       "sweeper",
			IngestionID: &idCopy,
			Details:     datatypes.JSON(details),
		}
		if err := s.audit.Insert(ctx, nil, ev); err != nil {
			s.log.Warn("audit insert failed", "ingestion_id", id.String(), "error", err.Error())
		}
		if err := s.q.Enqueue(ctx, id); err != nil {
			s.log.Warn("re-enqueue failed", "ingestion_id", id.String(), "error", err.Error())
		}
	}
	if len(ids) > 0 {
		s.log.Info("Reclaimed stuck ingestions", "count", len(ids))
	}
	return len(ids), nil
}
