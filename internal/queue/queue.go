package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
)

// Queue hands ingestion ids from intake to workers. Delivery is
// at-least-once; the claim step makes duplicate deliveries harmless.
type Queue interface {
	Enqueue(ctx context.Context, ingestionID uuid.UUID) error
	// Dequeue blocks up to timeout. ok is false when the queue was empty.
	Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, bool, error)
	Close() error
}

// New picks the backend from settings: "redis" or "inline" (in-process,
// for development and tests).
func New(cfg *config.Settings, baseLog *logger.Logger) (Queue, error) {
	switch cfg.QueueBackend {
	case "redis":
		return NewRedisQueue(cfg, baseLog)
	case "inline":
		return NewMemoryQueue(1024), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}
