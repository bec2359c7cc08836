package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/types"
)

type AuditRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, ev *types.AuditEvent) error
	ListByIngestion(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID, limit int) ([]*types.AuditEvent, error)
	ListByDataset(ctx context.Context, tx *gorm.DB, dataset string, limit int) ([]*types.AuditEvent, error)
}

type auditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditRepo(db *gorm.DB, baseLog *logger.Logger) AuditRepo {
	return &auditRepo{
		db:  db,
		log: baseLog.With("repo", "AuditRepo"),
	}
}

func (r *auditRepo) Insert(ctx context.Context, tx *gorm.DB, ev *types.AuditEvent) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Actor == "" {
		ev.Actor = "system"
	}
	return transaction.WithContext(ctx).Create(ev).Error
}

func (r *auditRepo) ListByIngestion(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID, limit int) ([]*types.AuditEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.AuditEvent
	err := transaction.WithContext(ctx).
		Where("ingestion_id = ?", ingestionID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditRepo) ListByDataset(ctx context.Context, tx *gorm.DB, dataset string, limit int) ([]*types.AuditEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.AuditEvent
	err := transaction.WithContext(ctx).
		Where("dataset = ?", dataset).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
