package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/types"
)

type LineageRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID, artifact []byte) error
	Get(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID) (*types.LineageArtifact, error)
}

type lineageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLineageRepo(db *gorm.DB, baseLog *logger.Logger) LineageRepo {
	return &lineageRepo{
		db:  db,
		log: baseLog.With("repo", "LineageRepo"),
	}
}

func (r *lineageRepo) Upsert(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID, artifact []byte) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	row := &types.LineageArtifact{
		IngestionID: ingestionID,
		Artifact:    artifact,
		CreatedAt:   now,
	}
	return transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ingestion_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"artifact":   artifact,
			"created_at": now,
		}),
	}).Create(row).Error
}

func (r *lineageRepo) Get(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID) (*types.LineageArtifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []types.LineageArtifact
	err := transaction.WithContext(ctx).
		Where("ingestion_id = ?", ingestionID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
