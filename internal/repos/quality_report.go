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

type QualityReportRepo interface {
	// Upsert overwrites any prior report for the ingestion, so a retried
	// attempt leaves exactly one report behind.
	Upsert(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID, passed bool, report []byte) error
	Get(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID) (*types.QualityReport, error)
}

type qualityReportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQualityReportRepo(db *gorm.DB, baseLog *logger.Logger) QualityReportRepo {
	return &qualityReportRepo{
		db:  db,
		log: baseLog.With("repo", "QualityReportRepo"),
	}
}

func (r *qualityReportRepo) Upsert(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID, passed bool, report []byte) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	row := &types.QualityReport{
		IngestionID: ingestionID,
		Passed:      passed,
		Report:      report,
		CreatedAt:   now,
	}
	return transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ingestion_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"passed":     passed,
			"report":     report,
			"created_at": now,
		}),
	}).Create(row).Error
}

func (r *qualityReportRepo) Get(ctx context.Context, tx *gorm.DB, ingestionID uuid.UUID) (*types.QualityReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []types.QualityReport
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
