package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/types"
)

type DatasetSchemaRepo interface {
	// UpsertObservation records a schema fingerprint sighting. A new hash
	// inserts a row; a repeat sighting only bumps last_seen_at.
	UpsertObservation(ctx context.Context, tx *gorm.DB, dataset, schemaHash string, schemaJSON []byte) error
	// Latest returns the most recently seen schema for a dataset, or nil when
	// the dataset has never been observed.
	Latest(ctx context.Context, tx *gorm.DB, dataset string) (*types.DatasetSchema, error)
	History(ctx context.Context, tx *gorm.DB, dataset string, limit int) ([]*types.DatasetSchema, error)
}

type datasetSchemaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetSchemaRepo(db *gorm.DB, baseLog *logger.Logger) DatasetSchemaRepo {
	return &datasetSchemaRepo{
		db:  db,
		log: baseLog.With("repo", "DatasetSchemaRepo"),
	}
}

func (r *datasetSchemaRepo) UpsertObservation(ctx context.Context, tx *gorm.DB, dataset, schemaHash string, schemaJSON []byte) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	row := &types.DatasetSchema{
		Dataset:     dataset,
		SchemaHash:  schemaHash,
		SchemaJSON:  schemaJSON,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	return transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dataset"}, {Name: "schema_hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"last_seen_at": now}),
	}).Create(row).Error
}

func (r *datasetSchemaRepo) Latest(ctx context.Context, tx *gorm.DB, dataset string) (*types.DatasetSchema, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []types.DatasetSchema
	err := transaction.WithContext(ctx).
		Where("dataset = ?", dataset).
		Order("last_seen_at DESC").
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

func (r *datasetSchemaRepo) History(ctx context.Context, tx *gorm.DB, dataset string, limit int) ([]*types.DatasetSchema, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var out []*types.DatasetSchema
	err := transaction.WithContext(ctx).
		Where("dataset = ?", dataset).
		Order("last_seen_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
