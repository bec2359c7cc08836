package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/eventpulse/eventpulse/internal/types"
)

// Migrate applies the gorm auto-migration plus the raw-SQL indexes that gorm
// tags cannot express. Safe to run on every startup.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&types.Ingestion{},
		&types.DatasetSchema{},
		&types.QualityReport{},
		&types.LineageArtifact{},
		&types.AuditEvent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Dedup key for at-least-once storage finalize events. Partial: manual
	// uploads carry no generation and replays must never collide with the
	// original delivery.
	if err := gdb.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_ingestions_raw_uri_generation_unique
		ON ingestions(raw_uri, raw_generation)
		WHERE raw_generation IS NOT NULL AND replay_of IS NULL
	`).Error; err != nil {
		return fmt.Errorf("create dedup index: %w", err)
	}

	if err := gdb.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ingestions_status_processing_started_at
		ON ingestions(status, processing_started_at)
	`).Error; err != nil {
		return fmt.Errorf("create processing index: %w", err)
	}

	return nil
}
