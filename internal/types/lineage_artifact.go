package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LineageArtifact links raw pointer, contract identity, drift, quality and
// load outcome for one ingestion. 1:1, overwritten on re-processing.
type LineageArtifact struct {
	IngestionID uuid.UUID      `gorm:"column:ingestion_id;type:uuid;primaryKey" json:"ingestion_id"`
	Artifact    datatypes.JSON `gorm:"column:artifact;type:jsonb;not null" json:"artifact"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (LineageArtifact) TableName() string { return "lineage_artifacts" }
