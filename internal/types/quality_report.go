package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QualityReport is 1:1 with an ingestion and overwritten on re-processing.
type QualityReport struct {
	IngestionID uuid.UUID      `gorm:"column:ingestion_id;type:uuid;primaryKey" json:"ingestion_id"`
	Passed      bool           `gorm:"column:passed;not null" json:"passed"`
	Report      datatypes.JSON `gorm:"column:report;type:jsonb;not null" json:"report"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (QualityReport) TableName() string { return "quality_reports" }
