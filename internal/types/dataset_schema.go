package types

import (
	"time"

	"gorm.io/datatypes"
)

// DatasetSchema is one observed schema fingerprint for a dataset. History
// accumulates; the row with the newest last_seen_at is the drift baseline.
type DatasetSchema struct {
	Dataset     string         `gorm:"column:dataset;primaryKey" json:"dataset"`
	SchemaHash  string         `gorm:"column:schema_hash;primaryKey" json:"schema_hash"`
	SchemaJSON  datatypes.JSON `gorm:"column:schema_json;type:jsonb;not null" json:"schema_json"`
	FirstSeenAt time.Time      `gorm:"column:first_seen_at;not null" json:"first_seen_at"`
	LastSeenAt  time.Time      `gorm:"column:last_seen_at;not null;index:idx_dataset_schemas_last_seen" json:"last_seen_at"`
}

func (DatasetSchema) TableName() string { return "dataset_schemas" }
