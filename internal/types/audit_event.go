package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEvent is a best-effort operational governance record. Writers must
// never fail an ingestion because an audit insert failed.
type AuditEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventType   string         `gorm:"column:event_type;not null" json:"event_type"`
	Actor       string         `gorm:"column:actor" json:"actor"`
	Dataset     string         `gorm:"column:dataset;index:idx_audit_events_dataset_created_at,priority:1" json:"dataset"`
	IngestionID *uuid.UUID     `gorm:"column:ingestion_id;type:uuid;index" json:"ingestion_id,omitempty"`
	Details     datatypes.JSON `gorm:"column:details;type:jsonb" json:"details"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;index:idx_audit_events_dataset_created_at,priority:2" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_events" }
