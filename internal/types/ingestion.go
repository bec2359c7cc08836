package types

import (
	"time"

	"github.com/google/uuid"
)

// Ingestion lifecycle statuses. RECEIVED and FAILED_EXCEPTION are the only
// claimable states; everything else is terminal except PROCESSING.
const (
	IngestionStatusReceived        = "RECEIVED"
	IngestionStatusProcessing      = "PROCESSING"
	IngestionStatusLoaded          = "LOADED"
	IngestionStatusFailedDrift     = "FAILED_DRIFT"
	IngestionStatusFailedQuality   = "FAILED_QUALITY"
	IngestionStatusFailedException = "FAILED_EXCEPTION"
	IngestionStatusFailedMaxTries  = "FAILED_MAX_ATTEMPTS"
)

// IsTerminalStatus reports whether a status ends the lifecycle for this row.
// FAILED_EXCEPTION is terminal for the row's current attempt but stays
// claim-eligible until the attempts cap is reached.
func IsTerminalStatus(status string) bool {
	switch status {
	case IngestionStatusReceived, IngestionStatusProcessing:
		return false
	}
	return true
}

type Ingestion struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Dataset       string    `gorm:"column:dataset;not null;index:idx_ingestions_dataset_received_at,priority:1" json:"dataset"`
	Source        string    `gorm:"column:source" json:"source"`
	Filename      string    `gorm:"column:filename" json:"filename"`
	FileExt       string    `gorm:"column:file_ext" json:"file_ext"`
	SHA256        string    `gorm:"column:sha256;not null" json:"sha256"`
	RawURI        string    `gorm:"column:raw_uri;not null;index" json:"raw_uri"`
	RawGeneration *int64    `gorm:"column:raw_generation" json:"raw_generation,omitempty"`

	Status string  `gorm:"column:status;not null;index" json:"status"`
	Error  *string `gorm:"column:error" json:"error,omitempty"`

	ReceivedAt            time.Time  `gorm:"column:received_at;not null;index:idx_ingestions_dataset_received_at,priority:2" json:"received_at"`
	ProcessingStartedAt   *time.Time `gorm:"column:processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingHeartbeatAt *time.Time `gorm:"column:processing_heartbeat_at" json:"processing_heartbeat_at,omitempty"`
	ProcessedAt           *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts    int        `gorm:"column:processing_attempts;not null;default:0" json:"processing_attempts"`

	ReplayOf *uuid.UUID `gorm:"column:replay_of;type:uuid" json:"replay_of,omitempty"`
}

func (Ingestion) TableName() string { return "ingestions" }
