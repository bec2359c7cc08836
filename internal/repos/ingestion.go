package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/types"
)

// ErrIngestionNotFound is returned when an id does not exist in the ledger.
var ErrIngestionNotFound = errors.New("ingestion not found")

// ClaimResult is the outcome of an atomic claim attempt.
type ClaimResult string

const (
	// ClaimClaimed: this caller owns the ingestion and must process it.
	ClaimClaimed ClaimResult = "claimed"
	// ClaimSkipped: another worker owns it, or the row is terminal.
	ClaimSkipped ClaimResult = "skipped"
	// ClaimAttemptsExhausted: the row was moved to FAILED_MAX_ATTEMPTS.
	ClaimAttemptsExhausted ClaimResult = "attempts_exhausted"
)

const maxAttemptsError = "max_processing_attempts_exceeded"

type IngestionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, ing *types.Ingestion) (*types.Ingestion, error)
	// CreateFromStorageEvent dedupes at-least-once finalize deliveries on the
	// (raw_uri, raw_generation) pair. Returns the row and whether this call
	// created it.
	CreateFromStorageEvent(ctx context.Context, tx *gorm.DB, ing *types.Ingestion) (*types.Ingestion, bool, error)
	CreateReplay(ctx context.Context, tx *gorm.DB, originalID uuid.UUID) (*types.Ingestion, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Ingestion, error)
	List(ctx context.Context, tx *gorm.DB, dataset, status string, limit int) ([]*types.Ingestion, error)
	// Claim is the single atomic compare-and-swap that grants exclusive
	// processing rights. Exactly one concurrent caller observes ClaimClaimed
	// for a given id per attempt.
	Claim(ctx context.Context, tx *gorm.DB, id uuid.UUID, maxAttempts int) (ClaimResult, error)
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, errMsg *string) error
	// ReclaimStuck forces long-idle PROCESSING rows back to FAILED_EXCEPTION
	// so they become claim-eligible again.
	ReclaimStuck(ctx context.Context, tx *gorm.DB, olderThan time.Duration, limit int) ([]uuid.UUID, error)
}

type ingestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestionRepo(db *gorm.DB, baseLog *logger.Logger) IngestionRepo {
	return &ingestionRepo{
		db:  db,
		log: baseLog.With("repo", "IngestionRepo"),
	}
}

func (r *ingestionRepo) Create(ctx context.Context, tx *gorm.DB, ing *types.Ingestion) (*types.Ingestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ing == nil {
		return nil, fmt.Errorf("nil ingestion")
	}
	if ing.ID == uuid.Nil {
		ing.ID = uuid.New()
	}
	if ing.Status == "" {
		ing.Status = types.IngestionStatusReceived
	}
	if ing.ReceivedAt.IsZero() {
		ing.ReceivedAt = time.Now().UTC()
	}
	if err := transaction.WithContext(ctx).Create(ing).Error; err != nil {
		return nil, err
	}
	return ing, nil
}

func (r *ingestionRepo) CreateFromStorageEvent(ctx context.Context, tx *gorm.DB, ing *types.Ingestion) (*types.Ingestion, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ing == nil {
		return nil, false, fmt.Errorf("nil ingestion")
	}
	if ing.RawGeneration == nil {
		return nil, false, fmt.Errorf("storage event ingestion requires raw_generation")
	}
	if ing.ID == uuid.Nil {
		ing.ID = uuid.New()
	}
	ing.Status = types.IngestionStatusReceived
	ing.ReplayOf = nil
	if ing.ReceivedAt.IsZero() {
		ing.ReceivedAt = time.Now().UTC()
	}

	res := transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "raw_uri"}, {Name: "raw_generation"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "raw_generation IS NOT NULL AND replay_of IS NULL"},
		}},
		DoNothing: true,
	}).Create(ing)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return ing, true, nil
	}

	// Duplicate delivery: hand back the row the first delivery created.
	var existing types.Ingestion
	err := transaction.WithContext(ctx).
		Where("raw_uri = ? AND raw_generation = ? AND replay_of IS NULL", ing.RawURI, *ing.RawGeneration).
		Limit(1).
		Find(&existing).Error
	if err != nil {
		return nil, false, err
	}
	if existing.ID == uuid.Nil {
		return nil, false, fmt.Errorf("insert conflict but no existing ingestion found for %s gen %d", ing.RawURI, *ing.RawGeneration)
	}
	return &existing, false, nil
}

func (r *ingestionRepo) CreateReplay(ctx context.Context, tx *gorm.DB, originalID uuid.UUID) (*types.Ingestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	orig, err := r.GetByID(ctx, transaction, originalID)
	if err != nil {
		return nil, err
	}

	source := "replay:" + originalID.String()
	if orig.Source != "" {
		source = orig.Source + ";" + source
	}

	replay := &types.Ingestion{
		ID:            uuid.New(),
		Dataset:       orig.Dataset,
		Source:        source,
		Filename:      orig.Filename,
		FileExt:       orig.FileExt,
		SHA256:        orig.SHA256,
		RawURI:        orig.RawURI,
		RawGeneration: orig.RawGeneration,
		Status:        types.IngestionStatusReceived,
		ReceivedAt:    time.Now().UTC(),
		ReplayOf:      &orig.ID,
	}
	if err := transaction.WithContext(ctx).Create(replay).Error; err != nil {
		return nil, err
	}
	return replay, nil
}

func (r *ingestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Ingestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ing types.Ingestion
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&ing).Error
	if err != nil {
		return nil, err
	}
	if ing.ID == uuid.Nil {
		return nil, ErrIngestionNotFound
	}
	return &ing, nil
}

func (r *ingestionRepo) List(ctx context.Context, tx *gorm.DB, dataset, status string, limit int) ([]*types.Ingestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := transaction.WithContext(ctx).Model(&types.Ingestion{})
	if dataset != "" {
		q = q.Where("dataset = ?", dataset)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*types.Ingestion
	if err := q.Order("received_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ingestionRepo) Claim(ctx context.Context, tx *gorm.DB, id uuid.UUID, maxAttempts int) (ClaimResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now := time.Now().UTC()
	claimable := []string{types.IngestionStatusReceived, types.IngestionStatusFailedException}

	res := transaction.WithContext(ctx).Model(&types.Ingestion{}).
		Where("id = ? AND status IN ? AND processing_attempts < ?", id, claimable, maxAttempts).
		Updates(map[string]interface{}{
			"status":                  types.IngestionStatusProcessing,
			"error":                   nil,
			"processed_at":            nil,
			"processing_started_at":   now,
			"processing_heartbeat_at": now,
			"processing_attempts":     gorm.Expr("processing_attempts + 1"),
		})
	if res.Error != nil {
		return ClaimSkipped, res.Error
	}
	if res.RowsAffected > 0 {
		return ClaimClaimed, nil
	}

	// Safety valve: a claimable row whose attempts are spent goes terminal.
	res = transaction.WithContext(ctx).Model(&types.Ingestion{}).
		Where("id = ? AND status IN ? AND processing_attempts >= ?", id, claimable, maxAttempts).
		Updates(map[string]interface{}{
			"status":                  types.IngestionStatusFailedMaxTries,
			"error":                   maxAttemptsError,
			"processed_at":            now,
			"processing_started_at":   nil,
			"processing_heartbeat_at": nil,
		})
	if res.Error != nil {
		return ClaimSkipped, res.Error
	}
	if res.RowsAffected > 0 {
		return ClaimAttemptsExhausted, nil
	}
	return ClaimSkipped, nil
}

func (r *ingestionRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Model(&types.Ingestion{}).
		Where("id = ? AND status = ?", id, types.IngestionStatusProcessing).
		Update("processing_heartbeat_at", time.Now().UTC()).Error
}

func (r *ingestionRepo) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, errMsg *string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"status": status,
		"error":  errMsg,
	}
	if types.IsTerminalStatus(status) {
		updates["processed_at"] = time.Now().UTC()
	} else {
		updates["processed_at"] = nil
	}
	return transaction.WithContext(ctx).Model(&types.Ingestion{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ingestionRepo) ReclaimStuck(ctx context.Context, tx *gorm.DB, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if olderThan < 30*time.Second {
		olderThan = 30 * time.Second
	}
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	var reclaimed []uuid.UUID
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var stuck []types.Ingestion
		if err := txx.Model(&types.Ingestion{}).
			Select("id").
			Where("status = ? AND COALESCE(processing_heartbeat_at, processing_started_at, received_at) < ?",
				types.IngestionStatusProcessing, cutoff).
			Order("COALESCE(processing_heartbeat_at, processing_started_at, received_at) ASC").
			Limit(limit).
			Find(&stuck).Error; err != nil {
			return err
		}
		if len(stuck) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(stuck))
		for _, s := range stuck {
			ids = append(ids, s.ID)
		}
		reason := "reclaimed_stuck_processing"
		if err := txx.Model(&types.Ingestion{}).
			Where("id IN ? AND status = ?", ids, types.IngestionStatusProcessing).
			Updates(map[string]interface{}{
				"status":       types.IngestionStatusFailedException,
				"error":        reason,
				"processed_at": now,
			}).Error; err != nil {
			return err
		}
		reclaimed = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reclaimed, nil
}
