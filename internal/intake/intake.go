package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/contracts"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/queue"
	"github.com/eventpulse/eventpulse/internal/rawstore"
	"github.com/eventpulse/eventpulse/internal/repos"
	"github.com/eventpulse/eventpulse/internal/types"
)

// ErrNotRawObject means a storage event did not reference an object in the
// raw landing zone scheme and should be ignored.
var ErrNotRawObject = errors.New("object is not a raw landing zone artifact")

// StorageEvent is the subset of a bucket finalize notification the intake
// path needs. Generation disambiguates rewrites of the same object name.
type StorageEvent struct {
	Bucket     string
	Name       string
	Generation int64
}

// Service registers new ingestions, from direct uploads or from storage
// events, and hands them to the processing queue.
type Service struct {
	cfg        *config.Settings
	store      rawstore.Store
	ingestions repos.IngestionRepo
	audit      repos.AuditRepo
	q          queue.Queue
	log        *logger.Logger
}

func NewService(cfg *config.Settings, store rawstore.Store, ingestions repos.IngestionRepo, audit repos.AuditRepo, q queue.Queue, baseLog *logger.Logger) *Service {
	return &Service{
		cfg:        cfg,
		store:      store,
		ingestions: ingestions,
		audit:      audit,
		q:          q,
		log:        baseLog.With("service", "IntakeService"),
	}
}

// RegisterUpload copies a local file into the landing zone and records a
// RECEIVED ingestion for it.
func (s *Service) RegisterUpload(ctx context.Context, dataset, source, srcPath string) (*types.Ingestion, error) {
	normalized, err := contracts.NormalizeDataset(dataset)
	if err != nil {
		return nil, err
	}

	obj, err := s.store.Store(ctx, normalized, srcPath)
	if err != nil {
		return nil, fmt.Errorf("store raw file: %w", err)
	}

	ing, err := s.ingestions.Create(ctx, nil, &types.Ingestion{
		Dataset:       normalized,
		Source:        source,
		Filename:      filepath.Base(srcPath),
		FileExt:       obj.Ext,
		SHA256:        obj.SHA256,
		RawURI:        obj.URI,
		RawGeneration: obj.Generation,
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, "ingestion.received", normalized, ing.ID, map[string]interface{}{
		"raw_uri": obj.URI,
		"sha256":  obj.SHA256,
		"source":  source,
	})
	if err := s.q.Enqueue(ctx, ing.ID); err != nil {
		return nil, fmt.Errorf("enqueue ingestion %s: %w", ing.ID, err)
	}
	s.log.Info("ingestion received", "ingestion_id", ing.ID.String(), "dataset", normalized)
	return ing, nil
}

// RegisterStorageEvent turns a bucket finalize notification into an
// ingestion. Delivery is at-least-once: the (raw_uri, generation) pair
// dedupes repeats, and only the call that created the row enqueues it.
// Returns the ingestion and whether this event created it.
func (s *Service) RegisterStorageEvent(ctx context.Context, ev StorageEvent) (*types.Ingestion, bool, error) {
	if ev.Bucket == "" || ev.Name == "" {
		return nil, false, fmt.Errorf("storage event missing bucket or name")
	}
	if ev.Generation <= 0 {
		return nil, false, fmt.Errorf("storage event missing generation")
	}

	ref := rawstore.ParseRawObjectName(s.cfg.RawGCSPrefix, ev.Name)
	if ref == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrNotRawObject, ev.Name)
	}
	normalized, err := contracts.NormalizeDataset(ref.Dataset)
	if err != nil {
		return nil, false, err
	}
	if !extAllowed(s.cfg.AllowedFileExts, ref.Ext) {
		return nil, false, fmt.Errorf("%w: extension %q", ErrNotRawObject, ref.Ext)
	}

	gen := ev.Generation
	ing, created, err := s.ingestions.CreateFromStorageEvent(ctx, nil, &types.Ingestion{
		Dataset:       normalized,
		Source:        fmt.Sprintf("gcs:%s", ev.Bucket),
		Filename:      filepath.Base(ev.Name),
		FileExt:       ref.Ext,
		SHA256:        ref.SHA256,
		RawURI:        fmt.Sprintf("gs://%s/%s", ev.Bucket, ref.ObjectName),
		RawGeneration: &gen,
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.log.Info("duplicate storage event ignored",
			"ingestion_id", ing.ID.String(), "object", ev.Name, "generation", gen)
		return ing, false, nil
	}

	s.auditEvent(ctx, "ingestion.received", normalized, ing.ID, map[string]interface{}{
		"raw_uri":    ing.RawURI,
		"sha256":     ref.SHA256,
		"generation": gen,
	})
	if err := s.q.Enqueue(ctx, ing.ID); err != nil {
		return nil, false, fmt.Errorf("enqueue ingestion %s: %w", ing.ID, err)
	}
	s.log.Info("storage event registered", "ingestion_id", ing.ID.String(), "dataset", normalized)
	return ing, true, nil
}

// Replay records a fresh ingestion of an existing raw artifact and enqueues
// it. The replay row is exempt from storage-event dedup.
func (s *Service) Replay(ctx context.Context, originalID uuid.UUID) (*types.Ingestion, error) {
	replay, err := s.ingestions.CreateReplay(ctx, nil, originalID)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, "ingestion.replay_requested", replay.Dataset, replay.ID, map[string]interface{}{
		"replay_of": originalID.String(),
		"raw_uri":   replay.RawURI,
	})
	if err := s.q.Enqueue(ctx, replay.ID); err != nil {
		return nil, fmt.Errorf("enqueue replay %s: %w", replay.ID, err)
	}
	s.log.Info("replay registered", "ingestion_id", replay.ID.String(), "replay_of", originalID.String())
	return replay, nil
}

// auditEvent is best-effort; intake never fails because auditing did.
func (s *Service) auditEvent(ctx context.Context, eventType, dataset string, ingestionID uuid.UUID, details map[string]interface{}) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	ev := &types.AuditEvent{
		EventType:   eventType,
		Actor:       "intake",
		Dataset:     dataset,
		IngestionID: &ingestionID,
		Details:     datatypes.JSON(payload),
	}
	if err := s.audit.Insert(ctx, nil, ev); err != nil {
		s.log.Warn("audit insert failed", "event_type", eventType, "error", err.Error())
	}
}

func extAllowed(allowed []string, ext string) bool {
	ext = strings.ToLower(ext)
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
