package repos

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eventpulse/eventpulse/internal/data/db"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newIngestion(dataset string) *types.Ingestion {
	return &types.Ingestion{
		Dataset:  dataset,
		Source:   "test",
		Filename: "data.csv",
		FileExt:  ".csv",
		SHA256:   "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		RawURI:   "gs://bucket/raw/" + dataset + "/2026-08-25/e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855.csv",
	}
}

func TestCreateFromStorageEvent_DeduplicatesOnURIAndGeneration(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewIngestionRepo(gdb, testLogger(t))
	ctx := context.Background()

	gen := int64(1234)
	first := newIngestion("sales")
	first.RawGeneration = &gen
	created1, wasNew1, err := repo.CreateFromStorageEvent(ctx, nil, first)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !wasNew1 {
		t.Fatalf("first delivery should create the row")
	}

	dup := newIngestion("sales")
	dup.RawGeneration = &gen
	created2, wasNew2, err := repo.CreateFromStorageEvent(ctx, nil, dup)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if wasNew2 {
		t.Fatalf("duplicate delivery must not create a second row")
	}
	if created2.ID != created1.ID {
		t.Fatalf("duplicate delivery must return the original row: %s vs %s", created2.ID, created1.ID)
	}

	// A different generation of the same object is a distinct ingestion.
	gen2 := int64(5678)
	other := newIngestion("sales")
	other.RawGeneration = &gen2
	_, wasNew3, err := repo.CreateFromStorageEvent(ctx, nil, other)
	if err != nil {
		t.Fatalf("third insert: %v", err)
	}
	if !wasNew3 {
		t.Fatalf("new generation should create a new row")
	}
}

func TestCreateReplay_IsExemptFromStorageEventDedup(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewIngestionRepo(gdb, testLogger(t))
	ctx := context.Background()

	gen := int64(42)
	orig := newIngestion("sales")
	orig.RawGeneration = &gen
	orig, _, err := repo.CreateFromStorageEvent(ctx, nil, orig)
	if err != nil {
		t.Fatalf("create original: %v", err)
	}

	replay, err := repo.CreateReplay(ctx, nil, orig.ID)
	if err != nil {
		t.Fatalf("create replay: %v", err)
	}
	if replay.ID == orig.ID {
		t.Fatalf("replay must be a new row")
	}
	if replay.ReplayOf == nil || *replay.ReplayOf != orig.ID {
		t.Fatalf("replay_of not set: %+v", replay)
	}
	if replay.Status != types.IngestionStatusReceived {
		t.Fatalf("replay must start RECEIVED, got %s", replay.Status)
	}
	if replay.RawURI != orig.RawURI || replay.SHA256 != orig.SHA256 {
		t.Fatalf("replay must point at the same raw artifact")
	}
}

func TestClaim_Lifecycle(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewIngestionRepo(gdb, testLogger(t))
	ctx := context.Background()

	ing, err := repo.Create(ctx, nil, newIngestion("sales"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := repo.Claim(ctx, nil, ing.ID, 5)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res != ClaimClaimed {
		t.Fatalf("expected claimed, got %s", res)
	}

	// Second claim while PROCESSING must skip.
	res, err = repo.Claim(ctx, nil, ing.ID, 5)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res != ClaimSkipped {
		t.Fatalf("expected skipped, got %s", res)
	}

	got, err := repo.GetByID(ctx, nil, ing.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.IngestionStatusProcessing {
		t.Fatalf("expected PROCESSING got %s", got.Status)
	}
	if got.ProcessingAttempts != 1 {
		t.Fatalf("expected 1 attempt got %d", got.ProcessingAttempts)
	}
	if got.ProcessingStartedAt == nil || got.ProcessingHeartbeatAt == nil {
		t.Fatalf("claim must stamp started/heartbeat")
	}

	// Terminal success ends the lifecycle; further claims skip.
	if err := repo.SetStatus(ctx, nil, ing.ID, types.IngestionStatusLoaded, nil); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ = repo.GetByID(ctx, nil, ing.ID)
	if got.ProcessedAt == nil {
		t.Fatalf("terminal status must stamp processed_at")
	}
	res, err = repo.Claim(ctx, nil, ing.ID, 5)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res != ClaimSkipped {
		t.Fatalf("LOADED row must not be claimable, got %s", res)
	}
}

func TestClaim_FailedExceptionIsRetryableUntilAttemptsExhausted(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewIngestionRepo(gdb, testLogger(t))
	ctx := context.Background()

	ing, err := repo.Create(ctx, nil, newIngestion("sales"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	maxAttempts := 2
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := repo.Claim(ctx, nil, ing.ID, maxAttempts)
		if err != nil {
			t.Fatalf("claim %d: %v", attempt, err)
		}
		if res != ClaimClaimed {
			t.Fatalf("attempt %d: expected claimed got %s", attempt, res)
		}
		msg := "boom"
		if err := repo.SetStatus(ctx, nil, ing.ID, types.IngestionStatusFailedException, &msg); err != nil {
			t.Fatalf("set status: %v", err)
		}
	}

	res, err := repo.Claim(ctx, nil, ing.ID, maxAttempts)
	if err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if res != ClaimAttemptsExhausted {
		t.Fatalf("expected attempts_exhausted got %s", res)
	}

	got, _ := repo.GetByID(ctx, nil, ing.ID)
	if got.Status != types.IngestionStatusFailedMaxTries {
		t.Fatalf("expected FAILED_MAX_ATTEMPTS got %s", got.Status)
	}
	if got.Error == nil || *got.Error != "max_processing_attempts_exceeded" {
		t.Fatalf("unexpected error field %v", got.Error)
	}

	// Exhausted rows stay terminal.
	res, _ = repo.Claim(ctx, nil, ing.ID, maxAttempts)
	if res != ClaimSkipped {
		t.Fatalf("expected skipped got %s", res)
	}
}

func TestReclaimStuck_RequeuesOnlyStaleProcessingRows(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewIngestionRepo(gdb, testLogger(t))
	ctx := context.Background()

	stale, err := repo.Create(ctx, nil, newIngestion("sales"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res, _ := repo.Claim(ctx, nil, stale.ID, 5); res != ClaimClaimed {
		t.Fatalf("claim stale")
	}
	// Age the heartbeat past the TTL.
	old := time.Now().UTC().Add(-time.Hour)
	if err := gdb.Model(&types.Ingestion{}).Where("id = ?", stale.ID).
		Updates(map[string]interface{}{
			"processing_started_at":   old,
			"processing_heartbeat_at": old,
		}).Error; err != nil {
		t.Fatalf("age row: %v", err)
	}

	fresh, err := repo.Create(ctx, nil, newIngestion("other"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res, _ := repo.Claim(ctx, nil, fresh.ID, 5); res != ClaimClaimed {
		t.Fatalf("claim fresh")
	}

	ids, err := repo.ReclaimStuck(ctx, nil, 15*time.Minute, 10)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("expected only the stale row reclaimed, got %v", ids)
	}

	got, _ := repo.GetByID(ctx, nil, stale.ID)
	if got.Status != types.IngestionStatusFailedException {
		t.Fatalf("reclaimed row must be FAILED_EXCEPTION, got %s", got.Status)
	}
	// Reclaimed rows are claimable again.
	if res, _ := repo.Claim(ctx, nil, stale.ID, 5); res != ClaimClaimed {
		t.Fatalf("reclaimed row must be claimable")
	}

	freshRow, _ := repo.GetByID(ctx, nil, fresh.ID)
	if freshRow.Status != types.IngestionStatusProcessing {
		t.Fatalf("fresh row must stay PROCESSING, got %s", freshRow.Status)
	}
}

func TestDatasetSchemaRepo_UpsertAndLatest(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewDatasetSchemaRepo(gdb, testLogger(t))
	ctx := context.Background()

	if latest, err := repo.Latest(ctx, nil, "sales"); err != nil || latest != nil {
		t.Fatalf("expected no baseline, got %v err %v", latest, err)
	}

	if err := repo.UpsertObservation(ctx, nil, "sales", "hash_a", []byte(`{"columns":[]}`)); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := repo.UpsertObservation(ctx, nil, "sales", "hash_b", []byte(`{"columns":[]}`)); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	latest, err := repo.Latest(ctx, nil, "sales")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.SchemaHash != "hash_b" {
		t.Fatalf("expected hash_b latest, got %+v", latest)
	}

	// Re-seeing hash_a bumps it back to latest without adding a row.
	time.Sleep(5 * time.Millisecond)
	if err := repo.UpsertObservation(ctx, nil, "sales", "hash_a", []byte(`{"columns":[]}`)); err != nil {
		t.Fatalf("re-upsert a: %v", err)
	}
	latest, _ = repo.Latest(ctx, nil, "sales")
	if latest.SchemaHash != "hash_a" {
		t.Fatalf("expected hash_a latest after re-sighting, got %s", latest.SchemaHash)
	}
	history, err := repo.History(ctx, nil, "sales", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
}

func TestQualityReportRepo_UpsertOverwrites(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewQualityReportRepo(gdb, testLogger(t))
	ctx := context.Background()
	id := uuid.New()

	if err := repo.Upsert(ctx, nil, id, false, []byte(`{"passed":false}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(ctx, nil, id, true, []byte(`{"passed":true}`)); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	rep, err := repo.Get(ctx, nil, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rep == nil || !rep.Passed {
		t.Fatalf("expected overwritten report passed=true, got %+v", rep)
	}
}
