package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/contracts"
	"github.com/eventpulse/eventpulse/internal/curated"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/quality"
	"github.com/eventpulse/eventpulse/internal/rawstore"
	"github.com/eventpulse/eventpulse/internal/repos"
	"github.com/eventpulse/eventpulse/internal/schema"
	"github.com/eventpulse/eventpulse/internal/tabular"
	"github.com/eventpulse/eventpulse/internal/types"
)

// Outcome classifies one Process call.
type Outcome string

const (
	OutcomeLoaded            Outcome = "loaded"
	OutcomeSkipped           Outcome = "skipped"
	OutcomeAttemptsExhausted Outcome = "attempts_exhausted"
	OutcomeFailedDrift       Outcome = "failed_drift"
	OutcomeFailedQuality     Outcome = "failed_quality"
	OutcomeFailedException   Outcome = "failed_exception"
)

// Result is what one Process call did. Err is set only for
// OutcomeFailedException.
type Result struct {
	Outcome    Outcome
	RowsLoaded int
	Err        error
}

// Processor runs the full pipeline for one claimed ingestion: materialize,
// decode, drift-detect, quality-gate, curated load, and bookkeeping for
// every exit path.
type Processor struct {
	cfg        *config.Settings
	registry   *contracts.Registry
	store      rawstore.Store
	loader     *curated.Loader
	ingestions repos.IngestionRepo
	schemas    repos.DatasetSchemaRepo
	reports    repos.QualityReportRepo
	lineage    repos.LineageRepo
	audit      repos.AuditRepo
	log        *logger.Logger
}

func NewProcessor(
	cfg *config.Settings,
	registry *contracts.Registry,
	store rawstore.Store,
	loader *curated.Loader,
	ingestions repos.IngestionRepo,
	schemas repos.DatasetSchemaRepo,
	reports repos.QualityReportRepo,
	lineage repos.LineageRepo,
	audit repos.AuditRepo,
	baseLog *logger.Logger,
) *Processor {
	return &Processor{
		cfg:        cfg,
		registry:   registry,
		store:      store,
		loader:     loader,
		ingestions: ingestions,
		schemas:    schemas,
		reports:    reports,
		lineage:    lineage,
		audit:      audit,
		log:        baseLog.With("service", "IngestProcessor"),
	}
}

// Process claims and processes one ingestion. Any returned error has already
// been reflected in the ingestion's status; callers only log it.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) (res Result) {
	log := p.log.With("ingestion_id", id.String())

	ing, err := p.ingestions.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repos.ErrIngestionNotFound) {
			log.Warn("ingestion not found, dropping")
			return Result{Outcome: OutcomeSkipped}
		}
		return Result{Outcome: OutcomeFailedException, Err: err}
	}
	log = log.With("dataset", ing.Dataset)

	claim, err := p.ingestions.Claim(ctx, nil, id, p.cfg.MaxProcessingAttempts)
	if err != nil {
		return Result{Outcome: OutcomeFailedException, Err: err}
	}
	switch claim {
	case repos.ClaimSkipped:
		log.Info("claim skipped, already processed or in progress")
		return Result{Outcome: OutcomeSkipped}
	case repos.ClaimAttemptsExhausted:
		log.Warn("processing attempts exhausted")
		p.auditEvent(ctx, "ingestion.failed_max_attempts", ing.Dataset, id, map[string]interface{}{
			"max_attempts": p.cfg.MaxProcessingAttempts,
		})
		return Result{Outcome: OutcomeAttemptsExhausted}
	}

	// A panic inside the pipeline must not leave the row stuck in PROCESSING.
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("panic while processing", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			p.failException(ctx, ing, err)
			res = Result{Outcome: OutcomeFailedException, Err: err}
		}
	}()

	p.auditEvent(ctx, "ingestion.processing_started", ing.Dataset, id, map[string]interface{}{
		"raw_uri": ing.RawURI,
		"sha256":  ing.SHA256,
		"attempt": ing.ProcessingAttempts + 1,
	})

	outcome, err := p.run(ctx, ing, log)
	if err != nil {
		p.failException(ctx, ing, err)
		return Result{Outcome: OutcomeFailedException, Err: err}
	}
	return outcome
}

// run executes the pipeline after a successful claim. A non-nil error means
// a transient/unexpected failure; gate failures return their outcome with a
// nil error because they already finalized the row.
func (p *Processor) run(ctx context.Context, ing *types.Ingestion, log *logger.Logger) (Result, error) {
	p.touch(ctx, ing.ID)

	contractRes, err := p.registry.Load(ing.Dataset)
	if err != nil {
		return Result{}, fmt.Errorf("load contract: %w", err)
	}
	contract := contractRes.Contract
	p.touch(ctx, ing.ID)

	localPath, cleanup, err := p.store.Fetch(ctx, ing.RawURI)
	if err != nil {
		return Result{}, fmt.Errorf("materialize raw object: %w", err)
	}
	defer cleanup()
	p.touch(ctx, ing.ID)

	batch, err := tabular.DecodeFile(localPath, ing.FileExt)
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", ing.FileExt, err)
	}
	p.touch(ctx, ing.ID)

	obs := schema.Infer(batch)
	obsHash := schema.Fingerprint(obs)

	previous, err := p.schemas.Latest(ctx, nil, ing.Dataset)
	if err != nil {
		return Result{}, fmt.Errorf("load previous schema: %w", err)
	}
	var prevObs *schema.Observation
	if previous != nil {
		var decoded schema.Observation
		if err := json.Unmarshal(previous.SchemaJSON, &decoded); err != nil {
			return Result{}, fmt.Errorf("decode previous schema: %w", err)
		}
		prevObs = &decoded
	}
	drift := schema.Diff(prevObs, obs)

	driftPolicy := contract.DriftPolicy
	if driftPolicy == "" {
		driftPolicy = p.cfg.DriftPolicyDefault
	}

	// The observed schema is recorded even when the ingestion later fails:
	// the history reflects what arrived, not what was accepted.
	obsJSON, err := json.Marshal(obs)
	if err != nil {
		return Result{}, err
	}
	if err := p.schemas.UpsertObservation(ctx, nil, ing.Dataset, obsHash, obsJSON); err != nil {
		return Result{}, fmt.Errorf("record schema observation: %w", err)
	}
	p.touch(ctx, ing.ID)

	qualityReport := quality.Evaluate(batch, contract)
	p.touch(ctx, ing.ID)

	report := map[string]interface{}{
		"dataset":              ing.Dataset,
		"source":               ing.Source,
		"raw_uri":              ing.RawURI,
		"sha256":               ing.SHA256,
		"contract":             map[string]interface{}{"path": contractRes.Path, "sha256": contractRes.SHA256},
		"observed_schema_hash": obsHash,
		"drift":                drift,
		"drift_policy":         driftPolicy,
		"quality":              qualityReport,
	}

	if drift.Breaking && driftPolicy == contracts.DriftFail {
		log.Warn("breaking schema drift", "policy", driftPolicy, "removed", fmt.Sprint(drift.Removed))
		p.finalizeFailure(ctx, ing, types.IngestionStatusFailedDrift, "Schema drift policy=fail", report)
		p.auditEvent(ctx, "ingestion.failed_drift", ing.Dataset, ing.ID, map[string]interface{}{
			"policy":               driftPolicy,
			"drift":                drift,
			"observed_schema_hash": obsHash,
		})
		return Result{Outcome: OutcomeFailedDrift}, nil
	}
	if drift.Breaking && driftPolicy == contracts.DriftWarn {
		log.Warn("breaking schema drift allowed by policy", "policy", driftPolicy)
	}

	if !qualityReport.Passed {
		log.Warn("quality gate failed", "errors", len(qualityReport.Errors))
		p.finalizeFailure(ctx, ing, types.IngestionStatusFailedQuality, "Quality gate failed", report)
		p.auditEvent(ctx, "ingestion.failed_quality", ing.Dataset, ing.ID, map[string]interface{}{
			"errors":   truncate(qualityReport.Errors, 20),
			"warnings": truncate(qualityReport.Warnings, 20),
			"metrics":  qualityReport.Metrics,
		})
		return Result{Outcome: OutcomeFailedQuality}, nil
	}

	rowsLoaded, err := p.loader.Load(ctx, nil, contract, batch, ing.ID, ing.SHA256)
	if err != nil {
		return Result{}, fmt.Errorf("curated load: %w", err)
	}
	loadInfo := map[string]interface{}{
		"rows_loaded": rowsLoaded,
		"table":       curated.TableName(ing.Dataset),
	}
	report["load"] = loadInfo
	p.touch(ctx, ing.ID)

	p.persistReport(ctx, ing.ID, true, report)
	if err := p.ingestions.SetStatus(ctx, nil, ing.ID, types.IngestionStatusLoaded, nil); err != nil {
		return Result{}, fmt.Errorf("finalize status: %w", err)
	}
	p.auditEvent(ctx, "ingestion.loaded", ing.Dataset, ing.ID, map[string]interface{}{
		"rows_loaded":          rowsLoaded,
		"table":                loadInfo["table"],
		"observed_schema_hash": obsHash,
	})
	p.persistLineage(ctx, ing, report, loadInfo)

	log.Info("ingestion loaded", "rows_loaded", rowsLoaded)
	return Result{Outcome: OutcomeLoaded, RowsLoaded: rowsLoaded}, nil
}

// finalizeFailure records the report, lineage and terminal status for a gate
// failure. Gate failures are not retryable.
func (p *Processor) finalizeFailure(ctx context.Context, ing *types.Ingestion, status, reason string, report map[string]interface{}) {
	p.persistReport(ctx, ing.ID, false, report)
	if err := p.ingestions.SetStatus(ctx, nil, ing.ID, status, &reason); err != nil {
		p.log.Error("set status failed", "ingestion_id", ing.ID.String(), "status", status, "error", err.Error())
	}
	p.persistLineage(ctx, ing, report, nil)
}

// failException moves the row to the retryable failure state and records
// whatever diagnostics it can.
func (p *Processor) failException(ctx context.Context, ing *types.Ingestion, cause error) {
	msg := cause.Error()
	if err := p.ingestions.SetStatus(ctx, nil, ing.ID, types.IngestionStatusFailedException, &msg); err != nil {
		p.log.Error("set status failed", "ingestion_id", ing.ID.String(), "error", err.Error())
	}
	p.auditEvent(ctx, "ingestion.failed_exception", ing.Dataset, ing.ID, map[string]interface{}{
		"exception": msg,
	})
	report := map[string]interface{}{
		"dataset":   ing.Dataset,
		"raw_uri":   ing.RawURI,
		"sha256":    ing.SHA256,
		"exception": msg,
	}
	p.persistReport(ctx, ing.ID, false, report)
	p.persistLineage(ctx, ing, report, nil)
}

func (p *Processor) persistReport(ctx context.Context, id uuid.UUID, passed bool, report map[string]interface{}) {
	payload, err := json.Marshal(report)
	if err != nil {
		p.log.Error("marshal report failed", "ingestion_id", id.String(), "error", err.Error())
		return
	}
	if err := p.reports.Upsert(ctx, nil, id, passed, payload); err != nil {
		p.log.Error("persist report failed", "ingestion_id", id.String(), "error", err.Error())
	}
}

func (p *Processor) persistLineage(ctx context.Context, ing *types.Ingestion, report map[string]interface{}, loadInfo map[string]interface{}) {
	artifact := map[string]interface{}{
		"ingestion_id":         ing.ID.String(),
		"dataset":              ing.Dataset,
		"raw":                  map[string]interface{}{"uri": ing.RawURI, "sha256": ing.SHA256},
		"contract":             report["contract"],
		"observed_schema_hash": report["observed_schema_hash"],
		"drift":                report["drift"],
		"quality":              report["quality"],
		"load":                 loadInfo,
	}
	if ing.ReplayOf != nil {
		artifact["replay_of"] = ing.ReplayOf.String()
	}
	payload, err := json.Marshal(artifact)
	if err != nil {
		p.log.Error("marshal lineage failed", "ingestion_id", ing.ID.String(), "error", err.Error())
		return
	}
	if err := p.lineage.Upsert(ctx, nil, ing.ID, payload); err != nil {
		p.log.Error("persist lineage failed", "ingestion_id", ing.ID.String(), "error", err.Error())
	}
}

// touch is a best-effort heartbeat; processing continues if it fails.
func (p *Processor) touch(ctx context.Context, id uuid.UUID) {
	if err := p.ingestions.Heartbeat(ctx, nil, id); err != nil {
		p.log.Warn("heartbeat failed", "ingestion_id", id.String(), "error", err.Error())
	}
}

// auditEvent is best-effort; processing never fails because auditing did.
func (p *Processor) auditEvent(ctx context.Context, eventType, dataset string, ingestionID uuid.UUID, details map[string]interface{}) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	ev := &types.AuditEvent{
		EventType:   eventType,
		Actor:       "worker",
		Dataset:     dataset,
		IngestionID: &ingestionID,
		Details:     datatypes.JSON(payload),
	}
	if err := p.audit.Insert(ctx, nil, ev); err != nil {
		p.log.Warn("audit insert failed", "event_type", eventType, "error", err.Error())
	}
}

func truncate(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
