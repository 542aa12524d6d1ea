package evolution

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/openrt/agentcore/internal/audit"
	"github.com/openrt/agentcore/internal/llmprovider"
	"github.com/openrt/agentcore/internal/metrics"
	"github.com/openrt/agentcore/internal/toolregistry"
	"github.com/openrt/agentcore/pkg/models"
)

// MaxAutoFailures is the number of consecutive Failed records (with no
// intervening Active) after which a capability is auto-blocked and further
// automatic requests are refused until UnblockCapability runs.
const MaxAutoFailures = 3

// maxRetries bounds the number of generate/compile/validate attempts a
// single RequestCapability call drives before giving up and marking the
// record Failed.
const maxRetries = 3

// Engine is the CapabilityEvolutionEngine: it turns a capability request
// into a generated, compiled, validated, and hot-loaded tool, persists the
// attempt history, and enforces the consecutive-failure block policy.
type Engine struct {
	mu           sync.Mutex
	store        *store
	versions     *versionManager
	tools        *toolregistry.Registry
	llm          llmprovider.Provider // may be nil: RunPendingEvolutions becomes a no-op
	artifactsDir string
	log          *slog.Logger
	metrics      *metrics.Metrics // may be nil; set via SetMetrics
	audit        *audit.Logger    // defaults to audit.Noop
}

// SetMetrics attaches a metrics collector for evolution attempt recording.
// Optional — an Engine with no metrics attached records nothing.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SetAudit attaches an audit logger for evolution attempt recording.
// Optional — an Engine with no audit logger attached logs nothing.
func (e *Engine) SetAudit(a *audit.Logger) {
	e.audit = a
}

// New constructs an Engine rooted at artifactsDir (compiled capability
// artifacts) and recordsDir (persisted EvolutionRecord JSON files).
func New(artifactsDir, recordsDir string, tools *toolregistry.Registry, llm llmprovider.Provider, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("evolution: create artifacts dir: %w", err)
	}
	st, err := newStore(recordsDir)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:        st,
		versions:     newVersionManager(artifactsDir),
		tools:        tools,
		llm:          llm,
		artifactsDir: artifactsDir,
		log:          log,
		audit:        audit.Noop,
	}, nil
}

// FindActiveRecord returns the id of the most recent non-terminal record for
// capabilityID, if one exists. Supplements the original CoreEvolution's
// implicit idempotency check with an explicit, independently callable query
// — see SPEC_FULL.md's decision to expose this as its own method.
func (e *Engine) FindActiveRecord(capabilityID string) (string, bool, error) {
	records, err := e.store.forCapability(capabilityID)
	if err != nil {
		return "", false, err
	}
	for _, r := range records {
		if r.Status.NonTerminal() {
			return r.ID, true, nil
		}
	}
	return "", false, nil
}

// IsBlocked reports whether any record for capabilityID currently carries
// status Blocked.
func (e *Engine) IsBlocked(capabilityID string) (bool, error) {
	records, err := e.store.forCapability(capabilityID)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.Status == models.EvoBlocked {
			return true, nil
		}
	}
	return false, nil
}

// countConsecutiveFailures walks capabilityID's records (newest first) and
// counts Failed records since the last Active; a Blocked record short-
// circuits with a count above the threshold, and any other in-progress
// status is skipped without affecting the streak.
func (e *Engine) countConsecutiveFailures(capabilityID string) (int, error) {
	records, err := e.store.forCapability(capabilityID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range records {
		switch r.Status {
		case models.EvoFailed:
			count++
		case models.EvoActive:
			return count, nil
		case models.EvoBlocked:
			return MaxAutoFailures + 1, nil
		}
	}
	return count, nil
}

// RequestCapability requests generation of a new capability. It is
// idempotent (a non-terminal request for the same id returns the existing
// record), refuses to start if the capability is currently blocked, and
// auto-blocks the capability instead of starting a new attempt once
// MaxAutoFailures consecutive failures have accumulated.
func (e *Engine) RequestCapability(ctx context.Context, capabilityID, description string, kind models.CapabilityKind) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok, err := e.FindActiveRecord(capabilityID); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}

	blocked, err := e.IsBlocked(capabilityID)
	if err != nil {
		return "", err
	}
	if blocked {
		return "", fmt.Errorf("evolution: capability %s is blocked; call UnblockCapability to retry", capabilityID)
	}

	failures, err := e.countConsecutiveFailures(capabilityID)
	if err != nil {
		return "", err
	}
	if failures >= MaxAutoFailures {
		blockedRecord := &models.EvolutionRecord{
			ID:           newRecordID(capabilityID),
			CapabilityID: capabilityID,
			Description:  fmt.Sprintf("BLOCKED: %d consecutive failures", failures),
			Status:       models.EvoBlocked,
			Kind:         kind,
		}
		if err := e.store.save(blockedRecord); err != nil {
			return "", err
		}
		return "", fmt.Errorf("evolution: capability %s auto-blocked after %d consecutive failures", capabilityID, failures)
	}

	record := &models.EvolutionRecord{
		ID:           newRecordID(capabilityID),
		CapabilityID: capabilityID,
		Description:  description,
		Status:       models.EvoRequested,
		Kind:         kind,
	}
	if err := e.store.save(record); err != nil {
		return "", err
	}
	return record.ID, nil
}

// ListRecords returns every persisted evolution record, newest first,
// for CLI and diagnostic inspection.
func (e *Engine) ListRecords() ([]*models.EvolutionRecord, error) {
	return e.store.all()
}

// UnblockCapability flips the capability's latest Blocked record to Failed
// (re-entering the normal failure-counting path) and returns whether a
// Blocked record was found.
func (e *Engine) UnblockCapability(capabilityID string) (bool, error) {
	records, err := e.store.forCapability(capabilityID)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.Status == models.EvoBlocked {
			r.Description = fmt.Sprintf("UNBLOCKED (was: %s)", r.Description)
			r.Status = models.EvoFailed
			if err := e.store.save(r); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// ReportFailure satisfies pipeline.EvolutionReporter: a tool or LLM-provider
// failure during a normal turn is logged but never itself opens an
// evolution record — only an explicit RequestCapability call (typically
// from the scheduler's missing-dependency sweep) does that.
func (e *Engine) ReportFailure(_ context.Context, capabilityID, detail string) {
	e.log.Warn("evolution: capability failure reported", "capability_id", capabilityID, "detail", detail)
}

// RunPendingEvolutions drives every Requested record through RunEvolution.
// It is a no-op returning (0, nil) when no LLM provider is configured, so a
// deployment without capability-generation access can still run the rest of
// the scheduler tick safely.
func (e *Engine) RunPendingEvolutions(ctx context.Context) (int, error) {
	if e.llm == nil {
		return 0, nil
	}
	all, err := e.store.all()
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, r := range all {
		if r.Status != models.EvoRequested {
			continue
		}
		if _, err := e.RunEvolution(ctx, r.ID); err != nil {
			e.log.Warn("evolution: run failed", "record_id", r.ID, "error", err)
		}
		processed++
	}
	return processed, nil
}

// RunEvolution drives one record through generate -> compile -> validate ->
// load, retrying up to maxRetries times with feedback from the prior
// attempt's failure, and returns whether it reached Active.
func (e *Engine) RunEvolution(ctx context.Context, recordID string) (bool, error) {
	record, err := e.store.load(recordID)
	if err != nil {
		return false, err
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		record.Attempt = attempt

		record.Status = models.EvoGenerating
		if err := e.store.save(record); err != nil {
			return false, err
		}
		code, raw, err := generateCode(ctx, e.llm, record)
		if err != nil {
			e.metrics.RecordEvolutionAttempt("generate", "failed")
			e.recordFailure(record, attempt, "generate", err.Error(), "")
			continue
		}
		e.metrics.RecordEvolutionAttempt("generate", "ok")
		if inSchema, outSchema, ok := extractSchemas(raw); ok {
			record.InputSchema = inSchema
			record.OutputSchema = outSchema
		}
		record.SourceCode = code
		record.Status = models.EvoGenerated
		if err := e.store.save(record); err != nil {
			return false, err
		}

		artifactPath, err := writeArtifact(e.artifactsDir, record, code)
		if err != nil {
			e.metrics.RecordEvolutionAttempt("compile", "failed")
			e.recordFailure(record, attempt, "compile", err.Error(), code)
			continue
		}
		record.ArtifactPath = artifactPath

		record.Status = models.EvoCompiling
		if err := e.store.save(record); err != nil {
			return false, err
		}
		compiledPath, compileOutput, err := compileArtifact(ctx, e.artifactsDir, record)
		if err != nil {
			e.metrics.RecordEvolutionAttempt("compile", "failed")
			record.Status = models.EvoCompileFailed
			e.recordFailure(record, attempt, "compile", compileOutput, code)
			continue
		}
		e.metrics.RecordEvolutionAttempt("compile", "ok")
		record.ArtifactPath = compiledPath
		record.Status = models.EvoCompiled
		if err := e.store.save(record); err != nil {
			return false, err
		}

		record.Status = models.EvoValidating
		if err := e.store.save(record); err != nil {
			return false, err
		}
		validation := validateArtifact(ctx, record)
		record.Validation = validation
		if !validation.Passed {
			e.metrics.RecordEvolutionAttempt("validate", "failed")
			record.Status = models.EvoValidationFailed
			e.recordFailure(record, attempt, "validation", validationFeedback(validation), code)
			continue
		}
		e.metrics.RecordEvolutionAttempt("validate", "ok")
		record.Status = models.EvoValidated
		if err := e.store.save(record); err != nil {
			return false, err
		}

		record.Status = models.EvoLoading
		if err := e.store.save(record); err != nil {
			return false, err
		}
		if err := e.loadCapability(record); err != nil {
			e.metrics.RecordEvolutionAttempt("load", "failed")
			e.recordFailure(record, attempt, "load", err.Error(), code)
			continue
		}
		e.metrics.RecordEvolutionAttempt("load", "ok")

		record.Status = models.EvoActive
		if err := e.store.save(record); err != nil {
			return false, err
		}
		if _, err := e.versions.snapshot(record.CapabilityID, record.ArtifactPath, record.SourceCode); err != nil {
			e.log.Warn("evolution: version snapshot failed", "capability_id", record.CapabilityID, "error", err)
		}
		e.audit.LogCapabilityActivated(ctx, record.CapabilityID, record.ID, attempt, "")
		return true, nil
	}

	record.Status = models.EvoFailed
	if err := e.store.save(record); err != nil {
		return false, err
	}
	e.audit.LogCapabilityFailed(ctx, record.CapabilityID, record.ID, maxRetries, "")
	return false, nil
}

func validationFeedback(v *models.ValidationResult) string {
	var failed []string
	for _, c := range v.Checks {
		if !c.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", c.Name, c.Detail))
		}
	}
	return strings.Join(failed, "; ")
}

func (e *Engine) recordFailure(record *models.EvolutionRecord, attempt int, stage, feedback, previousCode string) {
	record.FeedbackHistory = append(record.FeedbackHistory, models.FeedbackEntry{
		Attempt:      attempt,
		Stage:        stage,
		Feedback:     feedback,
		PreviousCode: previousCode,
	})
	if err := e.store.save(record); err != nil {
		e.log.Warn("evolution: save failure feedback", "record_id", record.ID, "error", err)
	}
}

// loadCapability builds the live executor for a validated record and
// registers (or hot-swaps) it into the tool registry under the
// capability's id.
func (e *Engine) loadCapability(record *models.EvolutionRecord) error {
	exec, err := buildExecutor(record)
	if err != nil {
		return err
	}
	if _, exists := e.tools.Get(record.CapabilityID); exists {
		return e.tools.ReplaceExecutor(record.CapabilityID, exec)
	}
	return e.tools.Register(&toolregistry.Tool{
		Name:        record.CapabilityID,
		Description: record.Description,
		Parameters:  record.InputSchema,
		Exec:        exec,
	})
}

// Rollback restores the previous successful version of capabilityID,
// rebuilding its executor from the snapshot and atomically rebinding it via
// ReplaceExecutor so the tool name never resolves to nothing mid-swap.
func (e *Engine) Rollback(capabilityID string) error {
	prev, ok := e.versions.previous(capabilityID)
	if !ok {
		return fmt.Errorf("evolution: no previous version to roll back to for %s", capabilityID)
	}
	kind, err := inferKindFromExtension(prev.ArtifactPath)
	if err != nil {
		return err
	}
	record := &models.EvolutionRecord{
		ID:           newRecordID(capabilityID),
		CapabilityID: capabilityID,
		Kind:         kind,
		ArtifactPath: prev.ArtifactPath,
		SourceCode:   prev.SourceCode,
	}
	exec, err := buildExecutor(record)
	if err != nil {
		return err
	}
	return e.tools.ReplaceExecutor(capabilityID, exec)
}

func inferKindFromExtension(path string) (models.CapabilityKind, error) {
	switch {
	case strings.HasSuffix(path, ".py"):
		return models.KindExternalAPI, nil
	case strings.HasSuffix(path, ".rhai"):
		return models.KindRhaiScript, nil
	case strings.HasSuffix(path, ".so"):
		return models.KindDynamicLib, nil
	case strings.HasSuffix(path, ".sh"):
		return models.KindProcess, nil
	default:
		return "", fmt.Errorf("evolution: cannot infer capability kind from artifact %s", path)
	}
}

func newRecordID(capabilityID string) string {
	safe := sanitizeID(capabilityID)
	return fmt.Sprintf("core_evo_%s_%d", safe, stamp().UnixNano())
}
