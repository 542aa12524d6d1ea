// Package pipeline implements the MessagePipeline: the per-inbound-message
// state machine that classifies intent, assembles a prompt, drives the
// tool-call loop against an LLM provider, and emits the final reply.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/openrt/agentcore/internal/audit"
	"github.com/openrt/agentcore/internal/confirm"
	"github.com/openrt/agentcore/internal/llmprovider"
	"github.com/openrt/agentcore/internal/memstore"
	"github.com/openrt/agentcore/internal/metrics"
	"github.com/openrt/agentcore/internal/session"
	"github.com/openrt/agentcore/internal/taskmanager"
	"github.com/openrt/agentcore/internal/toolregistry"
	"github.com/openrt/agentcore/pkg/models"
)

// State is one node of the per-message state machine. Terminal states do
// not emit further outbounds.
type State string

const (
	StateClassifyingIntent State = "classifying_intent"
	StateBuildingPrompt    State = "building_prompt"
	StateLLMCallPending    State = "llm_call_pending"
	StateToolDispatch      State = "tool_dispatch"
	StateFinalAnswer       State = "final_answer"
	StateFinalizing        State = "finalizing"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// EvolutionReporter is the narrow capability the pipeline uses to hand a
// tool or provider failure to the CapabilityEvolutionEngine. Defined here
// (rather than imported from internal/evolution) so pipeline and evolution
// do not import each other.
type EvolutionReporter interface {
	ReportFailure(ctx context.Context, capabilityID, detail string)
}

// CoreToolNames is the fixed set of tools that always receive a full
// schema via get_tiered_schemas, regardless of which intent selected them.
var CoreToolNames = []string{
	"read_file", "write_file", "edit_file", "list_dir", "exec",
	"web_search", "web_fetch", "message", "memory_query", "memory_upsert",
	"spawn", "list_tasks", "cron",
}

// Config carries the pipeline's tunables, normally sourced from the
// aggregated runtime Config.
type Config struct {
	Workspace         string
	MediaDir          string
	TogglesFile       string
	MaxToolIterations int
	LLMMaxRetries     int
	LLMRetryDelayMs   int
	HistorySummaryMin int // minimum history length to trigger a summary upsert
}

func DefaultConfig(workspace string) Config {
	return Config{
		Workspace:         workspace,
		MediaDir:          workspace + "/media",
		TogglesFile:       workspace + "/toggles.json",
		MaxToolIterations: 8,
		LLMMaxRetries:     3,
		LLMRetryDelayMs:   500,
		HistorySummaryMin: 6,
	}
}

// Dependencies are the collaborators a Pipeline dispatches against.
type Dependencies struct {
	Memory    *memstore.Store
	Tools     *toolregistry.Registry
	Tasks     *taskmanager.Manager
	Sessions  *session.Store
	LLM       llmprovider.Provider
	Confirm   confirm.Channel // may be nil ("confirm channel absent")
	Evolution EvolutionReporter
	Outbound  chan<- models.OutboundMessage
	Log       *slog.Logger

	// Metrics, if set, records per-message and per-tool-call outcomes and
	// durations. A nil Metrics is safe to use — every Record call is a no-op.
	Metrics *metrics.Metrics

	// Audit records tool invocations and completions. Defaults to a
	// disabled audit.Noop logger if left unset.
	Audit *audit.Logger

	// CapabilityBrief, if set, renders a short status block describing
	// currently-evolved capabilities for inclusion in the system prompt.
	// Left nil until the CapabilityEvolutionEngine is wired in.
	CapabilityBrief func() string
}

// Pipeline processes one InboundMessage per Process call.
type Pipeline struct {
	deps Dependencies
	cfg  Config
}

func New(deps Dependencies, cfg Config) *Pipeline {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Noop
	}
	return &Pipeline{deps: deps, cfg: cfg}
}
