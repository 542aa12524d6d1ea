package models

import (
	"encoding/json"
	"time"
)

// CapabilityKind is the implementation strategy backing a capability.
type CapabilityKind string

const (
	KindProcess       CapabilityKind = "Process"
	KindExternalAPI   CapabilityKind = "ExternalApi"
	KindRhaiScript    CapabilityKind = "RhaiScript"
	KindDynamicLib    CapabilityKind = "DynamicLibrary"
	KindBuiltIn       CapabilityKind = "BuiltIn"
)

// CapabilityStatus is the registry-visible state of a CapabilityDescriptor.
type CapabilityStatus string

const (
	CapabilityAvailable CapabilityStatus = "Available"
	CapabilityActive    CapabilityStatus = "Active"
	CapabilityBlocked   CapabilityStatus = "Blocked"
)

// CapabilityDescriptor is the registry's view of a bindable capability.
// Lifetime is process lifetime, or until explicitly removed.
type CapabilityDescriptor struct {
	ID             string           `json:"id"`
	Kind           CapabilityKind   `json:"kind"`
	Status         CapabilityStatus `json:"status"`
	ArtifactPath   string           `json:"artifact_path,omitempty"`
	InputSchema    json.RawMessage  `json:"input_schema,omitempty"`
	OutputSchema   json.RawMessage  `json:"output_schema,omitempty"`
	PrivilegeLevel int              `json:"privilege_level"`
}

// EvolutionStatus is a state in the capability-evolution state machine.
type EvolutionStatus string

const (
	EvoRequested         EvolutionStatus = "Requested"
	EvoGenerating        EvolutionStatus = "Generating"
	EvoGenerated         EvolutionStatus = "Generated"
	EvoCompiling         EvolutionStatus = "Compiling"
	EvoCompiled          EvolutionStatus = "Compiled"
	EvoCompileFailed     EvolutionStatus = "CompileFailed"
	EvoValidating        EvolutionStatus = "Validating"
	EvoValidated         EvolutionStatus = "Validated"
	EvoValidationFailed  EvolutionStatus = "ValidationFailed"
	EvoLoading           EvolutionStatus = "Loading"
	EvoActive            EvolutionStatus = "Active"
	EvoFailed            EvolutionStatus = "Failed"
	EvoBlocked           EvolutionStatus = "Blocked"
)

// NonTerminal reports whether s is an in-flight status: a request against a
// capability already in one of these statuses is idempotent and returns the
// existing record rather than starting a new attempt.
func (s EvolutionStatus) NonTerminal() bool {
	switch s {
	case EvoRequested, EvoGenerating, EvoGenerated, EvoCompiling, EvoCompiled,
		EvoValidating, EvoValidated, EvoLoading:
		return true
	default:
		return false
	}
}

// FeedbackEntry records one failed attempt so the next generation prompt can
// avoid repeating the same mistake.
type FeedbackEntry struct {
	Attempt      int    `json:"attempt"`
	Stage        string `json:"stage"`
	Feedback     string `json:"feedback"`
	PreviousCode string `json:"previous_code,omitempty"`
}

// ValidationCheck is one pass/fail check performed after compilation.
type ValidationCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ValidationResult is the full set of post-compile checks for one attempt.
type ValidationResult struct {
	Passed bool               `json:"passed"`
	Checks []ValidationCheck  `json:"checks"`
}

// EvolutionRecord is the persisted state of one capability-generation
// attempt. Records persist across restarts; a capability may accumulate many
// historical records but at most one non-terminal record at a time.
type EvolutionRecord struct {
	ID             string           `json:"id"`
	CapabilityID   string           `json:"capability_id"`
	Description    string           `json:"description"`
	Status         EvolutionStatus  `json:"status"`
	Kind           CapabilityKind   `json:"kind"`
	SourceCode     string           `json:"source_code,omitempty"`
	ArtifactPath   string           `json:"artifact_path,omitempty"`
	Validation     *ValidationResult `json:"validation,omitempty"`
	Attempt        int              `json:"attempt"`
	FeedbackHistory []FeedbackEntry `json:"feedback_history,omitempty"`
	InputSchema    json.RawMessage  `json:"input_schema,omitempty"`
	OutputSchema   json.RawMessage  `json:"output_schema,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CapabilityVersion is one snapshot in a capability's version history,
// created on every successful transition into Active.
type CapabilityVersion struct {
	Version      int       `json:"version"`
	ArtifactPath string    `json:"artifact_path"`
	SourceCode   string    `json:"source_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
