// Package confirm implements the MessagePipeline's path-safety and
// dangerous-operation confirmation gate: directory-scoped path
// authorization plus a denylist of destructive exec/file_ops patterns.
package confirm

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome of a confirmation request.
type Decision string

const (
	DecisionPending Decision = "pending"
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
)

// Request is one pending confirmation sent down the confirm channel.
type Request struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Decision  Decision  `json:"decision"`
}

// Channel is the external confirm surface a pipeline run is attached to.
// Ask blocks until the user replies; a nil Channel
// means "confirm channel absent", per the spec's fallback rule.
type Channel interface {
	Ask(req Request) (Decision, error)
}

// explicitConfirmPhrases are the only phrases that authorize an action when
// no confirm channel is attached — matched case-insensitively against the
// triggering message text.
var explicitConfirmPhrases = []string{
	"i confirm", "i approve", "yes, proceed", "yes proceed", "go ahead", "confirmed",
}

// ContainsExplicitConfirmation reports whether text carries one of the
// fallback confirmation phrases used when no confirm channel is available.
func ContainsExplicitConfirmation(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range explicitConfirmPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Gate tracks directories authorized for path access within one pipeline
// run. It is constructed fresh per run (per §5, authorized_dirs is
// per-pipeline and never shared across messages).
type Gate struct {
	mu            sync.Mutex
	workspace     string
	authorizedDirs map[string]bool
}

// NewGate returns a Gate scoped to workspace, with no directories
// pre-authorized beyond the workspace itself.
func NewGate(workspace string) *Gate {
	return &Gate{
		workspace:      workspace,
		authorizedDirs: make(map[string]bool),
	}
}

// ResolvePath expands ~ and resolves relative paths against the workspace.
func (g *Gate) ResolvePath(raw string, home string) string {
	p := raw
	if strings.HasPrefix(p, "~") {
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.workspace, p)
	}
	return filepath.Clean(p)
}

// CheckPath reports whether resolved path p is already authorized: inside
// the workspace, or inside a directory previously approved via Authorize.
func (g *Gate) CheckPath(p string) bool {
	if within(g.workspace, p) {
		return true
	}
	dir := filepath.Dir(p)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorizedDirs[dir]
}

// Authorize records dir (the enclosing directory of an approved path) as
// authorized for the remainder of the run, so sibling files pass without
// re-prompting.
func (g *Gate) Authorize(dir string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizedDirs[dir] = true
}

// AuthorizeForPath is a convenience wrapper that authorizes path p's
// enclosing directory.
func (g *Gate) AuthorizeForPath(p string) {
	g.Authorize(filepath.Dir(p))
}

func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// RequestPathConfirmation asks ch (if non-nil) to authorize path p, falling
// back to the explicit-phrase check in messageText when ch is nil. On
// approval, p's enclosing directory is authorized for the rest of the run.
func (g *Gate) RequestPathConfirmation(ch Channel, p string, messageText string) (Decision, error) {
	if ch == nil {
		if ContainsExplicitConfirmation(messageText) {
			g.AuthorizeForPath(p)
			return DecisionAllowed, nil
		}
		return DecisionDenied, nil
	}
	decision, err := ch.Ask(Request{
		ID:        uuid.NewString(),
		Reason:    "path outside workspace: " + p,
		Path:      p,
		CreatedAt: time.Now(),
		Decision:  DecisionPending,
	})
	if err != nil {
		return DecisionDenied, err
	}
	if decision == DecisionAllowed {
		g.AuthorizeForPath(p)
	}
	return decision, nil
}

// dangerousExecPatterns matches process-termination and service-control
// commands that require confirmation before an exec tool call runs them.
var dangerousExecPatterns = regexp.MustCompile(`(?i)\b(kill|pkill|killall|taskkill)\b|\bservice\s+\S+\s+stop\b|\bsystemctl\s+stop\b`)

// dangerousFileOpPatterns matches recursive-delete invocations.
var dangerousFileOpPatterns = regexp.MustCompile(`(?i)\brm\s+-[a-z]*r[a-z]*f?[a-z]*\b|\brm\s+-[a-z]*f[a-z]*r[a-z]*\b|\bRemoveAll\b`)

// protectedConfigFile matches config filenames that file_ops must not modify
// without confirmation.
var protectedConfigFile = regexp.MustCompile(`(?i)config\.(json|toml|yaml|yml)$`)

// IsDangerousExec reports whether an exec command matches a blocked
// process-termination or service-control pattern.
func IsDangerousExec(command string) bool {
	return dangerousExecPatterns.MatchString(command)
}

// IsDangerousFileOp reports whether a file_ops invocation is a recursive
// delete or a modification of a protected config file.
func IsDangerousFileOp(operation, path string) bool {
	if dangerousFileOpPatterns.MatchString(operation) {
		return true
	}
	return protectedConfigFile.MatchString(path)
}

// RequestDangerousOpConfirmation asks ch (if non-nil) to authorize a
// dangerous exec or file operation described by reason, falling back to the
// explicit-phrase check in messageText when ch is nil. Unlike
// RequestPathConfirmation it never touches the path-authorization cache —
// a dangerous op is confirmed once, not remembered for the rest of the run.
func RequestDangerousOpConfirmation(ch Channel, reason string, messageText string) (Decision, error) {
	if ch == nil {
		if ContainsExplicitConfirmation(messageText) {
			return DecisionAllowed, nil
		}
		return DecisionDenied, nil
	}
	decision, err := ch.Ask(Request{
		ID:        uuid.NewString(),
		Reason:    reason,
		CreatedAt: time.Now(),
		Decision:  DecisionPending,
	})
	if err != nil {
		return DecisionDenied, err
	}
	return decision, nil
}
