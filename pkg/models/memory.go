// Package models defines the core data types shared across the runtime.
package models

import "time"

// MemoryScope partitions items between conversation-local and durable recall.
type MemoryScope string

const (
	ScopeShortTerm MemoryScope = "short_term"
	ScopeLongTerm  MemoryScope = "long_term"
)

// MemoryType classifies the content of a MemoryItem for brief generation and
// markdown-import heading classification.
type MemoryType string

const (
	MemoryFact     MemoryType = "fact"
	MemoryPref     MemoryType = "preference"
	MemoryProject  MemoryType = "project"
	MemoryTask     MemoryType = "task"
	MemoryGlossary MemoryType = "glossary"
	MemoryContact  MemoryType = "contact"
	MemorySnippet  MemoryType = "snippet"
	MemoryPolicy   MemoryType = "policy"
	MemorySummary  MemoryType = "summary"
	MemoryNote     MemoryType = "note"
)

// MemoryItem is one durable or session-scoped recollection.
type MemoryItem struct {
	ID             string      `json:"id"`
	Scope          MemoryScope `json:"scope"`
	Type           MemoryType  `json:"type"`
	Title          string      `json:"title,omitempty"`
	Content        string      `json:"content"`
	Summary        string      `json:"summary,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	Source         string      `json:"source"`
	Channel        string      `json:"channel,omitempty"`
	SessionKey     string      `json:"session_key,omitempty"`
	Importance     float64     `json:"importance"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	LastAccessedAt *time.Time  `json:"last_accessed_at,omitempty"`
	AccessCount    int         `json:"access_count"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	DeletedAt      *time.Time  `json:"deleted_at,omitempty"`
	DedupKey       string      `json:"dedup_key,omitempty"`
}

// IsDeleted reports whether the item is tombstoned, either explicitly or via
// an expired TTL. Expired-but-not-yet-swept items are treated as deleted for
// query purposes even before the next maintenance pass tombstones them.
func (m *MemoryItem) IsDeleted(now time.Time) bool {
	if m.DeletedAt != nil {
		return true
	}
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// UpsertParams are the inputs to MemoryStore.Upsert.
type UpsertParams struct {
	Scope      MemoryScope
	Type       MemoryType
	Title      string
	Content    string
	Summary    string
	Tags       []string
	Source     string
	Channel    string
	SessionKey string
	Importance float64
	ExpiresAt  *time.Time
	DedupKey   string
}

// QueryParams are the inputs to MemoryStore.Query.
type QueryParams struct {
	Query          string
	Scope          *MemoryScope
	Type           *MemoryType
	Tags           []string
	SessionKey     *string
	Channel        *string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	TopK           int
	IncludeDeleted bool
}

// MemoryResult pairs a stored item with its query-time relevance score.
type MemoryResult struct {
	Item  MemoryItem
	Score float64
}

// MemoryStats summarizes store contents for operational visibility.
type MemoryStats struct {
	Total     int
	ShortTerm int
	LongTerm  int
	Deleted   int
}
