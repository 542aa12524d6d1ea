package memstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openrt/agentcore/pkg/models"
)

type markdownSection struct {
	Heading string
	Body    string
}

// parseMarkdownSections splits content on "## "/"### " headings; a leading
// top-level "# " title (before any heading is seen) is skipped.
func parseMarkdownSections(content string) []markdownSection {
	var sections []markdownSection
	var heading string
	var body strings.Builder
	inSection := false

	flush := func() {
		if inSection {
			sections = append(sections, markdownSection{Heading: heading, Body: body.String()})
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### "):
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(line, "#"))
			inSection = true
		case strings.HasPrefix(line, "# ") && !inSection:
			continue
		case inSection:
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	flush()
	return sections
}

// classifySection maps a heading to a MemoryType by keyword.
func classifySection(heading string) models.MemoryType {
	h := strings.ToLower(heading)
	switch {
	case strings.Contains(h, "preference"):
		return models.MemoryPref
	case strings.Contains(h, "project"):
		return models.MemoryProject
	case strings.Contains(h, "user"), strings.Contains(h, "info"):
		return models.MemoryFact
	case strings.Contains(h, "task"), strings.Contains(h, "todo"):
		return models.MemoryTask
	case strings.Contains(h, "policy"), strings.Contains(h, "rule"):
		return models.MemoryPolicy
	case strings.Contains(h, "contact"):
		return models.MemoryContact
	default:
		return models.MemoryNote
	}
}

// ImportLongTermMD imports each non-empty, non-placeholder ("(...)") section
// of a long-term markdown document as a long-term memory item, deduplicated
// by a key derived from the heading so re-imports update in place.
func (s *Store) ImportLongTermMD(ctx context.Context, content string) (int, error) {
	count := 0
	for _, sec := range parseMarkdownSections(content) {
		body := strings.TrimSpace(sec.Body)
		if body == "" || strings.HasPrefix(body, "(") {
			continue
		}
		dedupKey := "import.long_term." + strings.ReplaceAll(strings.ToLower(sec.Heading), " ", "_")
		if _, err := s.Upsert(ctx, models.UpsertParams{
			Scope:      models.ScopeLongTerm,
			Type:       classifySection(sec.Heading),
			Title:      sec.Heading,
			Content:    body,
			Tags:       []string{"imported"},
			Source:     "import",
			Importance: 0.7,
			DedupKey:   dedupKey,
		}); err != nil {
			return count, fmt.Errorf("memstore: import long-term section %q: %w", sec.Heading, err)
		}
		count++
	}
	return count, nil
}

// ImportDailyMD imports a daily note, expiring 30 days from date. If the
// content has no headings it is imported as a single note.
func (s *Store) ImportDailyMD(ctx context.Context, date string, content string) (int, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, nil
	}
	expires := computeDailyExpiry(date, 30)
	sections := parseMarkdownSections(content)
	if len(sections) == 0 {
		if _, err := s.Upsert(ctx, models.UpsertParams{
			Scope:      models.ScopeShortTerm,
			Type:       models.MemoryNote,
			Title:      "Daily notes " + date,
			Content:    content,
			Tags:       []string{"daily", "imported"},
			Source:     "import",
			Importance: 0.4,
			DedupKey:   "import.daily." + date,
			ExpiresAt:  expires,
		}); err != nil {
			return 0, fmt.Errorf("memstore: import daily note %s: %w", date, err)
		}
		return 1, nil
	}

	count := 0
	for _, sec := range sections {
		body := strings.TrimSpace(sec.Body)
		if body == "" {
			continue
		}
		dedupKey := fmt.Sprintf("import.daily.%s.%s", date, strings.ReplaceAll(strings.ToLower(sec.Heading), " ", "_"))
		if _, err := s.Upsert(ctx, models.UpsertParams{
			Scope:      models.ScopeShortTerm,
			Type:       classifySection(sec.Heading),
			Title:      sec.Heading,
			Content:    body,
			Tags:       []string{"daily", "imported"},
			Source:     "import",
			Importance: 0.4,
			DedupKey:   dedupKey,
			ExpiresAt:  expires,
		}); err != nil {
			return count, fmt.Errorf("memstore: import daily section %q: %w", sec.Heading, err)
		}
		count++
	}
	return count, nil
}

func computeDailyExpiry(date string, days int) *time.Time {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		t = time.Now()
	}
	expiry := t.AddDate(0, 0, days)
	return &expiry
}
