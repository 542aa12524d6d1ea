package memstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GenerateBrief emits up to longTermMax long-term items (ordered by
// importance, access_count, recency) followed by up to shortTermMax
// short-term items (ordered by recency, importance) as a two-section
// markdown block, preferring each item's Summary and falling back to a
// truncated Title/Content.
func (s *Store) GenerateBrief(ctx context.Context, longTermMax, shortTermMax int) (string, error) {
	var brief strings.Builder

	longTerm, err := s.briefRows(ctx, `SELECT title, summary, content, type FROM memory_items
		WHERE scope = 'long_term' AND deleted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY importance DESC, access_count DESC, updated_at DESC
		LIMIT ?`, longTermMax)
	if err != nil {
		return "", fmt.Errorf("memstore: brief long-term: %w", err)
	}
	if len(longTerm) > 0 {
		brief.WriteString("### Long-term Memory\n")
		for _, line := range longTerm {
			brief.WriteString(line)
			brief.WriteByte('\n')
		}
		brief.WriteByte('\n')
	}

	shortTerm, err := s.briefRows(ctx, `SELECT title, summary, content, type FROM memory_items
		WHERE scope = 'short_term' AND deleted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY updated_at DESC, importance DESC
		LIMIT ?`, shortTermMax)
	if err != nil {
		return "", fmt.Errorf("memstore: brief short-term: %w", err)
	}
	if len(shortTerm) > 0 {
		brief.WriteString("### Recent Notes\n")
		for _, line := range shortTerm {
			brief.WriteString(line)
			brief.WriteByte('\n')
		}
	}
	return brief.String(), nil
}

func (s *Store) briefRows(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, rfc3339(time.Now()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var title, summary, content, typ *string
		if err := rows.Scan(&title, &summary, &content, &typ); err != nil {
			return nil, err
		}
		lines = append(lines, "- ["+deref(typ)+"] "+briefDisplay(title, summary, content))
	}
	return lines, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func briefDisplay(title, summary, content *string) string {
	if summary != nil && *summary != "" {
		return *summary
	}
	firstLine := ""
	if content != nil {
		if idx := strings.IndexByte(*content, '\n'); idx >= 0 {
			firstLine = (*content)[:idx]
		} else {
			firstLine = *content
		}
	}
	if title != nil && *title != "" {
		return *title + ": " + truncateRunes(firstLine, 100)
	}
	c := ""
	if content != nil {
		c = *content
	}
	return truncateRunes(c, 120)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
