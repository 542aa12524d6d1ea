// Package memstore implements the durable, full-text-searchable memory
// store: upsert with optional dedup, query (FTS + structured filters +
// scoring), soft-delete, maintenance, and brief generation.
package memstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/openrt/agentcore/pkg/models"
)

// ErrNotFound is returned by callers that need to distinguish "no row" from
// a real storage error; Store.GetByID instead returns (nil, nil) on a clean
// miss, matching the spec's "None only on an explicit no-row signal" rule.
var ErrNotFound = errors.New("memstore: item not found")

// Store is a SQLite-backed MemoryStore. A single *sql.DB capped at one open
// connection stands in for "one mutex around one connection": SQLite
// already serializes writers, and capping the pool avoids SQLITE_BUSY
// without a hand-rolled lock duplicating what the driver provides.
type Store struct {
	db     *sql.DB
	log    *slog.Logger
	dbPath string
}

var ftsSpecialChars = regexp.MustCompile(`[*"():^{}]`)

// Open creates (if needed) and opens the memory database at dbPath,
// initializing schema on first use.
func Open(dbPath string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("memstore: create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memstore: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Warn("memstore: failed to enable WAL mode", "error", err)
	}
	s := &Store{db: db, log: log, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS memory_items (
	id TEXT PRIMARY KEY,
	scope TEXT NOT NULL DEFAULT 'short_term',
	type TEXT NOT NULL DEFAULT 'note',
	title TEXT,
	content TEXT NOT NULL,
	summary TEXT,
	tags TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT 'user',
	channel TEXT,
	session_key TEXT,
	importance REAL NOT NULL DEFAULT 0.5,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	last_accessed_at TEXT,
	access_count INTEGER NOT NULL DEFAULT 0,
	expires_at TEXT,
	deleted_at TEXT,
	dedup_key TEXT
);

CREATE INDEX IF NOT EXISTS idx_memory_scope ON memory_items(scope);
CREATE INDEX IF NOT EXISTS idx_memory_type ON memory_items(type);
CREATE INDEX IF NOT EXISTS idx_memory_deleted ON memory_items(deleted_at);
CREATE INDEX IF NOT EXISTS idx_memory_expires ON memory_items(expires_at);
CREATE INDEX IF NOT EXISTS idx_memory_dedup ON memory_items(dedup_key);
CREATE INDEX IF NOT EXISTS idx_memory_importance ON memory_items(importance);

CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
	title, summary, content, tags,
	content='memory_items',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memory_ai AFTER INSERT ON memory_items BEGIN
	INSERT INTO memory_fts(rowid, title, summary, content, tags)
	VALUES (new.rowid, new.title, new.summary, new.content, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS memory_ad AFTER DELETE ON memory_items BEGIN
	INSERT INTO memory_fts(memory_fts, rowid, title, summary, content, tags)
	VALUES ('delete', old.rowid, old.title, old.summary, old.content, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS memory_au AFTER UPDATE ON memory_items BEGIN
	INSERT INTO memory_fts(memory_fts, rowid, title, summary, content, tags)
	VALUES ('delete', old.rowid, old.title, old.summary, old.content, old.tags);
	INSERT INTO memory_fts(rowid, title, summary, content, tags)
	VALUES (new.rowid, new.title, new.summary, new.content, new.tags);
END;

CREATE TABLE IF NOT EXISTS memory_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("memstore: init schema: %w", err)
	}
	return nil
}

func rfc3339(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// Upsert inserts a new item, or — if DedupKey is set and matches a
// non-deleted item — updates that item in place, preserving its ID and
// CreatedAt while refreshing UpdatedAt.
func (s *Store) Upsert(ctx context.Context, p models.UpsertParams) (*models.MemoryItem, error) {
	now := time.Now()
	tags := strings.Join(p.Tags, ",")

	var existingID string
	if p.DedupKey != "" {
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM memory_items WHERE dedup_key = ? AND deleted_at IS NULL LIMIT 1`, p.DedupKey)
		switch err := row.Scan(&existingID); {
		case err == nil:
			// fall through to update path below
		case errors.Is(err, sql.ErrNoRows):
			existingID = ""
		default:
			return nil, fmt.Errorf("memstore: dedup lookup: %w", err)
		}
	}

	var expiresAt sql.NullString
	if p.ExpiresAt != nil {
		expiresAt = sql.NullString{String: rfc3339(*p.ExpiresAt), Valid: true}
	}

	if existingID != "" {
		_, err := s.db.ExecContext(ctx, `
			UPDATE memory_items SET scope=?, type=?, title=?, content=?, summary=?, tags=?,
				source=?, channel=?, session_key=?, importance=?, updated_at=?, expires_at=?
			WHERE id=?`,
			string(p.Scope), string(p.Type), p.Title, p.Content, p.Summary, tags,
			p.Source, p.Channel, p.SessionKey, p.Importance, rfc3339(now), expiresAt, existingID)
		if err != nil {
			return nil, fmt.Errorf("memstore: update on dedup: %w", err)
		}
		s.log.Debug("memory item updated via dedup_key", "id", existingID, "dedup_key", p.DedupKey)
		return s.GetByID(ctx, existingID)
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_items
			(id, scope, type, title, content, summary, tags, source, channel, session_key,
			 importance, created_at, updated_at, expires_at, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(p.Scope), string(p.Type), p.Title, p.Content, p.Summary, tags,
		p.Source, p.Channel, p.SessionKey, p.Importance, rfc3339(now), rfc3339(now), expiresAt,
		nullIfEmpty(p.DedupKey))
	if err != nil {
		return nil, fmt.Errorf("memstore: insert: %w", err)
	}
	return s.GetByID(ctx, id)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// sanitizeFTSQuery strips FTS5 operator characters, splits on whitespace,
// and quotes each surviving token so the reassembled query is safe to pass
// to MATCH with implicit AND semantics. An empty result maps to the literal
// empty phrase, a no-op text clause that still lets structured filters run.
func sanitizeFTSQuery(q string) string {
	cleaned := ftsSpecialChars.ReplaceAllString(q, " ")
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return `""`
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " ")
}

// Query runs an FTS + structured-filter search. When Query is non-empty,
// results are scored by bm25 combined with importance and a recency bonus;
// otherwise ordering falls back to importance DESC, updated_at DESC. A
// successful query bumps access_count/last_accessed_at for every row
// returned, best-effort.
func (s *Store) Query(ctx context.Context, p models.QueryParams) ([]models.MemoryResult, error) {
	hasFTS := strings.TrimSpace(p.Query) != ""
	topK := p.TopK
	if topK <= 0 {
		topK = 20
	}

	var sb strings.Builder
	var args []any

	if hasFTS {
		sb.WriteString(`SELECT m.id, m.scope, m.type, m.title, m.content, m.summary, m.tags,
			m.source, m.channel, m.session_key, m.importance, m.created_at, m.updated_at,
			m.last_accessed_at, m.access_count, m.expires_at, m.deleted_at, m.dedup_key,
			bm25(memory_fts) AS fts_score
			FROM memory_items m JOIN memory_fts ON memory_fts.rowid = m.rowid
			WHERE memory_fts MATCH ?`)
		args = append(args, sanitizeFTSQuery(p.Query))
	} else {
		sb.WriteString(`SELECT m.id, m.scope, m.type, m.title, m.content, m.summary, m.tags,
			m.source, m.channel, m.session_key, m.importance, m.created_at, m.updated_at,
			m.last_accessed_at, m.access_count, m.expires_at, m.deleted_at, m.dedup_key,
			0.0 AS fts_score
			FROM memory_items m WHERE 1=1`)
	}

	var where []string
	if !p.IncludeDeleted {
		where = append(where, "m.deleted_at IS NULL")
	}
	if p.Scope != nil {
		where = append(where, "m.scope = ?")
		args = append(args, string(*p.Scope))
	}
	if p.Type != nil {
		where = append(where, "m.type = ?")
		args = append(args, string(*p.Type))
	}
	if p.SessionKey != nil {
		where = append(where, "m.session_key = ?")
		args = append(args, *p.SessionKey)
	}
	if p.Channel != nil {
		where = append(where, "m.channel = ?")
		args = append(args, *p.Channel)
	}
	if len(p.Tags) > 0 {
		var tagConds []string
		for _, t := range p.Tags {
			tagConds = append(tagConds, "m.tags LIKE '%' || ? || '%'")
			args = append(args, t)
		}
		where = append(where, "("+strings.Join(tagConds, " OR ")+")")
	}
	if p.CreatedAfter != nil {
		where = append(where, "m.created_at >= ?")
		args = append(args, rfc3339(*p.CreatedAfter))
	}
	if p.CreatedBefore != nil {
		where = append(where, "m.created_at <= ?")
		args = append(args, rfc3339(*p.CreatedBefore))
	}
	if !p.IncludeDeleted {
		where = append(where, "(m.expires_at IS NULL OR m.expires_at > ?)")
		args = append(args, rfc3339(time.Now()))
	}
	for _, w := range where {
		sb.WriteString(" AND ")
		sb.WriteString(w)
	}

	sb.WriteString(" ORDER BY ")
	if hasFTS {
		sb.WriteString(`(-fts_score * 10.0 + m.importance * 5.0 +
			CASE WHEN julianday('now') - julianday(m.updated_at) < 1 THEN 3.0
			     WHEN julianday('now') - julianday(m.updated_at) < 7 THEN 1.5
			     ELSE 0.0 END) DESC`)
	} else {
		sb.WriteString("m.importance DESC, m.updated_at DESC")
	}
	sb.WriteString(" LIMIT " + strconv.Itoa(topK))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("memstore: query: %w", err)
	}
	defer rows.Close()

	var results []models.MemoryResult
	for rows.Next() {
		item, ftsScore, importance, err := scanItem(rows)
		if err != nil {
			s.log.Warn("memstore: error reading memory row", "error", err)
			continue
		}
		score := -ftsScore*10.0 + importance*5.0
		if hasFTS {
			if age := time.Since(item.UpdatedAt); age < 24*time.Hour {
				score += 3.0
			} else if age < 7*24*time.Hour {
				score += 1.5
			}
		}
		results = append(results, models.MemoryResult{
			Item:  item,
			Score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memstore: query rows: %w", err)
	}

	// Access-stat updates are best-effort and must not fail a successful query.
	if len(results) > 0 {
		now := rfc3339(time.Now())
		for _, r := range results {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE memory_items SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
				now, r.Item.ID); err != nil {
				s.log.Debug("memstore: access-stat update failed", "id", r.Item.ID, "error", err)
			}
		}
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(rows rowScanner) (models.MemoryItem, float64, float64, error) {
	var (
		item                                   models.MemoryItem
		scope, typ, tags, createdAt, updatedAt string
		title, content, summary                sql.NullString
		source, channel, sessionKey            sql.NullString
		lastAccessedAt, expiresAt, deletedAt    sql.NullString
		dedupKey                               sql.NullString
		importance, ftsScore                   float64
		accessCount                            int
	)
	if err := rows.Scan(&item.ID, &scope, &typ, &title, &content, &summary, &tags,
		&source, &channel, &sessionKey, &importance, &createdAt, &updatedAt,
		&lastAccessedAt, &accessCount, &expiresAt, &deletedAt, &dedupKey, &ftsScore); err != nil {
		return item, 0, 0, err
	}
	item.Scope = models.MemoryScope(scope)
	item.Type = models.MemoryType(typ)
	item.Title = title.String
	item.Content = content.String
	item.Summary = summary.String
	if tags != "" {
		item.Tags = strings.Split(tags, ",")
	}
	item.Source = source.String
	item.Channel = channel.String
	item.SessionKey = sessionKey.String
	item.Importance = importance
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	item.AccessCount = accessCount
	item.DedupKey = dedupKey.String
	if lastAccessedAt.Valid {
		t := parseTime(lastAccessedAt.String)
		item.LastAccessedAt = &t
	}
	if expiresAt.Valid {
		t := parseTime(expiresAt.String)
		item.ExpiresAt = &t
	}
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		item.DeletedAt = &t
	}
	return item, ftsScore, importance, nil
}

// GetByID returns (nil, nil) on a clean miss, distinguishing "not found"
// from a real storage error per the spec's failure-semantics note.
func (s *Store) GetByID(ctx context.Context, id string) (*models.MemoryItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT m.id, m.scope, m.type, m.title, m.content, m.summary,
		m.tags, m.source, m.channel, m.session_key, m.importance, m.created_at, m.updated_at,
		m.last_accessed_at, m.access_count, m.expires_at, m.deleted_at, m.dedup_key, 0.0
		FROM memory_items m WHERE m.id = ?`, id)
	item, _, _, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memstore: get_by_id: %w", err)
	}
	return &item, nil
}

// SoftDelete tombstones id. Returns false if no matching row existed.
func (s *Store) SoftDelete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memory_items SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		rfc3339(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("memstore: soft_delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Restore un-tombstones id. Returns false if no matching deleted row existed.
func (s *Store) Restore(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memory_items SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return false, fmt.Errorf("memstore: restore: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// BatchSoftDeleteFilter selects which non-deleted items BatchSoftDelete tombstones.
type BatchSoftDeleteFilter struct {
	Scope       *models.MemoryScope
	Type        *models.MemoryType
	Tags        []string
	TimeBefore  *time.Time
}

// BatchSoftDelete tombstones every non-deleted item matching filter, returning the count affected.
func (s *Store) BatchSoftDelete(ctx context.Context, filter BatchSoftDeleteFilter) (int, error) {
	var where []string
	var args []any
	where = append(where, "deleted_at IS NULL")
	if filter.Scope != nil {
		where = append(where, "scope = ?")
		args = append(args, string(*filter.Scope))
	}
	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*filter.Type))
	}
	for _, t := range filter.Tags {
		where = append(where, "tags LIKE '%' || ? || '%'")
		args = append(args, t)
	}
	if filter.TimeBefore != nil {
		where = append(where, "created_at < ?")
		args = append(args, rfc3339(*filter.TimeBefore))
	}
	args = append([]any{rfc3339(time.Now())}, args...)
	q := "UPDATE memory_items SET deleted_at = ? WHERE " + strings.Join(where, " AND ")
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("memstore: batch_soft_delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Maintenance tombstones items whose expires_at has passed, then hard-deletes
// tombstones older than recycleDays. Returns (expired, purged).
func (s *Store) Maintenance(ctx context.Context, recycleDays int) (expired int, purged int, err error) {
	now := rfc3339(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE memory_items SET deleted_at = ? WHERE deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?`,
		now, now)
	if err != nil {
		return 0, 0, fmt.Errorf("memstore: maintenance expire: %w", err)
	}
	n, _ := res.RowsAffected()
	expired = int(n)

	cutoff := rfc3339(time.Now().AddDate(0, 0, -recycleDays))
	res, err = s.db.ExecContext(ctx,
		`DELETE FROM memory_items WHERE deleted_at IS NOT NULL AND deleted_at <= ?`, cutoff)
	if err != nil {
		return expired, 0, fmt.Errorf("memstore: maintenance purge: %w", err)
	}
	n, _ = res.RowsAffected()
	purged = int(n)
	return expired, purged, nil
}

// Stats summarizes the store's contents.
func (s *Store) Stats(ctx context.Context) (models.MemoryStats, error) {
	var stats models.MemoryStats
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		SUM(CASE WHEN scope = 'short_term' AND deleted_at IS NULL THEN 1 ELSE 0 END),
		SUM(CASE WHEN scope = 'long_term' AND deleted_at IS NULL THEN 1 ELSE 0 END),
		SUM(CASE WHEN deleted_at IS NOT NULL THEN 1 ELSE 0 END)
		FROM memory_items`)
	var shortTerm, longTerm, deleted sql.NullInt64
	if err := row.Scan(&stats.Total, &shortTerm, &longTerm, &deleted); err != nil {
		return stats, fmt.Errorf("memstore: stats: %w", err)
	}
	stats.ShortTerm = int(shortTerm.Int64)
	stats.LongTerm = int(longTerm.Int64)
	stats.Deleted = int(deleted.Int64)
	return stats, nil
}
