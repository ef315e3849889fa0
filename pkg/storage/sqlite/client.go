// Package sqlite provides the SQLite implementation of the storage.Store
// interface.
//
// SQLite is a lightweight, file-based database suitable for local development
// and small-scale deployments. Structured fields (interaction data, tags,
// links, topics) are stored as JSON strings in TEXT columns; tag and topic
// matching is evaluated in Go after the scan.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/learnware/studyctx/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient creates a new SQLite store client.
//
// The database file (and its parent directory) is created if it does not
// exist, and the schema is initialized on connect.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{db: db}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database schema.
func (c *Client) initTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			conversation_id TEXT,
			memory_type TEXT NOT NULL,
			interaction TEXT,
			quality_score REAL DEFAULT 0,
			relevance_score REAL DEFAULT 0,
			priority TEXT,
			retention TEXT,
			expires_at DATETIME,
			tags TEXT,
			links TEXT,
			meta TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at)`,
		`CREATE TABLE IF NOT EXISTS knowledge_entries (
			id INTEGER PRIMARY KEY,
			source_id INTEGER NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			content_type TEXT,
			subject TEXT,
			topics TEXT,
			difficulty INTEGER DEFAULT 1,
			confidence REAL DEFAULT 0,
			educational_value REAL DEFAULT 0,
			verification_status TEXT,
			related_concepts TEXT,
			prerequisites TEXT,
			learning_objectives TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_subject ON knowledge_entries(subject)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT,
			url TEXT,
			reliability REAL DEFAULT 0,
			verification_status TEXT,
			citation_count INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fact_relations (
			id INTEGER PRIMARY KEY,
			entry_id INTEGER NOT NULL,
			related_id INTEGER NOT NULL,
			relation_type TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_entry ON fact_relations(entry_id)`,
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// InsertMemory inserts a memory row.
func (c *Client) InsertMemory(ctx context.Context, row *storage.MemoryRow) error {
	tagsJSON, err := marshalStrings(row.Tags)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}
	linksJSON, err := marshalLinks(row.Links)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, user_id, conversation_id, memory_type, interaction, quality_score,
		 relevance_score, priority, retention, expires_at, tags, links, meta,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.ConversationID, row.MemoryType,
		string(row.Interaction), row.QualityScore, row.RelevanceScore,
		row.Priority, row.Retention, row.ExpiresAt, tagsJSON, linksJSON,
		string(row.Meta), row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}
	return nil
}

// GetMemory retrieves a memory row by ID.
func (c *Client) GetMemory(ctx context.Context, id int64) (*storage.MemoryRow, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, conversation_id, memory_type, interaction,
		       quality_score, relevance_score, priority, retention, expires_at,
		       tags, links, meta, created_at, updated_at
		FROM memories WHERE id = ?`, id)

	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetMemory: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetMemory: %w", err)
	}
	return mem, nil
}

// UpdateMemory replaces a memory row by ID.
func (c *Client) UpdateMemory(ctx context.Context, row *storage.MemoryRow) error {
	tagsJSON, err := marshalStrings(row.Tags)
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w", err)
	}
	linksJSON, err := marshalLinks(row.Links)
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE memories SET
			user_id = ?, conversation_id = ?, memory_type = ?, interaction = ?,
			quality_score = ?, relevance_score = ?, priority = ?, retention = ?,
			expires_at = ?, tags = ?, links = ?, meta = ?, updated_at = ?
		WHERE id = ?`,
		row.UserID, row.ConversationID, row.MemoryType, string(row.Interaction),
		row.QualityScore, row.RelevanceScore, row.Priority, row.Retention,
		row.ExpiresAt, tagsJSON, linksJSON, string(row.Meta), row.UpdatedAt,
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateMemory: %w", storage.ErrNotFound)
	}
	return nil
}

// DeleteMemory deletes a memory row by ID.
func (c *Client) DeleteMemory(ctx context.Context, id int64) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("DeleteMemory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteMemory: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteMemory: %w", storage.ErrNotFound)
	}
	return nil
}

// DeleteMemories deletes the given memory rows in bulk.
func (c *Client) DeleteMemories(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM memories WHERE id IN (%s)", strings.Join(placeholders, ", "))
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("DeleteMemories: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteMemories: %w", err)
	}
	return affected, nil
}

// ListMemories returns memory rows matching the filter.
//
// Tag matching is evaluated in Go after the scan; when tags are requested,
// limit and offset are applied after filtering so partial matches do not
// under-fill the page.
func (c *Client) ListMemories(ctx context.Context, filter *storage.MemoryFilter) ([]*storage.MemoryRow, error) {
	if filter == nil {
		filter = &storage.MemoryFilter{}
	}

	whereClause, args := buildMemoryWhere(filter)

	query := fmt.Sprintf(`
		SELECT id, user_id, conversation_id, memory_type, interaction,
		       quality_score, relevance_score, priority, retention, expires_at,
		       tags, links, meta, created_at, updated_at
		FROM memories
		%s
		ORDER BY created_at DESC`, whereClause)

	inSQLPaging := len(filter.Tags) == 0
	if inSQLPaging && filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListMemories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.MemoryRow
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("ListMemories: %w", err)
		}
		if !storage.MatchesTags(mem.Tags, filter.Tags) {
			continue
		}
		memories = append(memories, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListMemories: %w", err)
	}

	if !inSQLPaging {
		memories = applyPaging(memories, filter.Limit, filter.Offset)
	}

	return memories, nil
}

// DeleteExpiredMemories deletes all memory rows whose expiry has passed.
func (c *Client) DeleteExpiredMemories(ctx context.Context, now time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("DeleteExpiredMemories: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteExpiredMemories: %w", err)
	}
	return affected, nil
}

// InsertEntry inserts a knowledge entry row.
func (c *Client) InsertEntry(ctx context.Context, row *storage.KnowledgeRow) error {
	topicsJSON, err := marshalStrings(row.Topics)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}
	conceptsJSON, err := marshalStrings(row.RelatedConcepts)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}
	prereqJSON, err := marshalStrings(row.Prerequisites)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}
	objectivesJSON, err := marshalStrings(row.LearningObjectives)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries
		(id, source_id, title, content, content_type, subject, topics,
		 difficulty, confidence, educational_value, verification_status,
		 related_concepts, prerequisites, learning_objectives, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.SourceID, row.Title, row.Content, row.ContentType,
		row.Subject, topicsJSON, row.Difficulty, row.Confidence,
		row.EducationalValue, row.VerificationStatus, conceptsJSON,
		prereqJSON, objectivesJSON, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}
	return nil
}

// GetEntry retrieves a knowledge entry row by ID.
func (c *Client) GetEntry(ctx context.Context, id int64) (*storage.KnowledgeRow, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, source_id, title, content, content_type, subject, topics,
		       difficulty, confidence, educational_value, verification_status,
		       related_concepts, prerequisites, learning_objectives, created_at, updated_at
		FROM knowledge_entries WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetEntry: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetEntry: %w", err)
	}
	return entry, nil
}

// UpdateEntry replaces a knowledge entry row by ID.
func (c *Client) UpdateEntry(ctx context.Context, row *storage.KnowledgeRow) error {
	topicsJSON, err := marshalStrings(row.Topics)
	if err != nil {
		return fmt.Errorf("UpdateEntry: %w", err)
	}
	conceptsJSON, err := marshalStrings(row.RelatedConcepts)
	if err != nil {
		return fmt.Errorf("UpdateEntry: %w", err)
	}
	prereqJSON, err := marshalStrings(row.Prerequisites)
	if err != nil {
		return fmt.Errorf("UpdateEntry: %w", err)
	}
	objectivesJSON, err := marshalStrings(row.LearningObjectives)
	if err != nil {
		return fmt.Errorf("UpdateEntry: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE knowledge_entries SET
			source_id = ?, title = ?, content = ?, content_type = ?, subject = ?,
			topics = ?, difficulty = ?, confidence = ?, educational_value = ?,
			verification_status = ?, related_concepts = ?, prerequisites = ?,
			learning_objectives = ?, updated_at = ?
		WHERE id = ?`,
		row.SourceID, row.Title, row.Content, row.ContentType, row.Subject,
		topicsJSON, row.Difficulty, row.Confidence, row.EducationalValue,
		row.VerificationStatus, conceptsJSON, prereqJSON, objectivesJSON,
		row.UpdatedAt, row.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateEntry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateEntry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateEntry: %w", storage.ErrNotFound)
	}
	return nil
}

// ListEntries returns knowledge entry rows matching the filter.
func (c *Client) ListEntries(ctx context.Context, filter *storage.EntryFilter) ([]*storage.KnowledgeRow, error) {
	if filter == nil {
		filter = &storage.EntryFilter{}
	}

	whereClause, args := buildEntryWhere(filter)

	query := fmt.Sprintf(`
		SELECT id, source_id, title, content, content_type, subject, topics,
		       difficulty, confidence, educational_value, verification_status,
		       related_concepts, prerequisites, learning_objectives, created_at, updated_at
		FROM knowledge_entries
		%s
		ORDER BY created_at DESC`, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListEntries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*storage.KnowledgeRow
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ListEntries: %w", err)
		}
		if !storage.MatchesTopics(entry.Topics, filter.Topics) {
			continue
		}
		entries = append(entries, entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEntries: %w", err)
	}

	return entries, nil
}

// InsertSource inserts a source row.
func (c *Client) InsertSource(ctx context.Context, row *storage.SourceRow) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sources
		(id, title, author, url, reliability, verification_status, citation_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Title, row.Author, row.URL, row.Reliability,
		row.VerificationStatus, row.CitationCount, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertSource: %w", err)
	}
	return nil
}

// GetSource retrieves a source row by ID.
func (c *Client) GetSource(ctx context.Context, id int64) (*storage.SourceRow, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, title, author, url, reliability, verification_status,
		       citation_count, created_at, updated_at
		FROM sources WHERE id = ?`, id)

	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetSource: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetSource: %w", err)
	}
	return src, nil
}

// UpdateSource replaces a source row by ID.
func (c *Client) UpdateSource(ctx context.Context, row *storage.SourceRow) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE sources SET
			title = ?, author = ?, url = ?, reliability = ?,
			verification_status = ?, citation_count = ?, updated_at = ?
		WHERE id = ?`,
		row.Title, row.Author, row.URL, row.Reliability,
		row.VerificationStatus, row.CitationCount, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateSource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateSource: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateSource: %w", storage.ErrNotFound)
	}
	return nil
}

// ListSources returns source rows ordered by reliability descending.
func (c *Client) ListSources(ctx context.Context, limit int) ([]*storage.SourceRow, error) {
	query := `
		SELECT id, title, author, url, reliability, verification_status,
		       citation_count, created_at, updated_at
		FROM sources
		ORDER BY reliability DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListSources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []*storage.SourceRow
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ListSources: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListSources: %w", err)
	}
	return sources, nil
}

// InsertRelation inserts a fact relation row.
func (c *Client) InsertRelation(ctx context.Context, row *storage.RelationRow) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO fact_relations (id, entry_id, related_id, relation_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		row.ID, row.EntryID, row.RelatedID, row.RelationType, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertRelation: %w", err)
	}
	return nil
}

// ListRelations returns relation rows starting from the given entry.
func (c *Client) ListRelations(ctx context.Context, entryID int64) ([]*storage.RelationRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, entry_id, related_id, relation_type, created_at
		FROM fact_relations WHERE entry_id = ?
		ORDER BY created_at`, entryID)
	if err != nil {
		return nil, fmt.Errorf("ListRelations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var relations []*storage.RelationRow
	for rows.Next() {
		var rel storage.RelationRow
		if err := rows.Scan(&rel.ID, &rel.EntryID, &rel.RelatedID, &rel.RelationType, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListRelations: %w", err)
		}
		relations = append(relations, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRelations: %w", err)
	}
	return relations, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// buildMemoryWhere builds the WHERE clause for memory list queries.
func buildMemoryWhere(filter *storage.MemoryFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ConversationID != "" {
		conds = append(conds, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if len(filter.Types) > 0 {
		conds = append(conds, inClause("memory_type", len(filter.Types)))
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	if len(filter.Priorities) > 0 {
		conds = append(conds, inClause("priority", len(filter.Priorities)))
		for _, p := range filter.Priorities {
			args = append(args, p)
		}
	}
	if len(filter.Retentions) > 0 {
		conds = append(conds, inClause("retention", len(filter.Retentions)))
		for _, r := range filter.Retentions {
			args = append(args, r)
		}
	}
	if filter.CreatedAfter != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *filter.CreatedBefore)
	}
	if !filter.IncludeExpired && !filter.Now.IsZero() {
		conds = append(conds, "expires_at > ?")
		args = append(args, filter.Now)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// buildEntryWhere builds the WHERE clause for knowledge entry list queries.
func buildEntryWhere(filter *storage.EntryFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if len(filter.Subjects) > 0 {
		conds = append(conds, inClause("subject", len(filter.Subjects)))
		for _, s := range filter.Subjects {
			args = append(args, s)
		}
	}
	if filter.ContentType != "" {
		conds = append(conds, "content_type = ?")
		args = append(args, filter.ContentType)
	}
	if filter.DifficultyMin > 0 {
		conds = append(conds, "difficulty >= ?")
		args = append(args, filter.DifficultyMin)
	}
	if filter.DifficultyMax > 0 {
		conds = append(conds, "difficulty <= ?")
		args = append(args, filter.DifficultyMax)
	}
	if filter.MinConfidence > 0 {
		conds = append(conds, "confidence >= ?")
		args = append(args, filter.MinConfidence)
	}
	if filter.MinEducationalValue > 0 {
		conds = append(conds, "educational_value >= ?")
		args = append(args, filter.MinEducationalValue)
	}
	if filter.VerificationStatus != "" {
		conds = append(conds, "verification_status = ?")
		args = append(args, filter.VerificationStatus)
	}
	if filter.CreatedAfter != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *filter.CreatedBefore)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// inClause builds "col IN (?, ?, ...)" with n placeholders.
func inClause(col string, n int) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	return fmt.Sprintf("%s IN (%s)", col, placeholders)
}

// applyPaging applies limit/offset after Go-side filtering.
func applyPaging(rows []*storage.MemoryRow, limit, offset int) []*storage.MemoryRow {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
