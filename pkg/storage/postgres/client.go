// Package postgres provides the PostgreSQL implementation of the
// storage.Store interface.
//
// Structured fields are stored in JSONB columns. Tag and topic matching is
// evaluated in Go after the scan, keeping query semantics identical across
// backends.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/learnware/studyctx/pkg/storage"
)

// Client implements storage.Store using PostgreSQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient creates a new PostgreSQL store client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
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
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			conversation_id VARCHAR(255),
			memory_type VARCHAR(64) NOT NULL,
			interaction JSONB,
			quality_score DOUBLE PRECISION DEFAULT 0,
			relevance_score DOUBLE PRECISION DEFAULT 0,
			priority VARCHAR(32),
			retention VARCHAR(32),
			expires_at TIMESTAMP,
			tags JSONB,
			links JSONB,
			meta JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at)`,
		`CREATE TABLE IF NOT EXISTS knowledge_entries (
			id BIGINT PRIMARY KEY,
			source_id BIGINT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			content_type VARCHAR(64),
			subject VARCHAR(255),
			topics JSONB,
			difficulty INT DEFAULT 1,
			confidence DOUBLE PRECISION DEFAULT 0,
			educational_value DOUBLE PRECISION DEFAULT 0,
			verification_status VARCHAR(64),
			related_concepts JSONB,
			prerequisites JSONB,
			learning_objectives JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_subject ON knowledge_entries(subject)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id BIGINT PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT,
			url TEXT,
			reliability DOUBLE PRECISION DEFAULT 0,
			verification_status VARCHAR(64),
			citation_count INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fact_relations (
			id BIGINT PRIMARY KEY,
			entry_id BIGINT NOT NULL,
			related_id BIGINT NOT NULL,
			relation_type VARCHAR(64),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
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
	tagsJSON, linksJSON, err := encodeMemoryJSON(row)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, user_id, conversation_id, memory_type, interaction, quality_score,
		 relevance_score, priority, retention, expires_at, tags, links, meta,
		 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		row.ID, row.UserID, row.ConversationID, row.MemoryType,
		jsonOrNull(row.Interaction), row.QualityScore, row.RelevanceScore,
		row.Priority, row.Retention, row.ExpiresAt, tagsJSON, linksJSON,
		jsonOrNull(row.Meta), row.CreatedAt, row.UpdatedAt,
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
		FROM memories WHERE id = $1`, id)

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
	tagsJSON, linksJSON, err := encodeMemoryJSON(row)
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE memories SET
			user_id = $1, conversation_id = $2, memory_type = $3, interaction = $4,
			quality_score = $5, relevance_score = $6, priority = $7, retention = $8,
			expires_at = $9, tags = $10, links = $11, meta = $12, updated_at = $13
		WHERE id = $14`,
		row.UserID, row.ConversationID, row.MemoryType, jsonOrNull(row.Interaction),
		row.QualityScore, row.RelevanceScore, row.Priority, row.Retention,
		row.ExpiresAt, tagsJSON, linksJSON, jsonOrNull(row.Meta), row.UpdatedAt,
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w", err)
	}
	return rowsAffectedOrNotFound(result, "UpdateMemory")
}

// DeleteMemory deletes a memory row by ID.
func (c *Client) DeleteMemory(ctx context.Context, id int64) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteMemory: %w", err)
	}
	return rowsAffectedOrNotFound(result, "DeleteMemory")
}

// DeleteMemories deletes the given memory rows in bulk.
func (c *Client) DeleteMemories(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
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
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
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
	result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE expires_at < $1`, now)
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
	enc, err := encodeEntryJSON(row)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries
		(id, source_id, title, content, content_type, subject, topics,
		 difficulty, confidence, educational_value, verification_status,
		 related_concepts, prerequisites, learning_objectives, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		row.ID, row.SourceID, row.Title, row.Content, row.ContentType,
		row.Subject, enc.topics, row.Difficulty, row.Confidence,
		row.EducationalValue, row.VerificationStatus, enc.concepts,
		enc.prereqs, enc.objectives, row.CreatedAt, row.UpdatedAt,
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
		FROM knowledge_entries WHERE id = $1`, id)

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
	enc, err := encodeEntryJSON(row)
	if err != nil {
		return fmt.Errorf("UpdateEntry: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE knowledge_entries SET
			source_id = $1, title = $2, content = $3, content_type = $4,
			subject = $5, topics = $6, difficulty = $7, confidence = $8,
			educational_value = $9, verification_status = $10,
			related_concepts = $11, prerequisites = $12,
			learning_objectives = $13, updated_at = $14
		WHERE id = $15`,
		row.SourceID, row.Title, row.Content, row.ContentType, row.Subject,
		enc.topics, row.Difficulty, row.Confidence, row.EducationalValue,
		row.VerificationStatus, enc.concepts, enc.prereqs, enc.objectives,
		row.UpdatedAt, row.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateEntry: %w", err)
	}
	return rowsAffectedOrNotFound(result, "UpdateEntry")
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
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
		FROM sources WHERE id = $1`, id)

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
			title = $1, author = $2, url = $3, reliability = $4,
			verification_status = $5, citation_count = $6, updated_at = $7
		WHERE id = $8`,
		row.Title, row.Author, row.URL, row.Reliability,
		row.VerificationStatus, row.CitationCount, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateSource: %w", err)
	}
	return rowsAffectedOrNotFound(result, "UpdateSource")
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
		query += " LIMIT $1"
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
		VALUES ($1, $2, $3, $4, $5)`,
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
		FROM fact_relations WHERE entry_id = $1
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
