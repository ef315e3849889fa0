package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/learnware/studyctx/pkg/storage"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// entryJSON holds the JSON-encoded slice columns of a knowledge entry.
type entryJSON struct {
	topics     string
	concepts   string
	prereqs    string
	objectives string
}

// jsonOrNull returns the raw JSON as a string, or nil for empty documents
// so JSONB columns receive SQL NULL instead of an invalid empty literal.
func jsonOrNull(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// encodeMemoryJSON encodes the tags and links columns of a memory row.
func encodeMemoryJSON(row *storage.MemoryRow) (tags, links string, err error) {
	if tags, err = marshalStrings(row.Tags); err != nil {
		return "", "", err
	}
	linkRows := row.Links
	if linkRows == nil {
		linkRows = []storage.LinkRow{}
	}
	data, err := json.Marshal(linkRows)
	if err != nil {
		return "", "", err
	}
	return tags, string(data), nil
}

// encodeEntryJSON encodes the slice columns of a knowledge entry row.
func encodeEntryJSON(row *storage.KnowledgeRow) (*entryJSON, error) {
	var enc entryJSON
	var err error
	if enc.topics, err = marshalStrings(row.Topics); err != nil {
		return nil, err
	}
	if enc.concepts, err = marshalStrings(row.RelatedConcepts); err != nil {
		return nil, err
	}
	if enc.prereqs, err = marshalStrings(row.Prerequisites); err != nil {
		return nil, err
	}
	if enc.objectives, err = marshalStrings(row.LearningObjectives); err != nil {
		return nil, err
	}
	return &enc, nil
}

// scanMemory scans a memory row from a database row or rows.
func scanMemory(s rowScanner) (*storage.MemoryRow, error) {
	var mem storage.MemoryRow
	var conversationID, interaction, tags, links, meta sql.NullString

	err := s.Scan(
		&mem.ID,
		&mem.UserID,
		&conversationID,
		&mem.MemoryType,
		&interaction,
		&mem.QualityScore,
		&mem.RelevanceScore,
		&mem.Priority,
		&mem.Retention,
		&mem.ExpiresAt,
		&tags,
		&links,
		&meta,
		&mem.CreatedAt,
		&mem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	mem.ConversationID = conversationID.String
	mem.Interaction = json.RawMessage(interaction.String)
	mem.Meta = json.RawMessage(meta.String)

	if mem.Tags, err = unmarshalStrings(tags.String); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}
	if links.String != "" {
		if err := json.Unmarshal([]byte(links.String), &mem.Links); err != nil {
			return nil, fmt.Errorf("parse links: %w", err)
		}
	}

	return &mem, nil
}

// scanEntry scans a knowledge entry row from a database row or rows.
func scanEntry(s rowScanner) (*storage.KnowledgeRow, error) {
	var entry storage.KnowledgeRow
	var topics, concepts, prereqs, objectives sql.NullString

	err := s.Scan(
		&entry.ID,
		&entry.SourceID,
		&entry.Title,
		&entry.Content,
		&entry.ContentType,
		&entry.Subject,
		&topics,
		&entry.Difficulty,
		&entry.Confidence,
		&entry.EducationalValue,
		&entry.VerificationStatus,
		&concepts,
		&prereqs,
		&objectives,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entry.Topics, err = unmarshalStrings(topics.String); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if entry.RelatedConcepts, err = unmarshalStrings(concepts.String); err != nil {
		return nil, fmt.Errorf("parse related concepts: %w", err)
	}
	if entry.Prerequisites, err = unmarshalStrings(prereqs.String); err != nil {
		return nil, fmt.Errorf("parse prerequisites: %w", err)
	}
	if entry.LearningObjectives, err = unmarshalStrings(objectives.String); err != nil {
		return nil, fmt.Errorf("parse learning objectives: %w", err)
	}

	return &entry, nil
}

// scanSource scans a source row from a database row or rows.
func scanSource(s rowScanner) (*storage.SourceRow, error) {
	var src storage.SourceRow
	err := s.Scan(
		&src.ID,
		&src.Title,
		&src.Author,
		&src.URL,
		&src.Reliability,
		&src.VerificationStatus,
		&src.CitationCount,
		&src.CreatedAt,
		&src.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// rowsAffectedOrNotFound maps a zero-row result to ErrNotFound.
func rowsAffectedOrNotFound(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// buildMemoryWhere builds the WHERE clause for memory list queries using
// numbered placeholders.
func buildMemoryWhere(filter *storage.MemoryFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	idx := 1

	add := func(cond string, value interface{}) {
		conds = append(conds, fmt.Sprintf(cond, idx))
		args = append(args, value)
		idx++
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ConversationID != "" {
		add("conversation_id = $%d", filter.ConversationID)
	}
	if len(filter.Types) > 0 {
		cond, newArgs, next := inClause("memory_type", filter.Types, idx)
		conds = append(conds, cond)
		args = append(args, newArgs...)
		idx = next
	}
	if len(filter.Priorities) > 0 {
		cond, newArgs, next := inClause("priority", filter.Priorities, idx)
		conds = append(conds, cond)
		args = append(args, newArgs...)
		idx = next
	}
	if len(filter.Retentions) > 0 {
		cond, newArgs, next := inClause("retention", filter.Retentions, idx)
		conds = append(conds, cond)
		args = append(args, newArgs...)
		idx = next
	}
	if filter.CreatedAfter != nil {
		add("created_at >= $%d", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		add("created_at <= $%d", *filter.CreatedBefore)
	}
	if !filter.IncludeExpired && !filter.Now.IsZero() {
		add("expires_at > $%d", filter.Now)
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
	idx := 1

	add := func(cond string, value interface{}) {
		conds = append(conds, fmt.Sprintf(cond, idx))
		args = append(args, value)
		idx++
	}

	if len(filter.Subjects) > 0 {
		cond, newArgs, next := inClause("subject", filter.Subjects, idx)
		conds = append(conds, cond)
		args = append(args, newArgs...)
		idx = next
	}
	if filter.ContentType != "" {
		add("content_type = $%d", filter.ContentType)
	}
	if filter.DifficultyMin > 0 {
		add("difficulty >= $%d", filter.DifficultyMin)
	}
	if filter.DifficultyMax > 0 {
		add("difficulty <= $%d", filter.DifficultyMax)
	}
	if filter.MinConfidence > 0 {
		add("confidence >= $%d", filter.MinConfidence)
	}
	if filter.MinEducationalValue > 0 {
		add("educational_value >= $%d", filter.MinEducationalValue)
	}
	if filter.VerificationStatus != "" {
		add("verification_status = $%d", filter.VerificationStatus)
	}
	if filter.CreatedAfter != nil {
		add("created_at >= $%d", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		add("created_at <= $%d", *filter.CreatedBefore)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// inClause builds "col IN ($i, $i+1, ...)" starting at startIdx.
func inClause(col string, values []string, startIdx int) (string, []interface{}, int) {
	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", startIdx+i)
		args[i] = v
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), args, startIdx + len(values)
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
