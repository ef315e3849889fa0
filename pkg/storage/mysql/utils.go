package mysql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/learnware/studyctx/pkg/storage"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// jsonOrNull maps an empty raw message to SQL NULL so JSON columns stay valid.
func jsonOrNull(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

type entryJSON struct {
	topics     string
	concepts   string
	prereqs    string
	objectives string
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

func unmarshalStrings(data sql.NullString) ([]string, error) {
	if !data.Valid || data.String == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data.String), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func encodeMemoryJSON(row *storage.MemoryRow) (tags, links string, err error) {
	tags, err = marshalStrings(row.Tags)
	if err != nil {
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

func scanMemory(scanner rowScanner) (*storage.MemoryRow, error) {
	var row storage.MemoryRow
	var conversationID, interaction, tags, links, meta sql.NullString

	err := scanner.Scan(
		&row.ID, &row.UserID, &conversationID, &row.MemoryType, &interaction,
		&row.QualityScore, &row.RelevanceScore, &row.Priority, &row.Retention,
		&row.ExpiresAt, &tags, &links, &meta, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	row.ConversationID = conversationID.String
	if interaction.Valid {
		row.Interaction = json.RawMessage(interaction.String)
	}
	if meta.Valid {
		row.Meta = json.RawMessage(meta.String)
	}
	if row.Tags, err = unmarshalStrings(tags); err != nil {
		return nil, err
	}
	if links.Valid && links.String != "" {
		if err := json.Unmarshal([]byte(links.String), &row.Links); err != nil {
			return nil, err
		}
	}
	return &row, nil
}

func scanEntry(scanner rowScanner) (*storage.KnowledgeRow, error) {
	var row storage.KnowledgeRow
	var topics, concepts, prereqs, objectives sql.NullString

	err := scanner.Scan(
		&row.ID, &row.SourceID, &row.Title, &row.Content, &row.ContentType,
		&row.Subject, &topics, &row.Difficulty, &row.Confidence,
		&row.EducationalValue, &row.VerificationStatus, &concepts, &prereqs,
		&objectives, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if row.Topics, err = unmarshalStrings(topics); err != nil {
		return nil, err
	}
	if row.RelatedConcepts, err = unmarshalStrings(concepts); err != nil {
		return nil, err
	}
	if row.Prerequisites, err = unmarshalStrings(prereqs); err != nil {
		return nil, err
	}
	if row.LearningObjectives, err = unmarshalStrings(objectives); err != nil {
		return nil, err
	}
	return &row, nil
}

func scanSource(scanner rowScanner) (*storage.SourceRow, error) {
	var row storage.SourceRow
	err := scanner.Scan(
		&row.ID, &row.Title, &row.Author, &row.URL, &row.Reliability,
		&row.VerificationStatus, &row.CitationCount, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

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

func buildMemoryWhere(filter *storage.MemoryFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ConversationID != "" {
		conditions = append(conditions, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if len(filter.Types) > 0 {
		clause, inArgs := inClause("memory_type", filter.Types)
		conditions = append(conditions, clause)
		args = append(args, inArgs...)
	}
	if len(filter.Priorities) > 0 {
		clause, inArgs := inClause("priority", filter.Priorities)
		conditions = append(conditions, clause)
		args = append(args, inArgs...)
	}
	if len(filter.Retentions) > 0 {
		clause, inArgs := inClause("retention", filter.Retentions)
		conditions = append(conditions, clause)
		args = append(args, inArgs...)
	}
	if filter.CreatedAfter != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *filter.CreatedBefore)
	}
	if !filter.IncludeExpired && !filter.Now.IsZero() {
		conditions = append(conditions, "expires_at > ?")
		args = append(args, filter.Now)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func buildEntryWhere(filter *storage.EntryFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if len(filter.Subjects) > 0 {
		clause, inArgs := inClause("subject", filter.Subjects)
		conditions = append(conditions, clause)
		args = append(args, inArgs...)
	}
	if filter.ContentType != "" {
		conditions = append(conditions, "content_type = ?")
		args = append(args, filter.ContentType)
	}
	if filter.DifficultyMin > 0 {
		conditions = append(conditions, "difficulty >= ?")
		args = append(args, filter.DifficultyMin)
	}
	if filter.DifficultyMax > 0 {
		conditions = append(conditions, "difficulty <= ?")
		args = append(args, filter.DifficultyMax)
	}
	if filter.MinConfidence > 0 {
		conditions = append(conditions, "confidence >= ?")
		args = append(args, filter.MinConfidence)
	}
	if filter.MinEducationalValue > 0 {
		conditions = append(conditions, "educational_value >= ?")
		args = append(args, filter.MinEducationalValue)
	}
	if filter.VerificationStatus != "" {
		conditions = append(conditions, "verification_status = ?")
		args = append(args, filter.VerificationStatus)
	}
	if filter.CreatedAfter != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *filter.CreatedBefore)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func inClause(col string, values []string) (string, []interface{}) {
	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), args
}

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
