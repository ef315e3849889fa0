package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/learnware/studyctx/pkg/storage"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// marshalStrings encodes a string slice as a JSON string for TEXT columns.
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

// unmarshalStrings decodes a JSON string column into a string slice.
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

// marshalLinks encodes link edges as a JSON string for TEXT columns.
func marshalLinks(links []storage.LinkRow) (string, error) {
	if links == nil {
		links = []storage.LinkRow{}
	}
	data, err := json.Marshal(links)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalLinks decodes a JSON string column into link edges.
func unmarshalLinks(data string) ([]storage.LinkRow, error) {
	if data == "" {
		return nil, nil
	}
	var links []storage.LinkRow
	if err := json.Unmarshal([]byte(data), &links); err != nil {
		return nil, err
	}
	return links, nil
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
	if mem.Links, err = unmarshalLinks(links.String); err != nil {
		return nil, fmt.Errorf("parse links: %w", err)
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
