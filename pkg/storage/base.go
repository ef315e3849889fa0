// Package storage provides interfaces and types for persistent row storage.
//
// It defines the Store interface that all storage backends must satisfy,
// along with row types and filter options for memories, knowledge entries,
// educational sources and fact relations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound indicates that a requested row was not found.
var ErrNotFound = errors.New("row not found")

// MemoryRow is the persisted form of a conversation memory.
//
// This type is defined in the storage package to avoid circular dependencies
// with the memory package. Structured sub-documents (interaction data and
// metadata) are carried as raw JSON and owned by the service layer; backends
// store them in JSON/TEXT columns without interpreting them.
type MemoryRow struct {
	// ID is the unique identifier of the memory.
	ID int64

	// UserID identifies the learner who owns this memory.
	UserID string

	// ConversationID identifies the conversation this memory came from (optional).
	ConversationID string

	// MemoryType is the interaction kind (user_query, ai_response, ...).
	MemoryType string

	// Interaction is the JSON-encoded interaction data.
	Interaction json.RawMessage

	// QualityScore is the stored quality heuristic (0.0-1.0).
	QualityScore float64

	// RelevanceScore is the stored relevance heuristic (0.0-1.0).
	RelevanceScore float64

	// Priority is the retention priority (low, medium, high, critical).
	Priority string

	// Retention is the retention policy (session, short_term, long_term, permanent).
	Retention string

	// ExpiresAt is when the memory logically expires.
	ExpiresAt time.Time

	// Tags is the set of tags attached to the memory.
	Tags []string

	// Links is the set of directed link edges from this memory.
	Links []LinkRow

	// Meta is the JSON-encoded memory metadata.
	Meta json.RawMessage

	// CreatedAt is when the memory was created.
	CreatedAt time.Time

	// UpdatedAt is when the memory was last updated.
	UpdatedAt time.Time
}

// LinkRow is a directed link edge from one memory to another.
type LinkRow struct {
	// TargetID is the memory the edge points to.
	TargetID int64 `json:"target_id"`

	// Type is the link type (e.g. "similar").
	Type string `json:"type"`
}

// KnowledgeRow is the persisted form of a verified knowledge entry.
type KnowledgeRow struct {
	// ID is the unique identifier of the entry.
	ID int64

	// SourceID references the educational source backing this entry.
	SourceID int64

	// Title is a short title for the entry.
	Title string

	// Content is the fact/concept text.
	Content string

	// ContentType classifies the entry (facts, concept, procedure, example).
	ContentType string

	// Subject is the academic subject of the entry.
	Subject string

	// Topics lists the topics this entry covers.
	Topics []string

	// Difficulty is the difficulty level (1-5).
	Difficulty int

	// Confidence is how certain the corpus is about this entry (0.0-1.0).
	Confidence float64

	// EducationalValue rates teaching usefulness (0.0-1.0).
	EducationalValue float64

	// VerificationStatus is the entry's verification state.
	VerificationStatus string

	// RelatedConcepts lists concept names related to this entry.
	RelatedConcepts []string

	// Prerequisites lists prerequisite concept names.
	Prerequisites []string

	// LearningObjectives lists the objectives this entry supports.
	LearningObjectives []string

	// CreatedAt is when the entry was created.
	CreatedAt time.Time

	// UpdatedAt is when the entry was last updated.
	UpdatedAt time.Time
}

// SourceRow is the persisted form of an educational source.
type SourceRow struct {
	// ID is the unique identifier of the source.
	ID int64

	// Title is the source title.
	Title string

	// Author is the source author.
	Author string

	// URL is an optional reference URL.
	URL string

	// Reliability is the source reliability rating (0.0-1.0).
	Reliability float64

	// VerificationStatus is the source's verification state.
	VerificationStatus string

	// CitationCount is how many entries cite this source.
	CitationCount int

	// CreatedAt is when the source was added.
	CreatedAt time.Time

	// UpdatedAt is when the source was last updated.
	UpdatedAt time.Time
}

// RelationRow is a directed relation between two knowledge entries.
type RelationRow struct {
	// ID is the unique identifier of the relation.
	ID int64

	// EntryID is the entry the relation starts from.
	EntryID int64

	// RelatedID is the entry the relation points to.
	RelatedID int64

	// RelationType describes the relation (e.g. "builds_on", "contrasts").
	RelationType string

	// CreatedAt is when the relation was created.
	CreatedAt time.Time
}

// MemoryFilter narrows ListMemories results.
//
// Field filters that map cleanly onto SQL run in the backend; tag matching
// runs in Go after the scan.
type MemoryFilter struct {
	// UserID filters to a specific learner.
	UserID string

	// ConversationID filters to a single conversation.
	ConversationID string

	// Types filters to the given memory types (empty = all).
	Types []string

	// Priorities filters to the given priorities (empty = all).
	Priorities []string

	// Retentions filters to the given retention policies (empty = all).
	Retentions []string

	// Tags keeps rows carrying at least one of the given tags.
	Tags []string

	// CreatedAfter keeps rows created at or after this time.
	CreatedAfter *time.Time

	// CreatedBefore keeps rows created at or before this time.
	CreatedBefore *time.Time

	// IncludeExpired keeps rows whose ExpiresAt has passed.
	IncludeExpired bool

	// Now is the reference time for expiry evaluation.
	// Zero means expiry is not evaluated.
	Now time.Time

	// Limit caps the number of returned rows (0 = no cap).
	Limit int

	// Offset skips rows for pagination.
	Offset int
}

// EntryFilter narrows ListEntries results.
type EntryFilter struct {
	// Subjects filters to the given subjects (empty = all).
	Subjects []string

	// Topics keeps entries covering at least one of the given topics.
	Topics []string

	// ContentType filters to a single content type.
	ContentType string

	// DifficultyMin is the inclusive lower difficulty bound (0 = unbounded).
	DifficultyMin int

	// DifficultyMax is the inclusive upper difficulty bound (0 = unbounded).
	DifficultyMax int

	// MinConfidence keeps entries at or above this confidence.
	MinConfidence float64

	// MinEducationalValue keeps entries at or above this educational value.
	MinEducationalValue float64

	// VerificationStatus filters to a single verification state.
	VerificationStatus string

	// CreatedAfter keeps entries created at or after this time.
	CreatedAfter *time.Time

	// CreatedBefore keeps entries created at or before this time.
	CreatedBefore *time.Time

	// Limit caps the number of returned rows (0 = no cap).
	Limit int
}

// Store defines the interface for persistent storage backends.
//
// All backends (SQLite, PostgreSQL, MySQL) must implement this interface.
// Read methods return ErrNotFound (possibly wrapped) when a row is absent.
// Writes are last-write-wins; no transactional isolation is provided.
type Store interface {
	// InsertMemory inserts a memory row.
	InsertMemory(ctx context.Context, row *MemoryRow) error

	// GetMemory retrieves a memory row by ID.
	GetMemory(ctx context.Context, id int64) (*MemoryRow, error)

	// UpdateMemory replaces a memory row by ID.
	UpdateMemory(ctx context.Context, row *MemoryRow) error

	// DeleteMemory deletes a memory row by ID.
	DeleteMemory(ctx context.Context, id int64) error

	// DeleteMemories deletes the given memory rows in bulk.
	// Returns the number of rows removed.
	DeleteMemories(ctx context.Context, ids []int64) (int64, error)

	// ListMemories returns memory rows matching the filter,
	// ordered by creation time descending.
	ListMemories(ctx context.Context, filter *MemoryFilter) ([]*MemoryRow, error)

	// DeleteExpiredMemories deletes all memory rows whose ExpiresAt is
	// before now. Returns the number of rows removed.
	DeleteExpiredMemories(ctx context.Context, now time.Time) (int64, error)

	// InsertEntry inserts a knowledge entry row.
	InsertEntry(ctx context.Context, row *KnowledgeRow) error

	// GetEntry retrieves a knowledge entry row by ID.
	GetEntry(ctx context.Context, id int64) (*KnowledgeRow, error)

	// UpdateEntry replaces a knowledge entry row by ID.
	UpdateEntry(ctx context.Context, row *KnowledgeRow) error

	// ListEntries returns knowledge entry rows matching the filter,
	// ordered by creation time descending.
	ListEntries(ctx context.Context, filter *EntryFilter) ([]*KnowledgeRow, error)

	// InsertSource inserts a source row.
	InsertSource(ctx context.Context, row *SourceRow) error

	// GetSource retrieves a source row by ID.
	GetSource(ctx context.Context, id int64) (*SourceRow, error)

	// UpdateSource replaces a source row by ID.
	UpdateSource(ctx context.Context, row *SourceRow) error

	// ListSources returns source rows ordered by reliability descending.
	ListSources(ctx context.Context, limit int) ([]*SourceRow, error)

	// InsertRelation inserts a fact relation row.
	InsertRelation(ctx context.Context, row *RelationRow) error

	// ListRelations returns relation rows starting from the given entry.
	ListRelations(ctx context.Context, entryID int64) ([]*RelationRow, error)

	// Close closes the store and releases resources.
	Close() error
}

// MatchesTags reports whether rowTags contains at least one of want.
// Empty want matches everything. Shared by backends for post-scan filtering.
func MatchesTags(rowTags, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, t := range rowTags {
			if t == w {
				return true
			}
		}
	}
	return false
}

// MatchesTopics reports whether rowTopics contains at least one of want.
// Empty want matches everything.
func MatchesTopics(rowTopics, want []string) bool {
	return MatchesTags(rowTopics, want)
}
