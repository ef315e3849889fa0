package knowledge

import (
	"time"
)

// Entry is one verified fact or concept. Content is immutable after
// creation; verification fields may change.
type Entry struct {
	ID                 int64     `json:"id"`
	SourceID           int64     `json:"source_id"`
	Title              string    `json:"title"`
	Content            string    `json:"content"`
	ContentType        string    `json:"content_type"`
	Subject            string    `json:"subject"`
	Topics             []string  `json:"topics,omitempty"`
	Difficulty         int       `json:"difficulty"`
	Confidence         float64   `json:"confidence"`
	EducationalValue   float64   `json:"educational_value"`
	VerificationStatus string    `json:"verification_status"`
	RelatedConcepts    []string  `json:"related_concepts,omitempty"`
	Prerequisites      []string  `json:"prerequisites,omitempty"`
	LearningObjectives []string  `json:"learning_objectives,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Source is the provenance record an entry points at.
type Source struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Author             string    `json:"author,omitempty"`
	URL                string    `json:"url,omitempty"`
	Reliability        float64   `json:"reliability"`
	VerificationStatus string    `json:"verification_status"`
	CitationCount      int       `json:"citation_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ContentTypeFacts marks entries usable as fact-check points.
const ContentTypeFacts = "facts"

// SearchFilters narrows a knowledge search.
type SearchFilters struct {
	Subjects            []string   `json:"subjects,omitempty"`
	Topics              []string   `json:"topics,omitempty"`
	ContentType         string     `json:"content_type,omitempty"`
	DifficultyMin       int        `json:"difficulty_min,omitempty"`
	DifficultyMax       int        `json:"difficulty_max,omitempty"`
	MinReliability      float64    `json:"min_reliability,omitempty"`
	MinEducationalValue float64    `json:"min_educational_value,omitempty"`
	VerificationStatus  string     `json:"verification_status,omitempty"`
	CreatedAfter        *time.Time `json:"created_after,omitempty"`
	CreatedBefore       *time.Time `json:"created_before,omitempty"`
	Limit               int        `json:"limit,omitempty"`
}

// SearchHit is one scored knowledge search result.
type SearchHit struct {
	Entry          *Entry  `json:"entry"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Strictness sets the source reliability floor used by fact validation.
type Strictness string

const (
	StrictnessLenient  Strictness = "lenient"
	StrictnessModerate Strictness = "moderate"
	StrictnessStrict   Strictness = "strict"
)

// ValidationRequest asks whether a claim is corroborated by the corpus.
type ValidationRequest struct {
	Claim      string     `json:"claim"`
	Subject    string     `json:"subject,omitempty"`
	Strictness Strictness `json:"strictness,omitempty"`
}

// ValidationResult reports the corroboration outcome for a claim.
type ValidationResult struct {
	IsValid                 bool     `json:"is_valid"`
	Confidence              float64  `json:"confidence"`
	SupportingCount         int      `json:"supporting_count"`
	ContradictingCount      int      `json:"contradicting_count"`
	SupportingReliability   float64  `json:"supporting_reliability"`
	ContradictingReliability float64 `json:"contradicting_reliability"`
	Recommendations         []string `json:"recommendations,omitempty"`
}

// Relation is a typed edge between two knowledge entries.
type Relation struct {
	ID           int64     `json:"id"`
	EntryID      int64     `json:"entry_id"`
	RelatedID    int64     `json:"related_id"`
	RelationType string    `json:"relation_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Statistics summarizes the knowledge corpus.
type Statistics struct {
	TotalEntries       int            `json:"total_entries"`
	TotalSources       int            `json:"total_sources"`
	EntriesBySubject   map[string]int `json:"entries_by_subject"`
	EntriesByType      map[string]int `json:"entries_by_type"`
	AverageConfidence  float64        `json:"average_confidence"`
	AverageReliability float64        `json:"average_reliability"`
}
