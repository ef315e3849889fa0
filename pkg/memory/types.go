package memory

import (
	"time"
)

// Type classifies what a stored memory captures.
type Type string

const (
	TypeUserQuery           Type = "user_query"
	TypeAIResponse          Type = "ai_response"
	TypeLearningInteraction Type = "learning_interaction"
	TypeFeedback            Type = "feedback"
	TypeCorrection          Type = "correction"
	TypeInsight             Type = "insight"
)

// Priority controls how aggressively maintenance may discard a memory.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Retention determines a memory's expiry horizon.
type Retention string

const (
	RetentionSession   Retention = "session"
	RetentionShortTerm Retention = "short_term"
	RetentionLongTerm  Retention = "long_term"
	RetentionPermanent Retention = "permanent"
)

// LinkType labels a directed edge between two memories.
type LinkType string

const (
	LinkSimilar  LinkType = "similar"
	LinkFollows  LinkType = "follows"
	LinkCorrects LinkType = "corrects"
	LinkExpands  LinkType = "expands"
)

// Interaction is the content payload of a memory.
type Interaction struct {
	Content           string    `json:"content"`
	Intent            string    `json:"intent,omitempty"`
	Topic             string    `json:"topic,omitempty"`
	Subject           string    `json:"subject,omitempty"`
	Sentiment         string    `json:"sentiment,omitempty"`
	Complexity        string    `json:"complexity,omitempty"`
	LearningObjective string    `json:"learning_objective,omitempty"`
	Response          *Response `json:"response,omitempty"`
}

// Response captures the assistant side of an interaction, when present.
type Response struct {
	Content          string  `json:"content"`
	Confidence       float64 `json:"confidence,omitempty"`
	Model            string  `json:"model,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	ProcessingTimeMS int64   `json:"processing_time_ms,omitempty"`
	TokensUsed       int     `json:"tokens_used,omitempty"`
}

// Metadata holds bookkeeping state attached to a memory.
type Metadata struct {
	Source                  string    `json:"source,omitempty"`
	Version                 string    `json:"version,omitempty"`
	Compressed              bool      `json:"compressed"`
	ValidationStatus        string    `json:"validation_status,omitempty"`
	AccessCount             int       `json:"access_count"`
	LastAccessedAt          time.Time `json:"last_accessed_at,omitempty"`
	KnowledgeBaseLinked     bool      `json:"knowledge_base_linked"`
	KnowledgeCandidate      bool      `json:"knowledge_candidate"`
	CrossConversationLinked bool      `json:"cross_conversation_linked"`
	FeedbackCollected       bool      `json:"feedback_collected"`
}

// Link is a directed edge from one memory to another.
type Link struct {
	TargetID int64    `json:"target_id"`
	Type     LinkType `json:"type"`
}

// Memory is a single stored interaction or insight.
type Memory struct {
	ID             int64       `json:"id"`
	UserID         string      `json:"user_id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Type           Type        `json:"memory_type"`
	Interaction    Interaction `json:"interaction"`
	QualityScore   float64     `json:"quality_score"`
	RelevanceScore float64     `json:"relevance_score"`
	Priority       Priority    `json:"priority"`
	Retention      Retention   `json:"retention"`
	ExpiresAt      time.Time   `json:"expires_at"`
	Tags           []string    `json:"tags,omitempty"`
	Links          []Link      `json:"links,omitempty"`
	Metadata       Metadata    `json:"metadata"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// HasLink reports whether the memory already holds an edge to targetID with
// the given type.
func (m *Memory) HasLink(targetID int64, linkType LinkType) bool {
	for _, l := range m.Links {
		if l.TargetID == targetID && l.Type == linkType {
			return true
		}
	}
	return false
}

// StoreRequest describes a memory to persist.
type StoreRequest struct {
	UserID         string      `json:"user_id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Type           Type        `json:"memory_type"`
	Interaction    Interaction `json:"interaction"`
	Priority       Priority    `json:"priority,omitempty"`
	Retention      Retention   `json:"retention,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	Source         string      `json:"source,omitempty"`
}

// StoreResult reports what happened during storage and post-store
// processing.
type StoreResult struct {
	Memory *Memory `json:"memory"`

	// AutoLinkedIDs lists memories that were linked by similarity during
	// post-store processing.
	AutoLinkedIDs []int64 `json:"auto_linked_ids,omitempty"`

	// KnowledgeCandidate is set for high quality insights that are worth
	// promoting into the knowledge base. Promotion itself is left to the
	// caller.
	KnowledgeCandidate bool `json:"knowledge_candidate"`
}

// SortOrder selects how search results are ranked.
type SortOrder string

const (
	SortByRelevance SortOrder = "relevance"
	SortByDate      SortOrder = "date"
	SortByQuality   SortOrder = "quality"
	SortByPriority  SortOrder = "priority"
)

// SearchRequest filters and ranks stored memories.
type SearchRequest struct {
	UserID            string      `json:"user_id"`
	Query             string      `json:"query,omitempty"`
	ConversationID    string      `json:"conversation_id,omitempty"`
	Types             []Type      `json:"memory_types,omitempty"`
	Priorities        []Priority  `json:"priorities,omitempty"`
	Retentions        []Retention `json:"retentions,omitempty"`
	Tags              []string    `json:"tags,omitempty"`
	CreatedAfter      *time.Time  `json:"created_after,omitempty"`
	CreatedBefore     *time.Time  `json:"created_before,omitempty"`
	MinRelevanceScore float64     `json:"min_relevance_score,omitempty"`
	IncludeExpired    bool        `json:"include_expired,omitempty"`
	SortBy            SortOrder   `json:"sort_by,omitempty"`
	MaxResults        int         `json:"max_results,omitempty"`
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Memory         *Memory  `json:"memory"`
	RelevanceScore float64  `json:"relevance_score"`
	Snippets       []string `json:"snippets,omitempty"`
}

// LinkRequest connects two memories.
type LinkRequest struct {
	SourceID      int64    `json:"source_id"`
	TargetID      int64    `json:"target_id"`
	LinkType      LinkType `json:"link_type"`
	Bidirectional bool     `json:"bidirectional,omitempty"`
}

// OptimizationType selects a maintenance mode.
type OptimizationType string

const (
	OptimizeCleanup       OptimizationType = "cleanup"
	OptimizeCompression   OptimizationType = "compression"
	OptimizeConsolidation OptimizationType = "consolidation"
	OptimizeLinking       OptimizationType = "linking"
)

// OptimizeRequest drives one maintenance pass over a user's memories.
type OptimizeRequest struct {
	UserID           string           `json:"user_id"`
	OptimizationType OptimizationType `json:"optimization_type"`

	// QualityThreshold removes memories scored below it during cleanup.
	QualityThreshold float64 `json:"quality_threshold,omitempty"`

	// MaxAgeDays removes memories older than this during cleanup. Zero
	// disables the age check.
	MaxAgeDays int `json:"max_age_days,omitempty"`

	PreserveRecent       bool `json:"preserve_recent,omitempty"`
	PreserveHighPriority bool `json:"preserve_high_priority,omitempty"`
}

// OptimizeResult reports the outcome of a maintenance pass.
type OptimizeResult struct {
	Processed          int      `json:"processed"`
	Removed            int      `json:"removed"`
	Compressed         int      `json:"compressed"`
	Linked             int      `json:"linked"`
	StorageSavedBytes  int64    `json:"storage_saved_bytes"`
	QualityImprovement float64  `json:"quality_improvement,omitempty"`
	Recommendations    []string `json:"recommendations,omitempty"`
}

// TopicStat is one entry of the per-topic analytics breakdown.
type TopicStat struct {
	Topic          string  `json:"topic"`
	Count          int     `json:"count"`
	AverageQuality float64 `json:"average_quality"`
}

// ProgressPoint is a chronological sample used for the learning progress
// overview.
type ProgressPoint struct {
	MemoryID     int64     `json:"memory_id"`
	Topic        string    `json:"topic,omitempty"`
	QualityScore float64   `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
}

// Analytics summarizes a user's memory corpus.
type Analytics struct {
	TotalMemories    int               `json:"total_memories"`
	CountByType      map[Type]int      `json:"count_by_type"`
	CountByPriority  map[Priority]int  `json:"count_by_priority"`
	CountByRetention map[Retention]int `json:"count_by_retention"`
	AverageQuality   float64           `json:"average_quality"`
	AverageRelevance float64           `json:"average_relevance"`
	TopTopics        []TopicStat       `json:"top_topics,omitempty"`
	LearningProgress []ProgressPoint   `json:"learning_progress,omitempty"`

	// GrowthRate is memories per day over the analyzed range.
	GrowthRate float64 `json:"growth_rate"`
}

// QualityFeedback carries user feedback about one memory.
type QualityFeedback struct {
	// UserSatisfaction is a [0,1] rating blended into the quality score.
	UserSatisfaction float64 `json:"user_satisfaction"`

	// Corrections lists what the user had to fix. Any correction halves
	// the quality score.
	Corrections []string `json:"corrections,omitempty"`
}

// retentionDurations maps a retention policy to its expiry horizon.
var retentionDurations = map[Retention]time.Duration{
	RetentionSession:   24 * time.Hour,
	RetentionShortTerm: 7 * 24 * time.Hour,
	RetentionLongTerm:  30 * 24 * time.Hour,
	RetentionPermanent: 365 * 24 * time.Hour,
}

// ExpiryFor returns the deterministic expiry time for a retention policy
// relative to createdAt. Unknown policies fall back to short_term.
func ExpiryFor(retention Retention, createdAt time.Time) time.Time {
	d, ok := retentionDurations[retention]
	if !ok {
		d = retentionDurations[RetentionShortTerm]
	}
	return createdAt.Add(d)
}

// ValidType reports whether t is a known memory type.
func ValidType(t Type) bool {
	switch t {
	case TypeUserQuery, TypeAIResponse, TypeLearningInteraction,
		TypeFeedback, TypeCorrection, TypeInsight:
		return true
	}
	return false
}
