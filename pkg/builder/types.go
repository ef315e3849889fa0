package builder

import (
	"context"
	"time"

	"github.com/learnware/studyctx/pkg/knowledge"
)

// Level names a compression envelope for an assembled context.
type Level string

const (
	LevelLight     Level = "light"
	LevelRecent    Level = "recent"
	LevelSelective Level = "selective"
	LevelFull      Level = "full"
)

// LevelSpec carries the nominal token envelope and compression target of
// a level. The ratio is a compression target, not a hard cap.
type LevelSpec struct {
	MaxTokens        int
	CompressionRatio float64
}

// Levels maps every known level to its spec.
var Levels = map[Level]LevelSpec{
	LevelLight:     {MaxTokens: 500, CompressionRatio: 0.9},
	LevelRecent:    {MaxTokens: 1000, CompressionRatio: 0.7},
	LevelSelective: {MaxTokens: 2000, CompressionRatio: 0.5},
	LevelFull:      {MaxTokens: 4000, CompressionRatio: 0.3},
}

// ActivityRecord is one raw study session row supplied by the profile
// provider.
type ActivityRecord struct {
	Subject         string    `json:"subject"`
	Topic           string    `json:"topic,omitempty"`
	Accuracy        float64   `json:"accuracy"`
	Difficulty      int       `json:"difficulty"`
	DurationMinutes float64   `json:"duration_minutes"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Preferences carries learning style settings passed through into the
// profile.
type Preferences struct {
	LearningStyle string            `json:"learning_style,omitempty"`
	Settings      map[string]string `json:"settings,omitempty"`
}

// ActivityProvider supplies the raw activity and preference data the
// profile is derived from.
type ActivityProvider interface {
	GetActivity(ctx context.Context, userID string) ([]*ActivityRecord, error)
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
}

// Profile is the ultra-compressed student profile embedded in a context.
type Profile struct {
	UserID                string            `json:"user_id"`
	StrongSubjects        []string          `json:"strong_subjects,omitempty"`
	WeakSubjects          []string          `json:"weak_subjects,omitempty"`
	PreferredComplexity   int               `json:"preferred_complexity"`
	LearningStyle         string            `json:"learning_style,omitempty"`
	Preferences           map[string]string `json:"preferences,omitempty"`
	TotalSessions         int               `json:"total_sessions"`
	AverageSessionMinutes float64           `json:"average_session_minutes"`
	MostStudiedSubject    string            `json:"most_studied_subject,omitempty"`

	// LearningVelocity is sessions per week over the last four weeks.
	LearningVelocity float64 `json:"learning_velocity"`

	RecentTopics []string `json:"recent_topics,omitempty"`
}

// ConversationSummary is a compressed view of one prior conversation.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	Summary        string    `json:"summary"`
	Topic          string    `json:"topic,omitempty"`
	QualityScore   float64   `json:"quality_score"`
	CreatedAt      time.Time `json:"created_at"`
}

// TokenUsage breaks estimated token consumption down per component.
type TokenUsage struct {
	Total     int `json:"total"`
	Profile   int `json:"profile"`
	Knowledge int `json:"knowledge"`
	History   int `json:"history"`
	Sources   int `json:"sources"`
}

// EnhancedContext is the assembled grounding bundle. It is ephemeral:
// built fresh per request and never persisted.
type EnhancedContext struct {
	Profile           *Profile              `json:"profile,omitempty"`
	Knowledge         []*knowledge.Entry    `json:"knowledge,omitempty"`
	History           []ConversationSummary `json:"history,omitempty"`
	Sources           []*knowledge.Source   `json:"sources,omitempty"`
	FactCheckPoints   []string              `json:"fact_check_points,omitempty"`
	ConfidenceMarkers []string              `json:"confidence_markers,omitempty"`
	CompressionLevel  Level                 `json:"compression_level"`
	TokenUsage        TokenUsage            `json:"token_usage"`
}

// BuildRequest asks for a context at a given level and token limit.
type BuildRequest struct {
	UserID     string `json:"user_id"`
	Query      string `json:"query,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Level      Level  `json:"level,omitempty"`
	TokenLimit int    `json:"token_limit,omitempty"`
}

// Component caps for an assembled context.
const (
	maxKnowledgeEntries = 50
	maxHistoryEntries   = 10
	maxSourceEntries    = 20
)

// Derivation thresholds for fact-check points and confidence markers.
const (
	factCheckConfidence      = 0.8
	confidenceMarkerEduValue = 0.7
)
