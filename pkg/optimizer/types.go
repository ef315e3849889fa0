package optimizer

import (
	"github.com/learnware/studyctx/pkg/builder"
)

// Strategy governs how the optimizer trades size against information
// loss.
type Strategy string

const (
	StrategyQualityPreserving   Strategy = "quality_preserving"
	StrategySizeReducing        Strategy = "size_reducing"
	StrategyBalanced            Strategy = "balanced"
	StrategyPerformanceOriented Strategy = "performance_oriented"
)

// ValidStrategy reports whether s is a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyQualityPreserving, StrategySizeReducing,
		StrategyBalanced, StrategyPerformanceOriented:
		return true
	}
	return false
}

// OptimizeRequest asks for a context to be forced under a token limit.
type OptimizeRequest struct {
	Context    *builder.EnhancedContext `json:"context"`
	TokenLimit int                      `json:"token_limit"`
	Strategy   Strategy                 `json:"strategy"`

	// EducationalPriority allows the quality preserving strategy to
	// compress the knowledge component.
	EducationalPriority bool `json:"educational_priority,omitempty"`

	// PreserveFactChecks keeps fact-check points and confidence markers
	// untouched.
	PreserveFactChecks bool `json:"preserve_fact_checks,omitempty"`
}

// Budget is the per-component token allocation for a limit and strategy.
type Budget struct {
	Profile   int `json:"profile"`
	Knowledge int `json:"knowledge"`
	Memory    int `json:"memory"`
	Sources   int `json:"sources"`
	History   int `json:"history"`
}

// Tradeoff describes what one component gave up.
type Tradeoff struct {
	Component       string  `json:"component"`
	OriginalTokens  int     `json:"original_tokens"`
	OptimizedTokens int     `json:"optimized_tokens"`
	InformationLoss float64 `json:"information_loss"`
	QualityImpact   float64 `json:"quality_impact"`
	Reason          string  `json:"reason"`
}

// PreservedInformation summarizes what survived optimization.
type PreservedInformation struct {
	CriticalFacts      []string `json:"critical_facts,omitempty"`
	LearningObjectives []string `json:"learning_objectives,omitempty"`
	KeyPreferences     []string `json:"key_preferences,omitempty"`
	RecentProgress     string   `json:"recent_progress,omitempty"`
	KnowledgeGaps      []string `json:"knowledge_gaps,omitempty"`
}

// Result is the full optimization report.
type Result struct {
	OptimizedContext *builder.EnhancedContext `json:"optimized_context"`
	OriginalTokens   int                      `json:"original_tokens"`
	OptimizedTokens  int                      `json:"optimized_tokens"`
	TokenReduction   int                      `json:"token_reduction"`
	QualityScore     float64                  `json:"quality_score"`
	CompressionRatio float64                  `json:"compression_ratio"`
	Preserved        PreservedInformation     `json:"preserved"`
	Tradeoffs        []Tradeoff               `json:"tradeoffs,omitempty"`
	Recommendations  []string                 `json:"recommendations,omitempty"`
}
