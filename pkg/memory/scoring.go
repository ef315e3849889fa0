package memory

import (
	"strings"
)

// ScoringPolicy holds every weight and threshold used by the heuristic
// scorers. The zero value is not usable; start from DefaultScoringPolicy
// and override individual fields to tune behavior.
type ScoringPolicy struct {
	// Quality score components.
	QualityContentBonus      float64 // content longer than MinContentLength
	QualityComplexityBonus   float64 // interaction marked complex
	QualitySentimentBonus    float64 // positive sentiment
	QualityResponseBonus     float64 // a response is attached
	QualityConfidenceBonus   float64 // response confidence above ConfidenceThreshold
	QualityObjectiveBonus    float64 // learning objective set
	QualitySignalBonus       float64 // per minor signal (topic, fast processing, low token use)
	MinContentLength         int
	ConfidenceThreshold      float64
	FastProcessingMS         int64
	LowTokenUse              int

	// Relevance score components.
	PriorityWeights      map[Priority]float64
	TypeWeights          map[Type]float64
	RelevanceContentBonus float64
	RelevanceTopicBonus   float64
	RelevanceTagsBonus    float64

	// Similarity components used for auto-linking.
	SimilarityTopicWeight   float64
	SimilarityContentWeight float64
	SimilarityTypeWeight    float64
	SimilarityThreshold     float64
	MaxAutoLinks            int

	// Query relevance components used by search.
	QueryContentWeight float64
	QueryTopicWeight   float64
	QuerySubjectWeight float64
	QueryTagWeight     float64
	QueryQualityWeight float64

	// KnowledgeCandidateThreshold marks insight memories above this
	// quality as knowledge base promotion candidates.
	KnowledgeCandidateThreshold float64
}

// DefaultScoringPolicy returns the standard tuning.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		QualityContentBonus:    0.1,
		QualityComplexityBonus: 0.1,
		QualitySentimentBonus:  0.1,
		QualityResponseBonus:   0.2,
		QualityConfidenceBonus: 0.1,
		QualityObjectiveBonus:  0.1,
		QualitySignalBonus:     0.05,
		MinContentLength:       10,
		ConfidenceThreshold:    0.8,
		FastProcessingMS:       2000,
		LowTokenUse:            500,

		PriorityWeights: map[Priority]float64{
			PriorityLow:      0.1,
			PriorityMedium:   0.2,
			PriorityHigh:     0.3,
			PriorityCritical: 0.4,
		},
		TypeWeights: map[Type]float64{
			TypeUserQuery:           0.2,
			TypeAIResponse:          0.15,
			TypeLearningInteraction: 0.25,
			TypeFeedback:            0.2,
			TypeCorrection:          0.3,
			TypeInsight:             0.35,
		},
		RelevanceContentBonus: 0.1,
		RelevanceTopicBonus:   0.1,
		RelevanceTagsBonus:    0.05,

		SimilarityTopicWeight:   0.4,
		SimilarityContentWeight: 0.4,
		SimilarityTypeWeight:    0.2,
		SimilarityThreshold:     0.7,
		MaxAutoLinks:            3,

		QueryContentWeight: 0.3,
		QueryTopicWeight:   0.4,
		QuerySubjectWeight: 0.2,
		QueryTagWeight:     0.25,
		QueryQualityWeight: 0.2,

		KnowledgeCandidateThreshold: 0.8,
	}
}

// QualityScore computes the creation-time quality heuristic for an
// interaction. The result is clamped to [0,1].
func (p *ScoringPolicy) QualityScore(in *Interaction) float64 {
	score := 0.0

	if len(in.Content) > p.MinContentLength {
		score += p.QualityContentBonus
	}
	if in.Complexity == "complex" {
		score += p.QualityComplexityBonus
	}
	if in.Sentiment == "positive" {
		score += p.QualitySentimentBonus
	}
	if in.Response != nil {
		score += p.QualityResponseBonus
		if in.Response.Confidence > p.ConfidenceThreshold {
			score += p.QualityConfidenceBonus
		}
		if in.Response.ProcessingTimeMS > 0 && in.Response.ProcessingTimeMS < p.FastProcessingMS {
			score += p.QualitySignalBonus
		}
		if in.Response.TokensUsed > 0 && in.Response.TokensUsed < p.LowTokenUse {
			score += p.QualitySignalBonus
		}
	}
	if in.LearningObjective != "" {
		score += p.QualityObjectiveBonus
	}
	if in.Topic != "" {
		score += p.QualitySignalBonus
	}

	return clamp01(score)
}

// RelevanceScore computes the stored baseline relevance of a memory from
// its priority, type and field presence. Clamped to [0,1].
func (p *ScoringPolicy) RelevanceScore(req *StoreRequest) float64 {
	score := p.PriorityWeights[req.Priority] + p.TypeWeights[req.Type]

	if req.Interaction.Content != "" {
		score += p.RelevanceContentBonus
	}
	if req.Interaction.Topic != "" {
		score += p.RelevanceTopicBonus
	}
	if len(req.Tags) > 0 {
		score += p.RelevanceTagsBonus
	}

	return clamp01(score)
}

// Similarity scores how alike two memories are: shared topic, content
// token overlap and matching type, weighted and summed.
func (p *ScoringPolicy) Similarity(a, b *Memory) float64 {
	score := 0.0

	if a.Interaction.Topic != "" && strings.EqualFold(a.Interaction.Topic, b.Interaction.Topic) {
		score += p.SimilarityTopicWeight
	}
	score += p.SimilarityContentWeight * jaccard(
		tokenize(a.Interaction.Content),
		tokenize(b.Interaction.Content),
	)
	if a.Type == b.Type {
		score += p.SimilarityTypeWeight
	}

	return score
}

// QueryRelevance scores a memory against a free-text search query. Falls
// back to the stored relevance when the query is empty.
func (p *ScoringPolicy) QueryRelevance(m *Memory, query string) float64 {
	if query == "" {
		return m.RelevanceScore
	}

	queryTokens := tokenize(query)
	score := p.QueryContentWeight * overlapRatio(queryTokens, tokenize(m.Interaction.Content))

	lowerQuery := normalizeContent(query)
	if m.Interaction.Topic != "" && strings.Contains(lowerQuery, strings.ToLower(m.Interaction.Topic)) {
		score += p.QueryTopicWeight
	}
	if m.Interaction.Subject != "" && strings.Contains(lowerQuery, strings.ToLower(m.Interaction.Subject)) {
		score += p.QuerySubjectWeight
	}
	for _, tag := range m.Tags {
		if tag == "" {
			continue
		}
		lowerTag := strings.ToLower(tag)
		if strings.Contains(lowerQuery, lowerTag) || strings.Contains(lowerTag, lowerQuery) {
			score += p.QueryTagWeight / float64(len(m.Tags))
		}
	}
	score += p.QueryQualityWeight * m.QualityScore

	return clamp01(score)
}

// reverseLinkType maps a link type to its reverse edge type. Every type
// currently reverses to itself.
func reverseLinkType(t LinkType) LinkType {
	return t
}

// normalizeContent lowercases and collapses whitespace for comparison.
func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenize splits content into a lowercase token set, dropping short
// tokens that carry no signal.
func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(s)) {
		token := strings.Trim(field, ".,;:!?\"'()[]")
		if len(token) < 3 {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}

// jaccard returns intersection over union, zero when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// overlapRatio returns the fraction of query tokens present in the
// candidate token set.
func overlapRatio(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for token := range query {
		if _, ok := candidate[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
