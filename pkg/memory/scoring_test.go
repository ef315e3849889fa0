package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnware/studyctx/pkg/memory"
)

func TestQualityScoreComponents(t *testing.T) {
	policy := memory.DefaultScoringPolicy()

	minimal := memory.Interaction{Content: "short"}
	assert.Equal(t, 0.0, policy.QualityScore(&minimal))

	rich := memory.Interaction{
		Content:           "a detailed explanation of cellular respiration",
		Complexity:        "complex",
		Sentiment:         "positive",
		Topic:             "respiration",
		LearningObjective: "understand ATP production",
		Response: &memory.Response{
			Content:          "cells make ATP through glycolysis and the Krebs cycle",
			Confidence:       0.9,
			ProcessingTimeMS: 800,
			TokensUsed:       120,
		},
	}
	// 0.1 content + 0.1 complex + 0.1 positive + 0.2 response +
	// 0.1 confidence + 0.1 objective + 0.05 topic + 0.05 fast +
	// 0.05 low tokens = 0.85
	assert.InDelta(t, 0.85, policy.QualityScore(&rich), 1e-9)
}

func TestQualityScoreClamped(t *testing.T) {
	policy := memory.DefaultScoringPolicy()
	policy.QualityResponseBonus = 2.0

	in := memory.Interaction{
		Content:  "long enough content here",
		Response: &memory.Response{Content: "yes"},
	}
	score := policy.QualityScore(&in)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestRelevanceScoreWeights(t *testing.T) {
	policy := memory.DefaultScoringPolicy()

	req := &memory.StoreRequest{
		Type:     memory.TypeInsight,
		Priority: memory.PriorityCritical,
		Interaction: memory.Interaction{
			Content: "insight content",
			Topic:   "algebra",
		},
		Tags: []string{"math"},
	}
	// 0.4 critical + 0.35 insight + 0.1 content + 0.1 topic + 0.05 tags = 1.0
	assert.InDelta(t, 1.0, policy.RelevanceScore(req), 1e-9)

	low := &memory.StoreRequest{
		Type:        memory.TypeAIResponse,
		Priority:    memory.PriorityLow,
		Interaction: memory.Interaction{Content: "reply"},
	}
	// 0.1 low + 0.15 response + 0.1 content = 0.35
	assert.InDelta(t, 0.35, policy.RelevanceScore(low), 1e-9)
}

func TestSimilarityWeights(t *testing.T) {
	policy := memory.DefaultScoringPolicy()

	a := &memory.Memory{
		Type: memory.TypeLearningInteraction,
		Interaction: memory.Interaction{
			Content: "photosynthesis converts light into chemical energy",
			Topic:   "photosynthesis",
		},
	}
	b := &memory.Memory{
		Type: memory.TypeLearningInteraction,
		Interaction: memory.Interaction{
			Content: "photosynthesis converts light into chemical energy",
			Topic:   "photosynthesis",
		},
	}
	// identical topic, content and type
	assert.InDelta(t, 1.0, policy.Similarity(a, b), 1e-9)

	c := &memory.Memory{
		Type: memory.TypeFeedback,
		Interaction: memory.Interaction{
			Content: "derivatives measure instantaneous rates of change",
			Topic:   "calculus",
		},
	}
	assert.Less(t, policy.Similarity(a, c), policy.SimilarityThreshold)
}

func TestExpiryForRetention(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, created.Add(24*time.Hour), memory.ExpiryFor(memory.RetentionSession, created))
	assert.Equal(t, created.Add(7*24*time.Hour), memory.ExpiryFor(memory.RetentionShortTerm, created))
	assert.Equal(t, created.Add(30*24*time.Hour), memory.ExpiryFor(memory.RetentionLongTerm, created))
	assert.Equal(t, created.Add(365*24*time.Hour), memory.ExpiryFor(memory.RetentionPermanent, created))

	// unknown retention falls back to short_term
	assert.Equal(t, created.Add(7*24*time.Hour), memory.ExpiryFor(memory.Retention("bogus"), created))
}
