package optimizer_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnware/studyctx/pkg/builder"
	"github.com/learnware/studyctx/pkg/knowledge"
	"github.com/learnware/studyctx/pkg/optimizer"
)

func newOptimizer() *optimizer.Optimizer {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return optimizer.New(optimizer.WithLogger(logger))
}

// bulkyContext builds a context heavy enough to need real compression.
func bulkyContext() *builder.EnhancedContext {
	sentence := "The cell membrane regulates what enters and leaves the cell. "
	content := strings.Repeat(sentence, 20)

	ec := &builder.EnhancedContext{
		Profile: &builder.Profile{
			UserID:         "student_1",
			StrongSubjects: []string{"biology"},
			WeakSubjects:   []string{"math"},
			LearningStyle:  "visual",
			Preferences:    map[string]string{"pace": "slow", "format": "long-form"},
			RecentTopics:   []string{"cells", "osmosis", "mitosis", "enzymes", "genetics", "ecology", "evolution"},
			TotalSessions:  40,
		},
		CompressionLevel: builder.LevelFull,
	}
	for i := 0; i < 30; i++ {
		ec.Knowledge = append(ec.Knowledge, &knowledge.Entry{
			ID:               int64(i + 1),
			Title:            fmt.Sprintf("Entry %d", i+1),
			Content:          content,
			EducationalValue: float64(i%10) / 10,
			Confidence:       0.8,
		})
	}
	for i := 0; i < 10; i++ {
		ec.History = append(ec.History, builder.ConversationSummary{
			ConversationID: fmt.Sprintf("conv_%d", i+1),
			Summary:        content,
			QualityScore:   float64(i%10) / 10,
			CreatedAt:      time.Now().Add(-time.Duration(i) * time.Hour),
		})
	}
	for i := 0; i < 12; i++ {
		ec.Sources = append(ec.Sources, &knowledge.Source{
			ID:          int64(i + 1),
			Title:       fmt.Sprintf("Source %d", i+1),
			Reliability: float64(i%10) / 10,
		})
	}
	builder.UpdateTokenUsage(ec)
	return ec
}

func TestAllocateTokenBudget(t *testing.T) {
	budget := optimizer.AllocateTokenBudget(1000, optimizer.StrategyBalanced)
	assert.Equal(t, 150, budget.Profile)
	assert.Equal(t, 400, budget.Knowledge)
	assert.Equal(t, 200, budget.Memory)
	assert.Equal(t, 150, budget.Sources)
	assert.Equal(t, 100, budget.History)

	preserving := optimizer.AllocateTokenBudget(1000, optimizer.StrategyQualityPreserving)
	assert.Equal(t, 440, preserving.Knowledge, "quality preserving scales the budget up by 1.1")

	reducing := optimizer.AllocateTokenBudget(1000, optimizer.StrategySizeReducing)
	assert.Equal(t, 320, reducing.Knowledge, "size reducing scales the budget down by 0.8")
}

func TestOptimizeContextValidation(t *testing.T) {
	o := newOptimizer()
	ctx := context.Background()

	_, err := o.OptimizeContext(ctx, nil)
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput)

	_, err = o.OptimizeContext(ctx, &optimizer.OptimizeRequest{
		TokenLimit: 1000,
		Strategy:   optimizer.StrategyBalanced,
	})
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput, "missing context")

	_, err = o.OptimizeContext(ctx, &optimizer.OptimizeRequest{
		Context:    &builder.EnhancedContext{},
		TokenLimit: 50,
		Strategy:   optimizer.StrategyBalanced,
	})
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput, "token limit below the minimum")

	_, err = o.OptimizeContext(ctx, &optimizer.OptimizeRequest{
		Context:    &builder.EnhancedContext{},
		TokenLimit: 1000,
	})
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput, "missing strategy")
}

func TestOptimizeContextReducesTokens(t *testing.T) {
	o := newOptimizer()
	ec := bulkyContext()
	original := ec.TokenUsage.Total
	require.Greater(t, original, 1000)

	result, err := o.OptimizeContext(context.Background(), &optimizer.OptimizeRequest{
		Context:    ec,
		TokenLimit: 100,
		Strategy:   optimizer.StrategySizeReducing,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, result.OptimizedContext.TokenUsage.Total, original)
	assert.NotEmpty(t, result.Tradeoffs)
	assert.Greater(t, result.TokenReduction, 0)
	assert.GreaterOrEqual(t, result.QualityScore, 0.4)
	assert.LessOrEqual(t, result.QualityScore, 1.0)

	// The input context is never mutated.
	assert.Equal(t, original, ec.TokenUsage.Total)
	assert.Len(t, ec.Knowledge, 30)
}

func TestOptimizeContextQualityFloors(t *testing.T) {
	o := newOptimizer()

	result, err := o.OptimizeContext(context.Background(), &optimizer.OptimizeRequest{
		Context:    bulkyContext(),
		TokenLimit: 100,
		Strategy:   optimizer.StrategyQualityPreserving,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.QualityScore, 0.8)

	result, err = o.OptimizeContext(context.Background(), &optimizer.OptimizeRequest{
		Context:    bulkyContext(),
		TokenLimit: 100,
		Strategy:   optimizer.StrategyBalanced,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.QualityScore, 0.6)
}

func TestOptimizeContextEmptyContextFallsThrough(t *testing.T) {
	o := newOptimizer()
	empty := &builder.EnhancedContext{}

	result, err := o.OptimizeContext(context.Background(), &optimizer.OptimizeRequest{
		Context:    empty,
		TokenLimit: 500,
		Strategy:   optimizer.StrategyBalanced,
	})
	require.NoError(t, err, "the optimizer must not fail on a degenerate context")
	require.NotNil(t, result.OptimizedContext)
	assert.Empty(t, result.OptimizedContext.Knowledge)
	assert.Empty(t, result.OptimizedContext.History)
	assert.Zero(t, result.TokenReduction)
}

func TestOptimizeContextBalancedCompressesProfile(t *testing.T) {
	o := newOptimizer()

	result, err := o.OptimizeContext(context.Background(), &optimizer.OptimizeRequest{
		Context:    bulkyContext(),
		TokenLimit: 500,
		Strategy:   optimizer.StrategyBalanced,
	})
	require.NoError(t, err)

	profile := result.OptimizedContext.Profile
	require.NotNil(t, profile)
	assert.Nil(t, profile.Preferences, "balanced strategy drops verbose preference metadata")
	assert.LessOrEqual(t, len(profile.RecentTopics), 5)
}

func TestOptimizePerformanceOrientedOnlyTouchesKnowledge(t *testing.T) {
	o := newOptimizer()
	ec := bulkyContext()

	result, err := o.OptimizeContext(context.Background(), &optimizer.OptimizeRequest{
		Context:    ec,
		TokenLimit: 200,
		Strategy:   optimizer.StrategyPerformanceOriented,
	})
	require.NoError(t, err)

	assert.Len(t, result.OptimizedContext.History, len(ec.History))
	assert.Len(t, result.OptimizedContext.Sources, len(ec.Sources))
	assert.Less(t, len(result.OptimizedContext.Knowledge), len(ec.Knowledge))
	for _, tr := range result.Tradeoffs {
		assert.Equal(t, "knowledge", tr.Component)
	}
}

func TestOptimizeContextResultCached(t *testing.T) {
	o := newOptimizer()
	ec := bulkyContext()

	req := &optimizer.OptimizeRequest{
		Context:    ec,
		TokenLimit: 300,
		Strategy:   optimizer.StrategyBalanced,
	}
	first, err := o.OptimizeContext(context.Background(), req)
	require.NoError(t, err)
	second, err := o.OptimizeContext(context.Background(), req)
	require.NoError(t, err)

	assert.Same(t, first, second, "identical requests within the TTL return the cached result")
}
