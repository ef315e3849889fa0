package memory_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnware/studyctx/pkg/memory"
	sqliteStore "github.com/learnware/studyctx/pkg/storage/sqlite"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*memory.Store, *fakeClock) {
	t.Helper()

	backend, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "memories.db"),
	})
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := memory.NewStore(backend,
		memory.WithClock(clk.Now),
		memory.WithLogger(logger),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, clk
}

func TestStoreAndSearchRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	stored, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID: "user_1",
		Type:   memory.TypeLearningInteraction,
		Interaction: memory.Interaction{
			Content: "photosynthesis converts light into energy",
			Topic:   "photosynthesis",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, stored.Memory)
	assert.GreaterOrEqual(t, stored.Memory.QualityScore, 0.0)
	assert.LessOrEqual(t, stored.Memory.QualityScore, 1.0)
	assert.GreaterOrEqual(t, stored.Memory.RelevanceScore, 0.0)
	assert.LessOrEqual(t, stored.Memory.RelevanceScore, 1.0)

	results, err := store.SearchMemories(ctx, &memory.SearchRequest{
		UserID: "user_1",
		Query:  "photosynthesis",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stored.Memory.ID, results[0].Memory.ID)
	assert.Greater(t, results[0].RelevanceScore, 0.0)
	require.NotEmpty(t, results[0].Snippets)
	assert.Contains(t, strings.ToLower(results[0].Snippets[0]), "photosynthesis")
}

func TestSearchRespectsExpiry(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	_, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID:    "user_1",
		Type:      memory.TypeUserQuery,
		Retention: memory.RetentionSession,
		Interaction: memory.Interaction{
			Content: "what is the powerhouse of the cell",
		},
	})
	require.NoError(t, err)

	clk.Advance(23 * time.Hour)
	results, err := store.SearchMemories(ctx, &memory.SearchRequest{UserID: "user_1"})
	require.NoError(t, err)
	assert.Len(t, results, 1, "session memory should still be visible at 23h")

	clk.Advance(2 * time.Hour)
	results, err = store.SearchMemories(ctx, &memory.SearchRequest{UserID: "user_1"})
	require.NoError(t, err)
	assert.Empty(t, results, "session memory should be excluded at 25h")

	results, err = store.SearchMemories(ctx, &memory.SearchRequest{
		UserID:         "user_1",
		IncludeExpired: true,
	})
	require.NoError(t, err)
	assert.Len(t, results, 1, "expired memory should be visible with IncludeExpired")
}

func TestLinkMemoriesIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Dissimilar content so post-store auto-linking stays out of the way.
	a, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID: "user_1",
		Type:   memory.TypeUserQuery,
		Interaction: memory.Interaction{
			Content: "how do plants absorb sunlight",
			Topic:   "botany",
		},
	})
	require.NoError(t, err)

	b, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID: "user_1",
		Type:   memory.TypeInsight,
		Interaction: memory.Interaction{
			Content: "matrix multiplication is not commutative",
			Topic:   "linear algebra",
		},
	})
	require.NoError(t, err)

	req := &memory.LinkRequest{
		SourceID:      a.Memory.ID,
		TargetID:      b.Memory.ID,
		LinkType:      memory.LinkSimilar,
		Bidirectional: true,
	}
	_, err = store.LinkMemories(ctx, req)
	require.NoError(t, err)
	_, err = store.LinkMemories(ctx, req)
	require.NoError(t, err)

	source, err := store.GetMemory(ctx, a.Memory.ID)
	require.NoError(t, err)
	target, err := store.GetMemory(ctx, b.Memory.ID)
	require.NoError(t, err)

	require.Len(t, source.Links, 1)
	assert.Equal(t, b.Memory.ID, source.Links[0].TargetID)
	assert.Equal(t, memory.LinkSimilar, source.Links[0].Type)

	require.Len(t, target.Links, 1)
	assert.Equal(t, a.Memory.ID, target.Links[0].TargetID)
	assert.Equal(t, memory.LinkSimilar, target.Links[0].Type)

	assert.True(t, source.Metadata.CrossConversationLinked)
	assert.True(t, target.Metadata.CrossConversationLinked)
}

func TestAutoLinkSimilarMemories(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID: "user_1",
		Type:   memory.TypeLearningInteraction,
		Interaction: memory.Interaction{
			Content: "photosynthesis converts light energy into chemical energy",
			Topic:   "photosynthesis",
		},
	})
	require.NoError(t, err)

	second, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID: "user_1",
		Type:   memory.TypeLearningInteraction,
		Interaction: memory.Interaction{
			Content: "photosynthesis converts light energy into chemical energy",
			Topic:   "photosynthesis",
		},
	})
	require.NoError(t, err)
	require.Contains(t, second.AutoLinkedIDs, first.Memory.ID)

	linked, err := store.GetMemory(ctx, first.Memory.ID)
	require.NoError(t, err)
	assert.True(t, linked.HasLink(second.Memory.ID, memory.LinkSimilar))
}

func TestCleanupPreservesHighPriority(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	important, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID:    "user_1",
		Type:      memory.TypeInsight,
		Priority:  memory.PriorityHigh,
		Retention: memory.RetentionPermanent,
		Interaction: memory.Interaction{
			Content: "the student struggles with integration by parts",
			Topic:   "calculus",
		},
	})
	require.NoError(t, err)

	stale, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID:    "user_1",
		Type:      memory.TypeUserQuery,
		Priority:  memory.PriorityLow,
		Retention: memory.RetentionPermanent,
		Interaction: memory.Interaction{
			Content: "reminder about tomorrow's quiz schedule",
		},
	})
	require.NoError(t, err)

	clk.Advance(40 * 24 * time.Hour)

	result, err := store.OptimizeMemories(ctx, &memory.OptimizeRequest{
		UserID:               "user_1",
		OptimizationType:     memory.OptimizeCleanup,
		MaxAgeDays:           30,
		PreserveHighPriority: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	_, err = store.GetMemory(ctx, important.Memory.ID)
	assert.NoError(t, err, "high priority memory must survive age-based cleanup")

	_, err = store.GetMemory(ctx, stale.Memory.ID)
	assert.Error(t, err, "low priority memory past max age should be deleted")
}

func TestCompressionShrinksLongContent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("the mitochondria is basically really just the powerhouse of the cell. ", 12)
	stored, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID:      "user_1",
		Type:        memory.TypeAIResponse,
		Interaction: memory.Interaction{Content: long},
	})
	require.NoError(t, err)
	require.Greater(t, len(long), 500)

	result, err := store.OptimizeMemories(ctx, &memory.OptimizeRequest{
		UserID:           "user_1",
		OptimizationType: memory.OptimizeCompression,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Compressed)
	assert.Greater(t, result.StorageSavedBytes, int64(0))

	compressed, err := store.GetMemory(ctx, stored.Memory.ID)
	require.NoError(t, err)
	assert.True(t, compressed.Metadata.Compressed)
	assert.Less(t, len(compressed.Interaction.Content), len(long))
	assert.NotContains(t, compressed.Interaction.Content, " basically ")

	// A second pass leaves already compressed memories alone.
	again, err := store.OptimizeMemories(ctx, &memory.OptimizeRequest{
		UserID:           "user_1",
		OptimizationType: memory.OptimizeCompression,
	})
	require.NoError(t, err)
	assert.Zero(t, again.Compressed)
}

func TestUpdateMemoryQuality(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	stored, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID: "user_1",
		Type:   memory.TypeAIResponse,
		Interaction: memory.Interaction{
			Content:  "an explanation of osmosis",
			Response: &memory.Response{Content: "osmosis moves water across membranes"},
		},
	})
	require.NoError(t, err)
	base := stored.Memory.QualityScore

	updated, err := store.UpdateMemoryQuality(ctx, stored.Memory.ID, &memory.QualityFeedback{
		UserSatisfaction: 1.0,
	})
	require.NoError(t, err)
	assert.InDelta(t, (base+1.0)/2, updated.QualityScore, 1e-9)
	assert.True(t, updated.Metadata.FeedbackCollected)

	corrected, err := store.UpdateMemoryQuality(ctx, stored.Memory.ID, &memory.QualityFeedback{
		UserSatisfaction: 0.8,
		Corrections:      []string{"the direction of water flow was wrong"},
	})
	require.NoError(t, err)
	assert.InDelta(t, (updated.QualityScore+0.8)/2/2, corrected.QualityScore, 1e-9)
}

func TestGetMemoryAnalytics(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	topics := []string{"algebra", "algebra", "geometry"}
	for _, topic := range topics {
		_, err := store.StoreMemory(ctx, &memory.StoreRequest{
			UserID: "user_1",
			Type:   memory.TypeLearningInteraction,
			Interaction: memory.Interaction{
				Content: "worked through several " + topic + " problems",
				Topic:   topic,
			},
		})
		require.NoError(t, err)
		clk.Advance(time.Hour)
	}

	analytics, err := store.GetMemoryAnalytics(ctx, "user_1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, analytics.TotalMemories)
	assert.Equal(t, 3, analytics.CountByType[memory.TypeLearningInteraction])
	require.NotEmpty(t, analytics.TopTopics)
	assert.Equal(t, "algebra", analytics.TopTopics[0].Topic)
	assert.Equal(t, 2, analytics.TopTopics[0].Count)
	assert.Len(t, analytics.LearningProgress, 3)
	assert.Greater(t, analytics.GrowthRate, 0.0)
	assert.GreaterOrEqual(t, analytics.AverageQuality, 0.0)
	assert.LessOrEqual(t, analytics.AverageQuality, 1.0)
}

func TestSweepExpiredNow(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	_, err := store.StoreMemory(ctx, &memory.StoreRequest{
		UserID:      "user_1",
		Type:        memory.TypeUserQuery,
		Retention:   memory.RetentionSession,
		Interaction: memory.Interaction{Content: "a short lived question"},
	})
	require.NoError(t, err)

	clk.Advance(25 * time.Hour)
	removed, err := store.SweepExpiredNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
