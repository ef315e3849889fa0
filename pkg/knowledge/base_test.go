package knowledge_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnware/studyctx/pkg/knowledge"
	"github.com/learnware/studyctx/pkg/storage"
	sqliteStore "github.com/learnware/studyctx/pkg/storage/sqlite"
)

// countingStore wraps a Store and counts entry list queries, to verify
// that cache hits never touch the backend.
type countingStore struct {
	storage.Store
	listEntryCalls int
}

func (c *countingStore) ListEntries(ctx context.Context, filter *storage.EntryFilter) ([]*storage.KnowledgeRow, error) {
	c.listEntryCalls++
	return c.Store.ListEntries(ctx, filter)
}

func newTestBase(t *testing.T) (*knowledge.Base, *countingStore) {
	t.Helper()

	backend, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "knowledge.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	counting := &countingStore{Store: backend}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	base, err := knowledge.NewBase(counting, knowledge.WithLogger(logger))
	require.NoError(t, err)
	return base, counting
}

func seedSource(t *testing.T, base *knowledge.Base, reliability float64) *knowledge.Source {
	t.Helper()
	src, err := base.AddSource(context.Background(), &knowledge.Source{
		Title:              "Reference Text",
		Reliability:        reliability,
		VerificationStatus: "verified",
	})
	require.NoError(t, err)
	return src
}

func TestSearchKnowledgeRanking(t *testing.T) {
	base, _ := newTestBase(t)
	ctx := context.Background()
	src := seedSource(t, base, 0.9)

	strong, err := base.AddEntry(ctx, &knowledge.Entry{
		SourceID:         src.ID,
		Title:            "Photosynthesis",
		Content:          "photosynthesis converts light energy into chemical energy in chloroplasts",
		ContentType:      knowledge.ContentTypeFacts,
		Subject:          "biology",
		Topics:           []string{"photosynthesis"},
		Confidence:       0.9,
		EducationalValue: 0.9,
	})
	require.NoError(t, err)

	_, err = base.AddEntry(ctx, &knowledge.Entry{
		SourceID:         src.ID,
		Title:            "Pythagorean theorem",
		Content:          "the square of the hypotenuse equals the sum of the squares of the legs",
		ContentType:      knowledge.ContentTypeFacts,
		Subject:          "math",
		Topics:           []string{"geometry"},
		Confidence:       0.9,
		EducationalValue: 0.9,
	})
	require.NoError(t, err)

	hits, err := base.SearchKnowledge(ctx, "photosynthesis light energy", nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, strong.ID, hits[0].Entry.ID)
	assert.Greater(t, hits[0].RelevanceScore, hits[len(hits)-1].RelevanceScore)
	for _, hit := range hits {
		assert.GreaterOrEqual(t, hit.RelevanceScore, 0.0)
		assert.LessOrEqual(t, hit.RelevanceScore, 1.0)
	}
}

func TestSearchKnowledgeCacheCoherence(t *testing.T) {
	base, counting := newTestBase(t)
	ctx := context.Background()
	src := seedSource(t, base, 0.8)

	_, err := base.AddEntry(ctx, &knowledge.Entry{
		SourceID:         src.ID,
		Title:            "Osmosis",
		Content:          "osmosis is the diffusion of water across a semipermeable membrane",
		Subject:          "biology",
		Confidence:       0.8,
		EducationalValue: 0.7,
	})
	require.NoError(t, err)

	filters := &knowledge.SearchFilters{Subjects: []string{"biology"}}
	first, err := base.SearchKnowledge(ctx, "osmosis water", filters)
	require.NoError(t, err)
	callsAfterFirst := counting.listEntryCalls

	second, err := base.SearchKnowledge(ctx, "osmosis water", filters)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, counting.listEntryCalls,
		"cached search must not re-query the store")
	assert.Equal(t, first, second)
}

func TestAddEntryInvalidatesSearchCache(t *testing.T) {
	base, _ := newTestBase(t)
	ctx := context.Background()
	src := seedSource(t, base, 0.8)

	hits, err := base.SearchKnowledge(ctx, "entropy", nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = base.AddEntry(ctx, &knowledge.Entry{
		SourceID:         src.ID,
		Title:            "Entropy",
		Content:          "entropy measures the disorder of a thermodynamic system",
		Subject:          "physics",
		Confidence:       0.8,
		EducationalValue: 0.8,
	})
	require.NoError(t, err)

	hits, err = base.SearchKnowledge(ctx, "entropy", nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1, "new entries must be visible after cache invalidation")
}

func TestValidateFactCorroborated(t *testing.T) {
	base, _ := newTestBase(t)
	ctx := context.Background()
	src := seedSource(t, base, 0.9)

	claim := "water boils at 100 degrees celsius at sea level pressure"
	for i := 0; i < 3; i++ {
		_, err := base.AddEntry(ctx, &knowledge.Entry{
			SourceID:         src.ID,
			Title:            "Boiling point",
			Content:          claim,
			ContentType:      knowledge.ContentTypeFacts,
			Subject:          "chemistry",
			Confidence:       0.9,
			EducationalValue: 0.8,
		})
		require.NoError(t, err)
	}

	result, err := base.ValidateFact(ctx, &knowledge.ValidationRequest{
		Claim:      claim,
		Subject:    "chemistry",
		Strictness: knowledge.StrictnessStrict,
	})
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.Greater(t, result.Confidence, 0.6)
	assert.Equal(t, 3, result.SupportingCount)
	assert.Zero(t, result.ContradictingCount)
	assert.InDelta(t, 0.9, result.SupportingReliability, 1e-9)
}

func TestValidateFactStrictnessFloor(t *testing.T) {
	base, _ := newTestBase(t)
	ctx := context.Background()

	weak := seedSource(t, base, 0.6)
	claim := "glaciers store most of the world's fresh water"
	_, err := base.AddEntry(ctx, &knowledge.Entry{
		SourceID:   weak.ID,
		Title:      "Glaciers",
		Content:    claim,
		Subject:    "geography",
		Confidence: 0.7,
	})
	require.NoError(t, err)

	strict, err := base.ValidateFact(ctx, &knowledge.ValidationRequest{
		Claim:      claim,
		Strictness: knowledge.StrictnessStrict,
	})
	require.NoError(t, err)
	assert.False(t, strict.IsValid, "a 0.6 reliability source must not count under strict validation")
	assert.Zero(t, strict.SupportingCount)

	lenient, err := base.ValidateFact(ctx, &knowledge.ValidationRequest{
		Claim:      claim,
		Strictness: knowledge.StrictnessLenient,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, lenient.SupportingCount)
}

func TestRelationsAndStatistics(t *testing.T) {
	base, _ := newTestBase(t)
	ctx := context.Background()
	src := seedSource(t, base, 0.85)

	first, err := base.AddEntry(ctx, &knowledge.Entry{
		SourceID: src.ID,
		Title:    "Derivatives",
		Content:  "the derivative measures an instantaneous rate of change",
		Subject:  "math",
	})
	require.NoError(t, err)

	second, err := base.AddEntry(ctx, &knowledge.Entry{
		SourceID: src.ID,
		Title:    "Limits",
		Content:  "a limit describes the value a function approaches",
		Subject:  "math",
	})
	require.NoError(t, err)

	_, err = base.AddRelation(ctx, first.ID, second.ID, "prerequisite")
	require.NoError(t, err)

	related, err := base.GetRelatedFacts(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, second.ID, related[0].ID)

	stats, err := base.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.TotalSources)
	assert.Equal(t, 2, stats.EntriesBySubject["math"])
	assert.InDelta(t, 0.85, stats.AverageReliability, 1e-9)
}

func TestUpdateSourceVerification(t *testing.T) {
	base, _ := newTestBase(t)
	ctx := context.Background()
	src := seedSource(t, base, 0.5)

	updated, err := base.UpdateSourceVerification(ctx, src.ID, "verified", 0.95)
	require.NoError(t, err)
	assert.Equal(t, "verified", updated.VerificationStatus)
	assert.InDelta(t, 0.95, updated.Reliability, 1e-9)

	_, err = base.UpdateSourceVerification(ctx, src.ID, "verified", 1.5)
	assert.ErrorIs(t, err, knowledge.ErrInvalidInput)
}
