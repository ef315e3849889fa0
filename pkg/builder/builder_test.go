package builder_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnware/studyctx/pkg/builder"
	"github.com/learnware/studyctx/pkg/knowledge"
	"github.com/learnware/studyctx/pkg/memory"
	sqliteStore "github.com/learnware/studyctx/pkg/storage/sqlite"
)

type fakeActivity struct {
	records []*builder.ActivityRecord
	prefs   *builder.Preferences
	calls   int
}

func (f *fakeActivity) GetActivity(ctx context.Context, userID string) ([]*builder.ActivityRecord, error) {
	f.calls++
	return f.records, nil
}

func (f *fakeActivity) GetPreferences(ctx context.Context, userID string) (*builder.Preferences, error) {
	return f.prefs, nil
}

func newTestBuilder(t *testing.T, activity builder.ActivityProvider) (*builder.Builder, *memory.Store, *knowledge.Base) {
	t.Helper()

	backend, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "builder.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	memories, err := memory.NewStore(backend, memory.WithLogger(logger))
	require.NoError(t, err)
	kb, err := knowledge.NewBase(backend, knowledge.WithLogger(logger))
	require.NoError(t, err)

	b := builder.New(memories, kb, activity, builder.WithLogger(logger))
	return b, memories, kb
}

func sessionActivity(now time.Time) []*builder.ActivityRecord {
	var records []*builder.ActivityRecord
	// Eight strong biology sessions and four weak math sessions within
	// the last four weeks.
	for i := 0; i < 8; i++ {
		records = append(records, &builder.ActivityRecord{
			Subject:         "biology",
			Topic:           "cells",
			Accuracy:        0.9,
			Difficulty:      3,
			DurationMinutes: 30,
			OccurredAt:      now.Add(-time.Duration(i) * 24 * time.Hour),
		})
	}
	for i := 0; i < 4; i++ {
		records = append(records, &builder.ActivityRecord{
			Subject:         "math",
			Topic:           "fractions",
			Accuracy:        0.4,
			Difficulty:      2,
			DurationMinutes: 20,
			OccurredAt:      now.Add(-time.Duration(i) * 48 * time.Hour),
		})
	}
	return records
}

func TestBuildContextProfile(t *testing.T) {
	now := time.Now()
	activity := &fakeActivity{
		records: sessionActivity(now),
		prefs:   &builder.Preferences{LearningStyle: "visual"},
	}
	b, _, _ := newTestBuilder(t, activity)

	ec, err := b.BuildContext(context.Background(), &builder.BuildRequest{
		UserID: "student_1",
		Level:  builder.LevelFull,
	})
	require.NoError(t, err)
	require.NotNil(t, ec.Profile)

	assert.Equal(t, []string{"biology"}, ec.Profile.StrongSubjects)
	assert.Equal(t, []string{"math"}, ec.Profile.WeakSubjects)
	assert.Equal(t, "biology", ec.Profile.MostStudiedSubject)
	assert.Equal(t, 12, ec.Profile.TotalSessions)
	// (8*3 + 4*2) / 12 = 2.67 rounds to 3
	assert.Equal(t, 3, ec.Profile.PreferredComplexity)
	assert.Equal(t, "visual", ec.Profile.LearningStyle)
	assert.InDelta(t, 3.0, ec.Profile.LearningVelocity, 1e-9)
	assert.Equal(t, builder.LevelFull, ec.CompressionLevel)
	assert.Greater(t, ec.TokenUsage.Total, 0)
}

func TestProfileCaching(t *testing.T) {
	activity := &fakeActivity{records: sessionActivity(time.Now())}
	b, _, _ := newTestBuilder(t, activity)
	ctx := context.Background()

	_, err := b.BuildContext(ctx, &builder.BuildRequest{UserID: "student_1"})
	require.NoError(t, err)
	callsAfterFirst := activity.calls

	_, err = b.BuildContext(ctx, &builder.BuildRequest{UserID: "student_1"})
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, activity.calls,
		"second build within the TTL must reuse the cached profile")
}

func TestBuildContextDerivesMarkers(t *testing.T) {
	b, _, kb := newTestBuilder(t, nil)
	ctx := context.Background()

	src, err := kb.AddSource(ctx, &knowledge.Source{Title: "Textbook", Reliability: 0.9})
	require.NoError(t, err)

	_, err = kb.AddEntry(ctx, &knowledge.Entry{
		SourceID:         src.ID,
		Title:            "Photosynthesis",
		Content:          "photosynthesis converts light energy into chemical energy. It happens in chloroplasts.",
		ContentType:      knowledge.ContentTypeFacts,
		Subject:          "biology",
		Confidence:       0.9,
		EducationalValue: 0.8,
	})
	require.NoError(t, err)

	ec, err := b.BuildContext(ctx, &builder.BuildRequest{
		UserID:  "student_1",
		Query:   "photosynthesis",
		Subject: "biology",
		Level:   builder.LevelFull,
	})
	require.NoError(t, err)

	require.NotEmpty(t, ec.Knowledge)
	require.Len(t, ec.FactCheckPoints, 1)
	assert.Contains(t, ec.FactCheckPoints[0], "Photosynthesis:")
	assert.Equal(t, []string{"Photosynthesis"}, ec.ConfidenceMarkers)
	require.Len(t, ec.Sources, 1)
}

func TestBuildContextCompressesToLimit(t *testing.T) {
	b, memories, kb := newTestBuilder(t, nil)
	ctx := context.Background()

	src, err := kb.AddSource(ctx, &knowledge.Source{Title: "Reference", Reliability: 0.8})
	require.NoError(t, err)

	long := "The water cycle moves water between the atmosphere, the surface and underground reservoirs. "
	for i := 0; i < 20; i++ {
		_, err := kb.AddEntry(ctx, &knowledge.Entry{
			SourceID:         src.ID,
			Title:            "Water cycle",
			Content:          long + long + long + long,
			Subject:          "geography",
			Topics:           []string{"water"},
			Confidence:       0.8,
			EducationalValue: 0.7,
		})
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := memories.StoreMemory(ctx, &memory.StoreRequest{
			UserID:         "student_1",
			ConversationID: "conv_" + string(rune('a'+i)),
			Type:           memory.TypeLearningInteraction,
			Interaction:    memory.Interaction{Content: long},
		})
		require.NoError(t, err)
	}

	ec, err := b.BuildContext(ctx, &builder.BuildRequest{
		UserID:     "student_1",
		Query:      "water cycle",
		Level:      builder.LevelLight,
		TokenLimit: 400,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, ec.TokenUsage.Total, 450,
		"fallback compression should bring the context close to the limit")
	total := ec.TokenUsage.Profile + ec.TokenUsage.Knowledge +
		ec.TokenUsage.History + ec.TokenUsage.Sources
	assert.LessOrEqual(t, total, ec.TokenUsage.Total)
}

func TestBuildContextUnknownLevelFallsBack(t *testing.T) {
	b, _, _ := newTestBuilder(t, nil)

	ec, err := b.BuildContext(context.Background(), &builder.BuildRequest{
		UserID: "student_1",
		Level:  builder.Level("bogus"),
	})
	require.NoError(t, err)
	assert.Equal(t, builder.LevelSelective, ec.CompressionLevel)
}

func TestBuildContextRequiresUser(t *testing.T) {
	b, _, _ := newTestBuilder(t, nil)

	_, err := b.BuildContext(context.Background(), &builder.BuildRequest{})
	assert.ErrorIs(t, err, builder.ErrInvalidInput)
}
