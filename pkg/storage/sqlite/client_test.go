package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnware/studyctx/pkg/storage"
	"github.com/learnware/studyctx/pkg/storage/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleMemoryRow(id int64, userID string, now time.Time) *storage.MemoryRow {
	return &storage.MemoryRow{
		ID:             id,
		UserID:         userID,
		ConversationID: "conv_1",
		MemoryType:     "user_query",
		Interaction:    json.RawMessage(`{"content":"what is osmosis"}`),
		QualityScore:   0.4,
		RelevanceScore: 0.5,
		Priority:       "medium",
		Retention:      "short_term",
		ExpiresAt:      now.Add(7 * 24 * time.Hour),
		Tags:           []string{"biology"},
		Links:          []storage.LinkRow{{TargetID: 99, Type: "similar"}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryRowRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	row := sampleMemoryRow(1, "user_1", now)
	require.NoError(t, client.InsertMemory(ctx, row))

	got, err := client.GetMemory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, row.UserID, got.UserID)
	assert.Equal(t, row.MemoryType, got.MemoryType)
	assert.JSONEq(t, string(row.Interaction), string(got.Interaction))
	assert.Equal(t, row.Tags, got.Tags)
	assert.Equal(t, row.Links, got.Links)
	assert.InDelta(t, row.QualityScore, got.QualityScore, 1e-9)

	got.QualityScore = 0.9
	require.NoError(t, client.UpdateMemory(ctx, got))
	updated, err := client.GetMemory(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, updated.QualityScore, 1e-9)

	require.NoError(t, client.DeleteMemory(ctx, 1))
	_, err = client.GetMemory(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListMemoriesFiltering(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := sampleMemoryRow(1, "user_1", now)
	second := sampleMemoryRow(2, "user_1", now.Add(time.Hour))
	second.Tags = []string{"math"}
	second.MemoryType = "insight"
	other := sampleMemoryRow(3, "user_2", now)

	require.NoError(t, client.InsertMemory(ctx, first))
	require.NoError(t, client.InsertMemory(ctx, second))
	require.NoError(t, client.InsertMemory(ctx, other))

	rows, err := client.ListMemories(ctx, &storage.MemoryFilter{UserID: "user_1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].ID, "results ordered newest first")

	rows, err = client.ListMemories(ctx, &storage.MemoryFilter{
		UserID: "user_1",
		Tags:   []string{"math"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].ID)

	rows, err = client.ListMemories(ctx, &storage.MemoryFilter{
		UserID: "user_1",
		Types:  []string{"insight"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = client.ListMemories(ctx, &storage.MemoryFilter{
		UserID: "user_1",
		Now:    now.Add(8 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Empty(t, rows, "expired rows are excluded when a reference time is set")
}

func TestDeleteExpiredMemories(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	expired := sampleMemoryRow(1, "user_1", now)
	expired.ExpiresAt = now.Add(-time.Hour)
	alive := sampleMemoryRow(2, "user_1", now)

	require.NoError(t, client.InsertMemory(ctx, expired))
	require.NoError(t, client.InsertMemory(ctx, alive))

	removed, err := client.DeleteExpiredMemories(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = client.GetMemory(ctx, 2)
	assert.NoError(t, err)
}

func TestEntryAndSourceRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	src := &storage.SourceRow{
		ID:                 10,
		Title:              "Textbook",
		Reliability:        0.9,
		VerificationStatus: "verified",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, client.InsertSource(ctx, src))

	entry := &storage.KnowledgeRow{
		ID:                 20,
		SourceID:           10,
		Title:              "Osmosis",
		Content:            "osmosis moves water across membranes",
		ContentType:        "facts",
		Subject:            "biology",
		Topics:             []string{"osmosis", "cells"},
		Difficulty:         2,
		Confidence:         0.8,
		EducationalValue:   0.7,
		VerificationStatus: "verified",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, client.InsertEntry(ctx, entry))

	got, err := client.GetEntry(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, entry.Content, got.Content)
	assert.Equal(t, entry.Topics, got.Topics)

	rows, err := client.ListEntries(ctx, &storage.EntryFilter{
		Subjects: []string{"biology"},
		Topics:   []string{"osmosis"},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = client.ListEntries(ctx, &storage.EntryFilter{Topics: []string{"algebra"}})
	require.NoError(t, err)
	assert.Empty(t, rows)

	sources, err := client.ListSources(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, src.Title, sources[0].Title)
}

func TestRelationsRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rel := &storage.RelationRow{
		ID:           1,
		EntryID:      20,
		RelatedID:    21,
		RelationType: "prerequisite",
		CreatedAt:    now,
	}
	require.NoError(t, client.InsertRelation(ctx, rel))

	relations, err := client.ListRelations(ctx, 20)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, int64(21), relations[0].RelatedID)

	relations, err = client.ListRelations(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, relations)
}
