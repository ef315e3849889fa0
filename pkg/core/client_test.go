package core_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnware/studyctx/pkg/core"
	"github.com/learnware/studyctx/pkg/knowledge"
	"github.com/learnware/studyctx/pkg/memory"
)

func sqliteConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Database: core.DatabaseConfig{
			Provider: "sqlite",
			Config: map[string]interface{}{
				"db_path": filepath.Join(t.TempDir(), "studyctx.db"),
			},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := sqliteConfig(t)
	assert.NoError(t, cfg.Validate())

	cfg.Database.Provider = "mongodb"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	cfg.Database.Provider = "sqlite"
	cfg.Memory.SimilarityThreshold = 1.2
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidConfig)

	cfg.Memory.SimilarityThreshold = 0.7
	cfg.Context.DefaultTokenLimit = -1
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidConfig)
}

func TestLoadConfigFromJSON(t *testing.T) {
	cfg := &core.Config{
		Database: core.DatabaseConfig{
			Provider: "postgres",
			Config: map[string]interface{}{
				"host": "db.internal",
				"port": float64(5433),
			},
		},
		Memory: core.MemoryConfig{
			CleanupInterval:     time.Hour,
			SimilarityThreshold: 0.8,
		},
		Context: core.ContextConfig{DefaultTokenLimit: 1500},
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", loaded.Database.Provider)
	assert.Equal(t, "db.internal", loaded.Database.Config["host"])
	assert.Equal(t, time.Hour, loaded.Memory.CleanupInterval)
	assert.InDelta(t, 0.8, loaded.Memory.SimilarityThreshold, 1e-9)
	assert.Equal(t, 1500, loaded.Context.DefaultTokenLimit)

	_, err = core.LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := core.NewClient(nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	cfg := sqliteConfig(t)
	cfg.Database.Provider = "oracle"
	_, err = core.NewClient(cfg)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestClientLifecycle(t *testing.T) {
	client, err := core.NewClient(sqliteConfig(t))
	require.NoError(t, err)

	ctx := context.Background()
	stored, err := client.StoreMemory(ctx, &memory.StoreRequest{
		UserID: "user_001",
		Type:   memory.TypeLearningInteraction,
		Interaction: memory.Interaction{
			Content: "mitochondria produce ATP through cellular respiration",
			Topic:   "cellular respiration",
			Subject: "biology",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, stored.Memory)

	results, err := client.SearchMemories(ctx, &memory.SearchRequest{
		UserID: "user_001",
		Query:  "cellular respiration",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stored.Memory.ID, results[0].Memory.ID)

	src, err := client.AddSource(ctx, &knowledge.Source{
		Title:       "Biology Textbook",
		Reliability: 0.9,
	})
	require.NoError(t, err)
	_, err = client.AddEntry(ctx, &knowledge.Entry{
		SourceID: src.ID,
		Title:    "ATP synthesis",
		Content:  "mitochondria produce ATP through cellular respiration",
		Subject:  "biology",
		Topics:   []string{"cellular respiration"},
	})
	require.NoError(t, err)

	hits, err := client.SearchKnowledge(ctx, "cellular respiration", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close(), "close is idempotent")
}

func TestErrorFormat(t *testing.T) {
	err := core.NewError("StoreMemory", core.ErrInvalidInput)
	assert.Equal(t, "studyctx: StoreMemory: invalid input", err.Error())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	assert.Nil(t, core.NewError("StoreMemory", nil))
}
