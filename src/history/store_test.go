package history

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsift/secsift/src/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client)
}

func record(runID string, createdAt time.Time) *models.AnalysisRecord {
	return &models.AnalysisRecord{
		RunID:      runID,
		Model:      "gpt-4o",
		UserPrompt: "summarize failed logins",
		Analysis:   "three brute-force attempts from the same /24",
		Success:    true,
		ChunkCount: 4,
		CreatedAt:  createdAt,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("run_1", time.Now())))

	got, err := s.Get(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, "run_1", got.RunID)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.True(t, got.Success)
}

func TestStore_GetMissing(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Get(context.Background(), "run_nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, s.Save(ctx, record("run_old", base.Add(-2*time.Hour))))
	require.NoError(t, s.Save(ctx, record("run_new", base)))
	require.NoError(t, s.Save(ctx, record("run_mid", base.Add(-time.Hour))))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "run_new", records[0].RunID)
	assert.Equal(t, "run_mid", records[1].RunID)
	assert.Equal(t, "run_old", records[2].RunID)
}

func TestStore_Delete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("run_1", time.Now())))
	require.NoError(t, s.Delete(ctx, "run_1"))

	_, err := s.Get(ctx, "run_1")
	assert.Error(t, err)
}

func TestStore_LongAnalysisTrimmed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r := record("run_big", time.Now())
	r.Analysis = strings.Repeat("x", maxStoredAnalysis+5000)
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, "run_big")
	require.NoError(t, err)
	assert.Len(t, got.Analysis, maxStoredAnalysis)

	// The caller's record is untouched.
	assert.Len(t, r.Analysis, maxStoredAnalysis+5000)
}
