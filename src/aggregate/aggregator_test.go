package aggregate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsift/secsift/src/models"
)

func TestAggregate_OrdersByChunkIndex(t *testing.T) {
	// Completion order is scrambled; output order must follow chunk index.
	results := []models.ChunkResult{
		{ChunkIndex: 4, Success: true, Response: "part four"},
		{ChunkIndex: 0, Success: true, Response: "part zero"},
		{ChunkIndex: 2, Success: true, Response: "part two"},
	}

	res := Aggregate(results, StrategyConcat, time.Second)
	require.True(t, res.Success)
	assert.Equal(t, "part zero"+Delimiter+"part two"+Delimiter+"part four", res.Text)
}

func TestAggregate_PartialFailure(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 0, Success: true, Response: "a", Latency: 100 * time.Millisecond},
		{ChunkIndex: 1, Error: "provider call failed (status 500)", Latency: 300 * time.Millisecond},
		{ChunkIndex: 2, Success: true, Response: "c", Latency: 200 * time.Millisecond},
		{ChunkIndex: 3, Error: "timeout", Latency: 400 * time.Millisecond},
		{ChunkIndex: 4, Success: true, Response: "e", Latency: 100 * time.Millisecond},
	}

	res := Aggregate(results, StrategyConcat, 2*time.Second)
	assert.True(t, res.Success, "partial failure still counts as success")
	assert.Equal(t, "a"+Delimiter+"c"+Delimiter+"e", res.Text)

	assert.Equal(t, 5, res.Stats.TotalChunks)
	assert.Equal(t, 3, res.Stats.SuccessfulChunks)
	assert.Equal(t, 2, res.Stats.FailedChunks)
	assert.InDelta(t, 60.0, res.Stats.SuccessRate, 0.001)
	assert.Equal(t, 220*time.Millisecond, res.Stats.AvgChunkLatency)
	assert.Equal(t, 2*time.Second, res.Stats.ProcessingTime)
}

func TestAggregate_AllFailedReturnsSentinel(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 0, Error: "boom"},
		{ChunkIndex: 1, Error: "boom"},
	}

	res := Aggregate(results, StrategyConcat, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, NoSuccessSentinel, res.Text)
	assert.Zero(t, res.Stats.SuccessRate)
}

func TestAggregate_NotProcessedCountedSeparately(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 0, Success: true, Response: "a", Latency: 50 * time.Millisecond},
		{ChunkIndex: 1, NotProcessed: true},
		{ChunkIndex: 2, NotProcessed: true},
	}

	res := Aggregate(results, StrategyConcat, time.Second)
	assert.Equal(t, 1, res.Stats.SuccessfulChunks)
	assert.Equal(t, 2, res.Stats.NotProcessedChunks)
	assert.Zero(t, res.Stats.FailedChunks)
	// Latency averages only over chunks that were actually attempted.
	assert.Equal(t, 50*time.Millisecond, res.Stats.AvgChunkLatency)
}

func TestAggregate_TokenTotals(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 0, Success: true, Response: "a", Usage: models.TokenUsage{InputTokens: 1000, OutputTokens: 200}},
		{ChunkIndex: 1, Success: true, Response: "b", Usage: models.TokenUsage{InputTokens: 1500, OutputTokens: 300}},
	}

	res := Aggregate(results, StrategyConcat, time.Second)
	assert.Equal(t, 2500, res.Stats.TotalInputTokens)
	assert.Equal(t, 500, res.Stats.TotalOutputTokens)
}

func TestAggregate_EmptyInput(t *testing.T) {
	res := Aggregate(nil, StrategyConcat, 0)
	assert.False(t, res.Success)
	assert.Equal(t, NoSuccessSentinel, res.Text)
	assert.Zero(t, res.Stats.TotalChunks)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 1, Success: true, Response: "b"},
		{ChunkIndex: 0, Success: true, Response: "a"},
	}
	Aggregate(results, StrategyConcat, 0)
	assert.Equal(t, 1, results[0].ChunkIndex, "caller's slice must keep completion order")
}

func TestFailures_ExtractsAndSorts(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 3, NotProcessed: true},
		{ChunkIndex: 0, Success: true, Response: "fine"},
		{ChunkIndex: 1, Error: "status 500"},
	}

	failures := Failures(results)
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].ChunkIndex)
	assert.Equal(t, "status 500", failures[0].Error)
	assert.Equal(t, 3, failures[1].ChunkIndex)
	assert.True(t, failures[1].NotProcessed)
}

func TestDelimiter_SurvivesRoundTrip(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 0, Success: true, Response: "first finding"},
		{ChunkIndex: 1, Success: true, Response: "second finding"},
	}
	res := Aggregate(results, StrategyConcat, 0)
	parts := strings.Split(res.Text, Delimiter)
	assert.Equal(t, []string{"first finding", "second finding"}, parts)
}
