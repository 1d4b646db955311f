package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/secsift/secsift/src/models"
)

// Delimiter separates per-chunk responses in the combined answer.
const Delimiter = "\n\n---\n\n"

// NoSuccessSentinel is returned instead of an empty string when every chunk
// failed, so callers always have something presentable.
const NoSuccessSentinel = "no successful responses"

type Strategy string

const (
	// StrategyConcat joins successful responses in chunk order.
	StrategyConcat Strategy = "concat"
)

// Result is the combined answer plus its accounting.
type Result struct {
	Text    string
	Success bool
	Stats   models.AggregateStats
}

// Aggregate merges per-chunk results into one answer. Results may arrive in
// completion order; they are re-ordered by chunk index before joining.
// Partial failure is not an error: the text covers whatever succeeded and
// the stats carry the failure accounting.
func Aggregate(results []models.ChunkResult, strategy Strategy, processingTime time.Duration) *Result {
	ordered := append([]models.ChunkResult(nil), results...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})

	stats := models.AggregateStats{
		TotalChunks:    len(ordered),
		ProcessingTime: processingTime,
	}

	var parts []string
	var latencySum time.Duration
	attempted := 0
	for _, r := range ordered {
		switch {
		case r.Success:
			stats.SuccessfulChunks++
			parts = append(parts, r.Response)
		case r.NotProcessed:
			stats.NotProcessedChunks++
		default:
			stats.FailedChunks++
		}
		stats.TotalInputTokens += r.Usage.InputTokens
		stats.TotalOutputTokens += r.Usage.OutputTokens
		if !r.NotProcessed {
			latencySum += r.Latency
			attempted++
		}
	}

	if stats.TotalChunks > 0 {
		stats.SuccessRate = float64(stats.SuccessfulChunks) / float64(stats.TotalChunks) * 100
	}
	if attempted > 0 {
		stats.AvgChunkLatency = latencySum / time.Duration(attempted)
	}

	res := &Result{Stats: stats}
	if stats.SuccessfulChunks == 0 {
		res.Text = NoSuccessSentinel
		return res
	}

	res.Success = true
	switch strategy {
	case StrategyConcat:
		res.Text = strings.Join(parts, Delimiter)
	default:
		res.Text = strings.Join(parts, Delimiter)
	}
	return res
}

// Failures extracts the per-chunk failure accounting for the response body.
func Failures(results []models.ChunkResult) []models.ChunkFailure {
	var failures []models.ChunkFailure
	for _, r := range results {
		if r.Success {
			continue
		}
		failures = append(failures, models.ChunkFailure{
			ChunkIndex:   r.ChunkIndex,
			Error:        r.Error,
			NotProcessed: r.NotProcessed,
		})
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].ChunkIndex < failures[j].ChunkIndex
	})
	return failures
}
