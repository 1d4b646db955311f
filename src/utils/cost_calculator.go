package utils

import (
	"github.com/secsift/secsift/src/models"
	"github.com/secsift/secsift/src/profile"
)

// CalculateCost prices a run from its summed token usage and the model
// profile's per-1M-token rates.
func CalculateCost(inputTokens, outputTokens int, prof profile.ModelProfile) float64 {
	inputCost := float64(inputTokens) * prof.InputPer1M / 1000000
	outputCost := float64(outputTokens) * prof.OutputPer1M / 1000000
	return inputCost + outputCost
}

// CostMetricsFor builds the response cost block from aggregate stats.
func CostMetricsFor(stats *models.AggregateStats, prof profile.ModelProfile) *models.CostMetrics {
	if stats == nil {
		return nil
	}
	return &models.CostMetrics{
		InputTokens:  stats.TotalInputTokens,
		OutputTokens: stats.TotalOutputTokens,
		TotalTokens:  stats.TotalInputTokens + stats.TotalOutputTokens,
		Cost:         CalculateCost(stats.TotalInputTokens, stats.TotalOutputTokens, prof),
		Model:        prof.Name,
	}
}
