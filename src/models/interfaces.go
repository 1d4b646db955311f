package models

import (
	"context"
)

// ModelCaller defines the interface for outbound chat-completion clients
type ModelCaller interface {
	Call(ctx context.Context, req *ModelCallRequest) (*ModelCallResponse, error)
}

// TokenEstimator provides token count estimation for text content.
// Counting is advisory: implementations must return a best-effort estimate
// rather than an error.
type TokenEstimator interface {
	Count(text string) int
}

// CacheStore defines the interface for analysis response caching
type CacheStore interface {
	Get(ctx context.Context, key string) (*AnalyzeResponse, error)
	Set(ctx context.Context, key string, response *AnalyzeResponse) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// HistoryStore persists per-run analysis records
type HistoryStore interface {
	Save(ctx context.Context, record *AnalysisRecord) error
	Get(ctx context.Context, runID string) (*AnalysisRecord, error)
	List(ctx context.Context) ([]*AnalysisRecord, error)
	Delete(ctx context.Context, runID string) error
}
