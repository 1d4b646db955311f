package models

import "time"

type AnalyzeRequest struct {
	Model          string   `json:"model" binding:"required"`
	SystemPrompt   string   `json:"system_prompt"`
	UserPrompt     string   `json:"user_prompt" binding:"required"`
	Data           string   `json:"data,omitempty"`
	FallbackModels []string `json:"fallback_models,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	Temperature    float32  `json:"temperature,omitempty"`
	Stop           []string `json:"stop,omitempty"`
	Priority       string   `json:"priority,omitempty"` // "high", "normal", "low"
	// Stream is accepted for interface compatibility; chunked analyses are
	// aggregated before delivery, so the combined answer is never streamed.
	Stream bool `json:"stream,omitempty"`
}

type AnalyzeResponse struct {
	RunID       string          `json:"run_id"`
	Success     bool            `json:"success"`
	Analysis    string          `json:"analysis"`
	ModelUsed   string          `json:"model_used"`
	ChunkCount  int             `json:"chunk_count"`
	Degraded    bool            `json:"degraded,omitempty"` // chunking fell back to the text strategy
	Stats       *AggregateStats `json:"stats,omitempty"`
	CostMetrics *CostMetrics    `json:"cost_metrics,omitempty"`
	Failures    []ChunkFailure  `json:"failures,omitempty"`
	CacheHit    bool            `json:"cache_hit"`
	Timestamp   time.Time       `json:"timestamp"`
}

type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ObjectRange records which input objects a JSON-aware chunk covers,
// half-open [Start, End).
type ObjectRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Chunk struct {
	Index       int          `json:"index"`
	Text        string       `json:"text"`
	TokenCount  int          `json:"token_count"`
	ObjectRange *ObjectRange `json:"object_range,omitempty"`
	OverBudget  bool         `json:"over_budget,omitempty"` // single unit larger than the budget, emitted alone
	// OverlapLen is the number of leading bytes of Text carried over from
	// the previous chunk for context continuity.
	OverlapLen int `json:"overlap_len,omitempty"`
}

type ChunkResult struct {
	ChunkIndex   int           `json:"chunk_index"`
	Success      bool          `json:"success"`
	Response     string        `json:"response,omitempty"`
	Error        string        `json:"error,omitempty"`
	Usage        TokenUsage    `json:"usage"`
	Latency      time.Duration `json:"latency"`
	Model        string        `json:"model,omitempty"`
	NotProcessed bool          `json:"not_processed,omitempty"` // dispatch deadline hit before this chunk was attempted
}

type ChunkFailure struct {
	ChunkIndex   int    `json:"chunk_index"`
	Error        string `json:"error,omitempty"`
	NotProcessed bool   `json:"not_processed,omitempty"`
}

type AggregateStats struct {
	SuccessfulChunks   int           `json:"successful_chunks"`
	FailedChunks       int           `json:"failed_chunks"`
	NotProcessedChunks int           `json:"not_processed_chunks"`
	TotalChunks        int           `json:"total_chunks"`
	SuccessRate        float64       `json:"success_rate"` // percentage, 0-100
	TotalInputTokens   int           `json:"total_input_tokens"`
	TotalOutputTokens  int           `json:"total_output_tokens"`
	ProcessingTime     time.Duration `json:"processing_time"`
	AvgChunkLatency    time.Duration `json:"avg_chunk_latency"`
}

type CostMetrics struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"` // USD
	Model        string  `json:"model"`
}

// AnalysisRecord is the persisted trace of one analysis run.
type AnalysisRecord struct {
	RunID      string          `json:"run_id"`
	Model      string          `json:"model"`
	UserPrompt string          `json:"user_prompt"`
	Analysis   string          `json:"analysis"`
	Success    bool            `json:"success"`
	ChunkCount int             `json:"chunk_count"`
	Stats      *AggregateStats `json:"stats,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ModelCallRequest is one outbound chat-completion call.
type ModelCallRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
	Stop         []string
	// OmitMaxTokens drops the max_tokens field entirely, required for
	// reasoning and ultra-large-context deployments.
	OmitMaxTokens bool
}

type ModelCallResponse struct {
	Content string
	Usage   TokenUsage
	Quota   QuotaSnapshot
}

// QuotaSnapshot carries the provider's rate-limit telemetry from one
// response. Present is false when the provider sent no rate-limit headers,
// in which case the limiter stays on fixed-bucket behavior.
type QuotaSnapshot struct {
	Present           bool
	RemainingTokens   int
	RemainingRequests int
	ResetTokens       time.Duration
	ResetRequests     time.Duration
}
