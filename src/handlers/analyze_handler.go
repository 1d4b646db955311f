package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/secsift/secsift/src/aggregate"
	"github.com/secsift/secsift/src/chunker"
	"github.com/secsift/secsift/src/dispatch"
	"github.com/secsift/secsift/src/models"
	"github.com/secsift/secsift/src/planner"
	"github.com/secsift/secsift/src/ratelimit"
	"github.com/secsift/secsift/src/utils"
)

type AnalyzeHandler struct {
	planner    *planner.Planner
	chunker    *chunker.Chunker
	dispatcher *dispatch.Dispatcher
	cache      models.CacheStore
	history    models.HistoryStore

	overlapTokens    int
	defaultFallbacks []string
}

func NewAnalyzeHandler(
	p *planner.Planner,
	ch *chunker.Chunker,
	d *dispatch.Dispatcher,
	cache models.CacheStore,
	history models.HistoryStore,
	overlapTokens int,
	defaultFallbacks []string,
) *AnalyzeHandler {
	return &AnalyzeHandler{
		planner:          p,
		chunker:          ch,
		dispatcher:       d,
		cache:            cache,
		history:          history,
		overlapTokens:    overlapTokens,
		defaultFallbacks: defaultFallbacks,
	}
}

// HandleAnalyze runs the full pipeline for one request: cache check, chunk
// planning, chunking, guarded dispatch, aggregation. Pipeline failures are
// reported in the body with success=false, still as HTTP 200; the only 400
// is a malformed request.
func (h *AnalyzeHandler) HandleAnalyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	startTime := time.Now()

	cacheKey := h.cacheKey(&req)
	if cached, err := h.cache.Get(c.Request.Context(), cacheKey); err == nil && cached != nil {
		cached.CacheHit = true
		c.JSON(http.StatusOK, cached)
		return
	}

	plan := h.planner.Plan(req.Model, req.MaxTokens, req.SystemPrompt, req.UserPrompt)
	chunked := h.chunker.Chunk(req.Data, plan.OptimalChunkTokens, h.overlapTokens)

	fallbacks := req.FallbackModels
	if len(fallbacks) == 0 {
		fallbacks = h.defaultFallbacks
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = plan.OutputReserved
	}

	results := h.dispatcher.Dispatch(c.Request.Context(), &dispatch.Request{
		Chunks:         chunked.Chunks,
		Plan:           plan,
		PrimaryModel:   req.Model,
		FallbackModels: fallbacks,
		SystemPrompt:   req.SystemPrompt,
		UserPrompt:     req.UserPrompt,
		Temperature:    req.Temperature,
		Stop:           req.Stop,
		MaxTokens:      maxTokens,
		Priority:       ratelimit.ParsePriority(req.Priority),
	})

	agg := aggregate.Aggregate(results, aggregate.StrategyConcat, time.Since(startTime))

	response := &models.AnalyzeResponse{
		RunID:       "run_" + uuid.New().String(),
		Success:     agg.Success,
		Analysis:    agg.Text,
		ModelUsed:   modelUsed(results, req.Model),
		ChunkCount:  len(chunked.Chunks),
		Degraded:    chunked.Degraded,
		Stats:       &agg.Stats,
		CostMetrics: utils.CostMetricsFor(&agg.Stats, plan.Profile),
		Failures:    aggregate.Failures(results),
		CacheHit:    false,
		Timestamp:   time.Now(),
	}

	if agg.Success {
		_ = h.cache.Set(c.Request.Context(), cacheKey, response)
	}
	_ = h.history.Save(c.Request.Context(), &models.AnalysisRecord{
		RunID:      response.RunID,
		Model:      req.Model,
		UserPrompt: req.UserPrompt,
		Analysis:   agg.Text,
		Success:    agg.Success,
		ChunkCount: len(chunked.Chunks),
		Stats:      &agg.Stats,
		CreatedAt:  time.Now(),
	})

	c.JSON(http.StatusOK, response)
}

// modelUsed reports the model that produced the majority of successful
// chunks, falling back to the requested one.
func modelUsed(results []models.ChunkResult, requested string) string {
	counts := make(map[string]int)
	for _, r := range results {
		if r.Success && r.Model != "" {
			counts[r.Model]++
		}
	}
	best, bestCount := requested, 0
	for model, n := range counts {
		if n > bestCount {
			best, bestCount = model, n
		}
	}
	return best
}

// cacheKey hashes the full request content so identical analyses are served
// from cache without spending quota.
func (h *AnalyzeHandler) cacheKey(req *models.AnalyzeRequest) string {
	hash := sha256.Sum256([]byte(req.Model + "|" + req.SystemPrompt + "|" + req.UserPrompt + "|" + req.Data))
	return "analysis:" + hex.EncodeToString(hash[:])
}

func (h *AnalyzeHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}
