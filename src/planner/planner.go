package planner

import (
	"github.com/secsift/secsift/src/models"
	"github.com/secsift/secsift/src/profile"
)

const (
	// MinChunkTokens is the floor below which no chunk is ever planned.
	// When prompt overhead alone eats the window the pipeline proceeds
	// best-effort at this size and lets the provider surface the real limit.
	MinChunkTokens = 500

	// fixedMessageOverhead covers chat message framing tokens.
	fixedMessageOverhead = 100

	// reasoningOverheadFraction of the context window is reserved for hidden
	// thinking tokens on reasoning models.
	reasoningOverheadFraction = 0.05

	DefaultQuotaUtilization = 0.60
	DefaultSafetyMargin     = 0.01
)

// ChunkPlan is the per-request sizing decision: how many data tokens fit in
// one model call after all overheads. Immutable once computed.
type ChunkPlan struct {
	Profile            profile.ModelProfile
	ContextWindow      int
	SystemPromptTokens int
	UserPromptTokens   int
	OutputReserved     int
	ReasoningOverhead  int
	MessageOverhead    int
	QuotaUtilization   float64
	SafetyMargin       float64
	OptimalChunkTokens int
}

// Planner computes chunk budgets from model profiles and prompt sizes.
type Planner struct {
	registry         *profile.Registry
	counter          models.TokenEstimator
	quotaUtilization float64
	safetyMargin     float64
}

func NewPlanner(registry *profile.Registry, counter models.TokenEstimator, quotaUtilization, safetyMargin float64) *Planner {
	if quotaUtilization <= 0 || quotaUtilization > 1 {
		quotaUtilization = DefaultQuotaUtilization
	}
	if safetyMargin < 0 || safetyMargin >= 1 {
		safetyMargin = DefaultSafetyMargin
	}
	return &Planner{
		registry:         registry,
		counter:          counter,
		quotaUtilization: quotaUtilization,
		safetyMargin:     safetyMargin,
	}
}

// Plan sizes one request against a model deployment. It never fails: when
// the prompts alone exceed the window the plan bottoms out at MinChunkTokens
// and downstream provider errors report the real limit.
func (p *Planner) Plan(modelID string, declaredMaxOutput int, systemPrompt, userPrompt string) *ChunkPlan {
	prof := p.registry.Resolve(modelID, declaredMaxOutput)

	plan := &ChunkPlan{
		Profile:            prof,
		ContextWindow:      prof.ContextWindow,
		SystemPromptTokens: p.counter.Count(systemPrompt),
		UserPromptTokens:   p.counter.Count(userPrompt),
		OutputReserved:     prof.MaxOutputTokens,
		MessageOverhead:    fixedMessageOverhead,
		QuotaUtilization:   p.quotaUtilization,
		SafetyMargin:       p.safetyMargin,
	}
	if declaredMaxOutput > 0 && declaredMaxOutput < plan.OutputReserved {
		plan.OutputReserved = declaredMaxOutput
	}
	if prof.Reasoning {
		plan.ReasoningOverhead = int(float64(prof.ContextWindow) * reasoningOverheadFraction)
	}

	overhead := plan.SystemPromptTokens + plan.UserPromptTokens +
		plan.OutputReserved + plan.MessageOverhead + plan.ReasoningOverhead
	available := prof.ContextWindow - overhead

	optimal := int(float64(available) * p.quotaUtilization * (1 - p.safetyMargin))
	if optimal < MinChunkTokens {
		optimal = MinChunkTokens
	}
	plan.OptimalChunkTokens = optimal

	return plan
}
