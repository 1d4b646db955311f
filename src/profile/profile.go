package profile

import "strings"

// ModelProfile is the static descriptor for one model family: context
// limits, quota dimensions, behavioral quirks and pricing. Profiles are
// immutable; the registry is built once at process start.
type ModelProfile struct {
	Name            string
	ContextWindow   int
	MaxOutputTokens int
	// Reasoning models burn hidden thinking tokens and do not stream.
	Reasoning bool
	// FixedTemperature models reject any temperature other than the default.
	FixedTemperature bool
	// OmitMaxTokens deployments reject an explicit max_tokens field.
	OmitMaxTokens     bool
	TokensPerMinute   int
	RequestsPerMinute int
	// Pricing per 1M tokens in USD, used for cost accounting only.
	InputPer1M  float64
	OutputPer1M float64
}

// entry pairs a substring pattern with its profile. Slice order is the match
// priority: more specific patterns must come before their prefixes
// ("gpt-4o-mini" before "gpt-4o"), since deployment names are matched by
// substring and would otherwise hit the shorter key first.
type entry struct {
	pattern string
	profile ModelProfile
}

// Registry resolves deployment names to model profiles.
type Registry struct {
	entries []entry
}

// NewRegistry builds the built-in profile table.
func NewRegistry() *Registry {
	return &Registry{entries: []entry{
		{"o4-mini", ModelProfile{
			Name: "o4-mini", ContextWindow: 200000, MaxOutputTokens: 100000,
			Reasoning: true, FixedTemperature: true, OmitMaxTokens: true,
			TokensPerMinute: 200000, RequestsPerMinute: 200,
			InputPer1M: 1.10, OutputPer1M: 4.40,
		}},
		{"o3-mini", ModelProfile{
			Name: "o3-mini", ContextWindow: 200000, MaxOutputTokens: 100000,
			Reasoning: true, FixedTemperature: true, OmitMaxTokens: true,
			TokensPerMinute: 200000, RequestsPerMinute: 200,
			InputPer1M: 1.10, OutputPer1M: 4.40,
		}},
		{"o3", ModelProfile{
			Name: "o3", ContextWindow: 200000, MaxOutputTokens: 100000,
			Reasoning: true, FixedTemperature: true, OmitMaxTokens: true,
			TokensPerMinute: 100000, RequestsPerMinute: 100,
			InputPer1M: 10.00, OutputPer1M: 40.00,
		}},
		{"o1-mini", ModelProfile{
			Name: "o1-mini", ContextWindow: 128000, MaxOutputTokens: 65536,
			Reasoning: true, FixedTemperature: true, OmitMaxTokens: true,
			TokensPerMinute: 150000, RequestsPerMinute: 150,
			InputPer1M: 1.10, OutputPer1M: 4.40,
		}},
		{"o1", ModelProfile{
			Name: "o1", ContextWindow: 200000, MaxOutputTokens: 100000,
			Reasoning: true, FixedTemperature: true, OmitMaxTokens: true,
			TokensPerMinute: 100000, RequestsPerMinute: 100,
			InputPer1M: 15.00, OutputPer1M: 60.00,
		}},
		{"gpt-4.1-mini", ModelProfile{
			Name: "gpt-4.1-mini", ContextWindow: 1047576, MaxOutputTokens: 32768,
			OmitMaxTokens:   true,
			TokensPerMinute: 400000, RequestsPerMinute: 400,
			InputPer1M: 0.40, OutputPer1M: 1.60,
		}},
		{"gpt-4.1", ModelProfile{
			Name: "gpt-4.1", ContextWindow: 1047576, MaxOutputTokens: 32768,
			OmitMaxTokens:   true,
			TokensPerMinute: 300000, RequestsPerMinute: 300,
			InputPer1M: 2.00, OutputPer1M: 8.00,
		}},
		{"gpt-4o-mini", ModelProfile{
			Name: "gpt-4o-mini", ContextWindow: 128000, MaxOutputTokens: 16384,
			TokensPerMinute: 200000, RequestsPerMinute: 300,
			InputPer1M: 0.15, OutputPer1M: 0.60,
		}},
		{"gpt-4o", ModelProfile{
			Name: "gpt-4o", ContextWindow: 128000, MaxOutputTokens: 16384,
			TokensPerMinute: 150000, RequestsPerMinute: 200,
			InputPer1M: 2.50, OutputPer1M: 10.00,
		}},
		{"gpt-4-turbo", ModelProfile{
			Name: "gpt-4-turbo", ContextWindow: 128000, MaxOutputTokens: 4096,
			TokensPerMinute: 80000, RequestsPerMinute: 100,
			InputPer1M: 10.00, OutputPer1M: 30.00,
		}},
		{"gpt-4", ModelProfile{
			Name: "gpt-4", ContextWindow: 8192, MaxOutputTokens: 4096,
			TokensPerMinute: 40000, RequestsPerMinute: 60,
			InputPer1M: 30.00, OutputPer1M: 60.00,
		}},
		{"gpt-35-turbo", ModelProfile{
			Name: "gpt-35-turbo", ContextWindow: 16385, MaxOutputTokens: 4096,
			TokensPerMinute: 120000, RequestsPerMinute: 300,
			InputPer1M: 0.50, OutputPer1M: 1.50,
		}},
		{"gpt-3.5-turbo", ModelProfile{
			Name: "gpt-3.5-turbo", ContextWindow: 16385, MaxOutputTokens: 4096,
			TokensPerMinute: 120000, RequestsPerMinute: 300,
			InputPer1M: 0.50, OutputPer1M: 1.50,
		}},
	}}
}

// Match resolves a deployment name to a profile by case-insensitive
// substring match in table priority order. Deployment names usually embed
// the model family ("prod-gpt-4o-mini-eastus2"), so substring is the right
// relation; the ordering makes ambiguous matches deterministic.
func (r *Registry) Match(deployment string) (ModelProfile, bool) {
	name := strings.ToLower(deployment)
	for _, e := range r.entries {
		if strings.Contains(name, e.pattern) {
			return e.profile, true
		}
	}
	return ModelProfile{}, false
}

// Default synthesizes a conservative profile for an unknown deployment.
// declaredMaxOutput comes from the caller's request, 0 when unstated.
func (r *Registry) Default(deployment string, declaredMaxOutput int) ModelProfile {
	const window = 128000

	out := declaredMaxOutput
	if out <= 0 {
		out = 4096
	}
	if out > window/4 {
		out = window / 4
	}
	return ModelProfile{
		Name:            deployment,
		ContextWindow:   window,
		MaxOutputTokens: out,
		TokensPerMinute: 90000, RequestsPerMinute: 60,
		InputPer1M: 2.50, OutputPer1M: 10.00,
	}
}

// Resolve matches the deployment name, synthesizing a default profile when
// nothing in the table applies.
func (r *Registry) Resolve(deployment string, declaredMaxOutput int) ModelProfile {
	if p, ok := r.Match(deployment); ok {
		return p
	}
	return r.Default(deployment, declaredMaxOutput)
}
