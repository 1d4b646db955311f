package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/secsift/secsift/src/breaker"
	"github.com/secsift/secsift/src/llmerrors"
	"github.com/secsift/secsift/src/models"
	"github.com/secsift/secsift/src/planner"
	"github.com/secsift/secsift/src/ratelimit"
	"github.com/secsift/secsift/src/retry"
)

// Request is one chunked dispatch: the planned chunks plus the model chain
// to run them against. FallbackModels are tried in order when the active
// model keeps failing.
type Request struct {
	Chunks         []models.Chunk
	Plan           *planner.ChunkPlan
	PrimaryModel   string
	FallbackModels []string
	SystemPrompt   string
	UserPrompt     string
	Temperature    float32
	Stop           []string
	MaxTokens      int
	Priority       ratelimit.Priority
}

// Dispatcher runs chunks through the guarded call chain
// breaker(limiter(retry(model call))) in small concurrent batches with
// anti-burst pauses in between. One ChunkResult always comes back per
// chunk; individual chunk failures never abort the rest.
type Dispatcher struct {
	caller   models.ModelCaller
	limiter  *ratelimit.Limiter
	policy   *retry.Policy
	breakers *breaker.Registry

	wallClockBudget time.Duration
	clk             func() time.Time
}

// fallbackChain is the per-dispatch model chain. It is shared by all chunks
// of one request but never across requests.
type fallbackChain struct {
	breakers *breaker.Registry

	mu     sync.Mutex
	models []string
	active int
}

func (f *fallbackChain) current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.models[f.active]
}

// advance switches the remaining dispatch to the next model in the chain
// and resets its breaker so it starts with a clean slate. When a concurrent
// chunk already advanced past failedModel, the switch is treated as done
// and the caller just re-attempts.
func (f *fallbackChain) advance(failedModel string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.models[f.active] != failedModel {
		return f.models[f.active], true
	}
	if f.active+1 >= len(f.models) {
		return "", false
	}
	f.active++
	next := f.models[f.active]
	f.breakers.For(next).Reset()
	return next, true
}

func NewDispatcher(caller models.ModelCaller, limiter *ratelimit.Limiter, policy *retry.Policy, breakers *breaker.Registry, wallClockBudget time.Duration, clk func() time.Time) *Dispatcher {
	if wallClockBudget <= 0 {
		wallClockBudget = 8 * time.Minute
	}
	if clk == nil {
		clk = time.Now
	}
	return &Dispatcher{
		caller:          caller,
		limiter:         limiter,
		policy:          policy,
		breakers:        breakers,
		wallClockBudget: wallClockBudget,
		clk:             clk,
	}
}

// batchSize picks the per-batch concurrency from the average chunk size:
// big chunks go one at a time, small ones up to four in flight.
func batchSize(avgTokens int) int {
	switch {
	case avgTokens >= 20000:
		return 1
	case avgTokens >= 10000:
		return 2
	case avgTokens >= 5000:
		return 3
	default:
		return 4
	}
}

// batchDelay is the anti-burst pause between batches, scaled like batchSize.
func batchDelay(avgTokens int) time.Duration {
	switch {
	case avgTokens >= 20000:
		return 2 * time.Second
	case avgTokens >= 10000:
		return time.Second
	case avgTokens >= 5000:
		return 500 * time.Millisecond
	default:
		return 200 * time.Millisecond
	}
}

// callTimeout scales the hard per-call ceiling with chunk size,
// independently of the dispatch-wide budget.
func callTimeout(chunkTokens int) time.Duration {
	timeout := time.Minute + time.Duration(chunkTokens/1000)*5*time.Second
	if timeout > 4*time.Minute {
		timeout = 4 * time.Minute
	}
	return timeout
}

// Dispatch processes every chunk and returns exactly one result per chunk,
// indexed by chunk order. When the wall-clock budget runs out, remaining
// chunks are reported not-processed rather than failed.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) []models.ChunkResult {
	chain := &fallbackChain{
		breakers: d.breakers,
		models:   append([]string{req.PrimaryModel}, req.FallbackModels...),
	}

	results := make([]models.ChunkResult, len(req.Chunks))
	for i := range results {
		results[i] = models.ChunkResult{ChunkIndex: i, NotProcessed: true}
	}

	avg := averageTokens(req.Chunks)
	size := batchSize(avg)
	delay := batchDelay(avg)
	deadline := d.clk().Add(d.wallClockBudget)

	for start := 0; start < len(req.Chunks); start += size {
		if start > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return results
			}
		}
		// Deadline check happens at batch boundaries only, so in-flight
		// calls are never abandoned mid-flight.
		if !d.clk().Before(deadline) {
			log.Printf("dispatch budget of %s exhausted, %d chunks not processed",
				d.wallClockBudget, len(req.Chunks)-start)
			return results
		}

		end := start + size
		if end > len(req.Chunks) {
			end = len(req.Chunks)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(chunk models.Chunk) {
				defer wg.Done()
				results[chunk.Index] = d.processChunk(ctx, req, chain, chunk, len(req.Chunks))
			}(req.Chunks[i])
		}
		wg.Wait()
	}

	return results
}

// processChunk runs one chunk to a final result, walking down the fallback
// chain when the active model exhausts its retries.
func (d *Dispatcher) processChunk(ctx context.Context, req *Request, chain *fallbackChain, chunk models.Chunk, total int) models.ChunkResult {
	started := d.clk()

	for {
		model := chain.current()
		resp, err := d.callModel(ctx, req, chunk, total, model)
		if err == nil {
			return models.ChunkResult{
				ChunkIndex: chunk.Index,
				Success:    true,
				Response:   resp.Content,
				Usage:      resp.Usage,
				Latency:    d.clk().Sub(started),
				Model:      model,
			}
		}

		if ctx.Err() != nil {
			return models.ChunkResult{
				ChunkIndex: chunk.Index,
				Error:      ctx.Err().Error(),
				Latency:    d.clk().Sub(started),
				Model:      model,
			}
		}

		if next, ok := chain.advance(model); ok {
			log.Printf("chunk %d failed on %s (%v), switching remaining dispatch to %s",
				chunk.Index, model, err, next)
			continue
		}

		return models.ChunkResult{
			ChunkIndex: chunk.Index,
			Error:      err.Error(),
			Latency:    d.clk().Sub(started),
			Model:      model,
		}
	}
}

// callModel executes the guarded chain for one chunk against one model.
// A context-length rejection gets a single reduced-output retry before it
// is surfaced.
func (d *Dispatcher) callModel(ctx context.Context, req *Request, chunk models.Chunk, total int, model string) (*models.ModelCallResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout(chunk.TokenCount))
	defer cancel()

	call := func(maxTokens int) (*models.ModelCallResponse, error) {
		mcr := &models.ModelCallRequest{
			Model:         model,
			SystemPrompt:  req.SystemPrompt,
			UserPrompt:    chunkPrompt(req.UserPrompt, chunk, total),
			MaxTokens:     maxTokens,
			Temperature:   req.Temperature,
			Stop:          req.Stop,
			OmitMaxTokens: req.Plan != nil && req.Plan.Profile.OmitMaxTokens,
		}
		if req.Plan != nil && req.Plan.Profile.FixedTemperature {
			mcr.Temperature = 0
		}

		opts := ratelimit.CallOptions{
			Priority:        req.Priority,
			EstimatedTokens: chunk.TokenCount + maxTokens,
		}

		return d.breakers.For(model).Execute(callCtx, func(ctx context.Context) (*models.ModelCallResponse, error) {
			return d.limiter.Do(ctx, opts, func(ctx context.Context) (*models.ModelCallResponse, error) {
				return d.policy.Execute(ctx, func(ctx context.Context) (*models.ModelCallResponse, error) {
					return d.caller.Call(ctx, mcr)
				})
			})
		})
	}

	resp, err := call(req.MaxTokens)
	if err != nil && llmerrors.IsContextLength(err) && req.MaxTokens > 1024 {
		resp, err = call(req.MaxTokens / 2)
	}
	return resp, err
}

// chunkPrompt frames one chunk for the model, labeling its position so
// cross-chunk references stay interpretable.
func chunkPrompt(userPrompt string, chunk models.Chunk, total int) string {
	if chunk.Text == "" {
		return userPrompt
	}
	if total == 1 {
		return fmt.Sprintf("%s\n\nData:\n%s", userPrompt, chunk.Text)
	}
	return fmt.Sprintf("%s\n\nData (part %d of %d):\n%s", userPrompt, chunk.Index+1, total, chunk.Text)
}

func averageTokens(chunks []models.Chunk) int {
	if len(chunks) == 0 {
		return 0
	}
	sum := 0
	for _, c := range chunks {
		sum += c.TokenCount
	}
	return sum / len(chunks)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
