package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/secsift/secsift/src/llmerrors"
	"github.com/secsift/secsift/src/models"
)

// Policy drives bounded exponential backoff with jitter around one logical
// operation. Only classified transient failures are reattempted; permanent
// request errors and circuit-open failures propagate immediately without
// consuming attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// Execute runs fn up to MaxAttempts times. Before attempt k>1 it waits
// min(base×2^(k-1), max) plus jitter, or the provider's retry-after hint
// from the previous failure when one was supplied. The final error is
// always surfaced, never swallowed.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) (*models.ModelCallResponse, error)) (*models.ModelCallResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, p.delay(attempt, lastErr)); err != nil {
				return nil, err
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !llmerrors.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (p *Policy) delay(attempt int, lastErr error) time.Duration {
	if hint := llmerrors.RetryAfter(lastErr); hint > 0 {
		return hint
	}
	backoff := p.BaseDelay << uint(attempt-2)
	if backoff > p.MaxDelay || backoff <= 0 {
		backoff = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(p.BaseDelay)))
	return backoff + jitter
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
