package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/secsift/secsift/src/llmerrors"
	"github.com/secsift/secsift/src/models"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker isolates one failing model deployment. It opens after a run of
// consecutive failures, fails fast while open, lets a single probe through
// after the cooldown, and closes again only when the probe succeeds.
type Breaker struct {
	deployment   string
	threshold    int
	resetTimeout time.Duration
	clk          func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

func NewBreaker(deployment string, threshold int, resetTimeout time.Duration, clk func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	if clk == nil {
		clk = time.Now
	}
	return &Breaker{
		deployment:   deployment,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clk:          clk,
	}
}

// Execute runs fn under the breaker. While open it fails fast with a
// CircuitOpenError carrying the estimated time until the next probe.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (*models.ModelCallResponse, error)) (*models.ModelCallResponse, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}

	resp, err := fn(ctx)
	b.record(err == nil)
	return resp, err
}

// allow decides whether a call may proceed, transitioning OPEN→HALF_OPEN
// once the cooldown has elapsed. Exactly one probe is admitted in HALF_OPEN.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.clk().Sub(b.openedAt)
		if elapsed < b.resetTimeout {
			return &llmerrors.CircuitOpenError{
				Deployment: b.deployment,
				ResetIn:    b.resetTimeout - elapsed,
			}
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return &llmerrors.CircuitOpenError{Deployment: b.deployment, ResetIn: b.resetTimeout}
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.clk()
		}
	case StateHalfOpen:
		b.probeInFlight = false
		if success {
			b.state = StateClosed
			b.failures = 0
			return
		}
		b.state = StateOpen
		b.openedAt = b.clk()
	}
}

// Reset forces the breaker back to CLOSED without waiting for the cooldown,
// e.g. when the dispatcher switches to a fallback deployment.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.state = StateClosed
	b.failures = 0
	b.probeInFlight = false
	b.mu.Unlock()
}

// State reports the current state, for logging and tests.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry tracks one independent breaker per model deployment.
type Registry struct {
	threshold    int
	resetTimeout time.Duration
	clk          func() time.Time

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(threshold int, resetTimeout time.Duration, clk func() time.Time) *Registry {
	return &Registry{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clk:          clk,
		breakers:     make(map[string]*Breaker),
	}
}

// For returns the breaker for a deployment, creating it on first use.
func (r *Registry) For(deployment string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[deployment]
	if !ok {
		b = NewBreaker(deployment, r.threshold, r.resetTimeout, r.clk)
		r.breakers[deployment] = b
	}
	return b
}
