package ratelimit

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/secsift/secsift/src/llmerrors"
	"github.com/secsift/secsift/src/models"
)

type Priority int

// Strict priority classes: a waiting high-priority call is always admitted
// before any waiting normal or low call, regardless of arrival order.
const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// CallOptions tunes admission for one call.
type CallOptions struct {
	Priority        Priority
	EstimatedTokens int
}

// Config mirrors the provider's published per-minute quotas.
type Config struct {
	RequestsPerMinute int
	TokensPerMinute   int // 0 disables the token dimension
	MaxConcurrent     int
	// NearLimitWait bounds the proactive throttle inserted when the last
	// provider response said we are close to the quota edge.
	NearLimitWait time.Duration
}

const (
	// Proactive throttle trips when the provider reports fewer remaining
	// units than these thresholds.
	nearLimitTokens   = 10000
	nearLimitRequests = 10

	// maxThrottleRetries bounds how many consecutive 429s one call absorbs
	// before the throttle error is surfaced to the retry strategy.
	maxThrottleRetries = 6

	// wakeInterval is the coarse poll at which blocked waiters re-check
	// bucket refill.
	wakeInterval = 100 * time.Millisecond
)

// quotaState is the last provider quota telemetry we saw, shared across all
// in-flight calls.
type quotaState struct {
	snapshot   models.QuotaSnapshot
	observedAt time.Time
	// throttleCount grows on consecutive 429s and keys the reactive backoff.
	throttleCount int
}

type waiter struct {
	priority  Priority
	seq       uint64
	tokens    int
	ready     chan struct{}
	cancelled bool
}

// waiterQueue is a strict-priority heap: priority class first, FIFO within
// a class.
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }
func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q waiterQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *waiterQueue) Push(x any)        { *q = append(*q, x.(*waiter)) }
func (q *waiterQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return w
}

// bucket refills continuously at cap/60 units per second up to cap.
type bucket struct {
	cap   int
	level float64
	rate  float64
	last  time.Time
}

func newBucket(capacity int, now time.Time) bucket {
	if capacity <= 0 {
		return bucket{}
	}
	return bucket{cap: capacity, level: float64(capacity), rate: float64(capacity) / 60.0, last: now}
}

func (b *bucket) enabled() bool { return b.cap > 0 }

func (b *bucket) refill(now time.Time) {
	if !b.enabled() || !now.After(b.last) {
		return
	}
	b.level += now.Sub(b.last).Seconds() * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

func (b *bucket) canTake(n int) bool {
	if !b.enabled() || n <= 0 {
		return true
	}
	// An ask larger than the whole bucket is admitted at full level,
	// otherwise it could never run.
	if n > b.cap {
		return b.level >= float64(b.cap)
	}
	return b.level >= float64(n)
}

func (b *bucket) take(n int) {
	if !b.enabled() || n <= 0 {
		return
	}
	b.level -= float64(n)
	if b.level < 0 {
		b.level = 0
	}
}

// Limiter paces outbound model calls against provider per-minute quotas.
// It combines a continuously refilling token bucket per quota dimension, a
// fixed in-flight concurrency ceiling, a strict-priority admission queue,
// proactive slowdown near the observed quota edge, and reactive in-place
// retry of 429 responses. 5xx and network failures are not its business;
// those belong to the retry strategy wrapping it.
type Limiter struct {
	mu        sync.Mutex
	req       bucket
	tok       bucket
	inFlight  int
	maxFlight int
	waiters   waiterQueue
	seq       uint64
	quota     quotaState
	nearWait  time.Duration

	clk    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// NewLimiter constructs a limiter and starts its background wakeup loop.
// Callers own the lifecycle and must Stop it. clk is for tests; nil means
// time.Now.
func NewLimiter(cfg Config, clk func() time.Time) *Limiter {
	if clk == nil {
		clk = time.Now
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.NearLimitWait <= 0 || cfg.NearLimitWait > 5*time.Second {
		cfg.NearLimitWait = 5 * time.Second
	}
	now := clk()
	l := &Limiter{
		req:       newBucket(cfg.RequestsPerMinute, now),
		tok:       newBucket(cfg.TokensPerMinute, now),
		maxFlight: cfg.MaxConcurrent,
		nearWait:  cfg.NearLimitWait,
		clk:       clk,
		stopCh:    make(chan struct{}),
	}
	go l.wakeLoop()
	return l
}

// Stop shuts down the wakeup loop. Pending waiters are released with an
// error the next time they poll.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}

func (l *Limiter) wakeLoop() {
	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.dispatchLocked()
			l.mu.Unlock()
		}
	}
}

// dispatchLocked admits queued waiters in strict priority order while both
// buckets and the concurrency ceiling allow. Head-of-line blocking across
// priority classes is intentional.
func (l *Limiter) dispatchLocked() {
	now := l.clk()
	l.req.refill(now)
	l.tok.refill(now)
	for l.waiters.Len() > 0 {
		w := l.waiters[0]
		if w.cancelled {
			heap.Pop(&l.waiters)
			continue
		}
		if l.inFlight >= l.maxFlight {
			return
		}
		if !l.req.canTake(1) || !l.tok.canTake(w.tokens) {
			return
		}
		l.req.take(1)
		l.tok.take(w.tokens)
		l.inFlight++
		heap.Pop(&l.waiters)
		close(w.ready)
	}
}

func (l *Limiter) acquire(ctx context.Context, opts CallOptions) error {
	l.mu.Lock()
	l.seq++
	w := &waiter{
		priority: opts.Priority,
		seq:      l.seq,
		tokens:   opts.EstimatedTokens,
		ready:    make(chan struct{}),
	}
	heap.Push(&l.waiters, w)
	l.dispatchLocked()
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	case <-l.stopCh:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-w.ready:
		// Granted while we were cancelling; give the slot back.
		l.inFlight--
		l.dispatchLocked()
	default:
		w.cancelled = true
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Canceled
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.inFlight--
	l.dispatchLocked()
	l.mu.Unlock()
}

// Observe folds one response's quota telemetry into the shared state.
func (l *Limiter) Observe(q models.QuotaSnapshot) {
	if !q.Present {
		return
	}
	l.mu.Lock()
	l.quota.snapshot = q
	l.quota.observedAt = l.clk()
	l.mu.Unlock()
}

// nearLimitDelay returns the proactive wait to insert before the next call,
// 0 when the last observation says we have headroom. Distinct from reactive
// 429 handling: this fires before the provider has to reject anything.
func (l *Limiter) nearLimitDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.quota.snapshot
	if !q.Present {
		return 0
	}
	// Stale observations stop influencing admission after a minute.
	if l.clk().Sub(l.quota.observedAt) > time.Minute {
		return 0
	}
	if q.RemainingTokens >= nearLimitTokens && q.RemainingRequests >= nearLimitRequests {
		return 0
	}
	wait := q.ResetTokens
	if q.ResetRequests > wait {
		wait = q.ResetRequests
	}
	if wait <= 0 || wait > l.nearWait {
		wait = l.nearWait
	}
	return wait
}

func (l *Limiter) throttleBackoff(hint time.Duration) time.Duration {
	l.mu.Lock()
	l.quota.throttleCount++
	count := l.quota.throttleCount
	l.mu.Unlock()

	if hint > 0 {
		return hint
	}
	backoff := time.Duration(1<<uint(min(count, 5))) * time.Second
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return backoff + jitter
}

func (l *Limiter) noteSuccess() {
	l.mu.Lock()
	l.quota.throttleCount = 0
	l.mu.Unlock()
}

// Do runs fn once admission is granted, retrying in place on 429. Provider
// quota telemetry on the response is recorded whether the call succeeded or
// not.
func (l *Limiter) Do(ctx context.Context, opts CallOptions, fn func(ctx context.Context) (*models.ModelCallResponse, error)) (*models.ModelCallResponse, error) {
	throttles := 0
	for {
		if err := l.acquire(ctx, opts); err != nil {
			return nil, err
		}
		if delay := l.nearLimitDelay(); delay > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				l.release()
				return nil, err
			}
		}

		resp, err := fn(ctx)
		l.release()
		if resp != nil {
			l.Observe(resp.Quota)
		}

		if err == nil {
			l.noteSuccess()
			return resp, nil
		}
		if !llmerrors.IsThrottle(err) {
			return nil, err
		}

		throttles++
		if throttles > maxThrottleRetries {
			return nil, err
		}
		wait := l.throttleBackoff(llmerrors.RetryAfter(err))
		if serr := sleepCtx(ctx, wait); serr != nil {
			return nil, serr
		}
	}
}

// Snapshot reports current bucket levels and in-flight count, for logging
// and tests.
func (l *Limiter) Snapshot() (requestsAvail, tokensAvail, inFlight int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clk()
	l.req.refill(now)
	l.tok.refill(now)
	return int(l.req.level), int(l.tok.level), l.inFlight
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
