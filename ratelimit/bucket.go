package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket is the per-key state one policy maintains. Exactly one of the
// embedded strategy fields is populated, matching the owning Policy's
// Strategy.
type bucket struct {
	mu sync.Mutex

	// sliding-window: timestamps of requests still inside the window.
	hits []time.Time

	// token-bucket: golang.org/x/time/rate does the heavy lifting, the same
	// library the teacher wires into its global Echo rate limiter.
	limiter *rate.Limiter

	// concurrency: count of in-flight requests.
	inFlight    int
	maxInFlight int

	// fixed-window: wall-clock aligned counter, reset when the window rolls.
	windowStart time.Time
	windowCount int
}

// allow evaluates the bucket under p's strategy and returns (ok, retryAfter).
// retryAfter is the caller's best estimate of when capacity frees up; it is
// zero when unknown or not applicable.
func (b *bucket) allow(p Policy, now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch p.Strategy {
	case SlidingWindow:
		return b.allowSlidingWindow(p, now)
	case TokenBucket:
		return b.allowTokenBucket(p, now)
	case Concurrency:
		return b.allowConcurrency(p)
	case FixedWindow:
		return b.allowFixedWindow(p, now)
	default:
		return true, 0
	}
}

// release returns in-flight capacity acquired by a Concurrency-strategy
// allow. It is a no-op for every other strategy.
func (b *bucket) release(p Policy) {
	if p.Strategy != Concurrency {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight > 0 {
		b.inFlight--
	}
}

func (b *bucket) allowSlidingWindow(p Policy, now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-p.Window)
	kept := b.hits[:0]
	for _, h := range b.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	b.hits = kept

	if len(b.hits) >= p.Limit {
		oldest := b.hits[0]
		return false, oldest.Add(p.Window).Sub(now)
	}
	b.hits = append(b.hits, now)
	return true, 0
}

func (b *bucket) allowTokenBucket(p Policy, now time.Time) (bool, time.Duration) {
	if b.limiter == nil {
		b.limiter = rate.NewLimiter(rate.Limit(p.RefillRate), p.Capacity)
	}
	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (b *bucket) allowConcurrency(p Policy) (bool, time.Duration) {
	if b.inFlight >= p.MaxInFlight {
		return false, time.Second
	}
	b.inFlight++
	return true, 0
}

func (b *bucket) allowFixedWindow(p Policy, now time.Time) (bool, time.Duration) {
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= p.Window {
		b.windowStart = now.Truncate(p.Window)
		b.windowCount = 0
	}
	if b.windowCount >= p.Limit {
		return false, b.windowStart.Add(p.Window).Sub(now)
	}
	b.windowCount++
	return true, 0
}
