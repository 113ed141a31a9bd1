package ratelimit

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/spaarke-dev/sdap-bff/authzhttp"
	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

// Limiter holds one bucket registry per policy. Safe for concurrent use; one
// process-wide Limiter is constructed at the composition root.
type Limiter struct {
	policies map[string]Policy

	mu      sync.Mutex
	buckets map[string]map[string]*bucket // policy name -> principalKey -> bucket
}

// New builds a Limiter over the given policy set.
func New(policies map[string]Policy) *Limiter {
	return &Limiter{policies: policies, buckets: make(map[string]map[string]*bucket)}
}

func (l *Limiter) bucketFor(policyName, key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	perPolicy, ok := l.buckets[policyName]
	if !ok {
		perPolicy = make(map[string]*bucket)
		l.buckets[policyName] = perPolicy
	}
	b, ok := perPolicy[key]
	if !ok {
		b = &bucket{}
		perPolicy[key] = b
	}
	return b
}

// Middleware returns Echo middleware enforcing policyName. Keying follows
// §4.I: the principal's userId when authenticated, otherwise remote address.
func (l *Limiter) Middleware(policyName string) echo.MiddlewareFunc {
	policy, ok := l.policies[policyName]
	if !ok {
		policy = Policy{Name: policyName, Strategy: TokenBucket, Capacity: 10, RefillRate: 1}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := principalKey(c)
			b := l.bucketFor(policy.Name, key)

			ok, retryAfter := b.allow(policy, time.Now())
			if !ok {
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				return sdaperr.New(sdaperr.RateLimited, "rate limit exceeded for policy "+policy.Name).
					WithRetryAfter(seconds)
			}

			if policy.Strategy == Concurrency {
				defer b.release(policy)
			}
			return next(c)
		}
	}
}

func principalKey(c echo.Context) string {
	if p, ok := authzhttp.GetPrincipal(c); ok && p != nil && p.UserID != "" {
		return "user:" + p.UserID
	}
	return "addr:" + c.RealIP()
}
