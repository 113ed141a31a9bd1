package resilience

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// backoffDelay computes the exponential-with-jitter delay for the given
// attempt number, raised to at least the server's Retry-After value when
// the previous response carried one — §4.E: "the next delay MUST be
// max(computedBackoff, Retry-After)".
func backoffDelay(attempt int, prevResp *http.Response) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.3

	computed := b.InitialInterval
	for i := 1; i < attempt; i++ {
		computed = time.Duration(float64(computed) * b.Multiplier)
	}
	computed = jitter(computed, b.RandomizationFactor)

	if prevResp != nil {
		if ra := retryAfterDuration(prevResp); ra > computed {
			return ra
		}
	}
	return computed
}

func jitter(d time.Duration, factor float64) time.Duration {
	delta := float64(d) * factor
	min := float64(d) - delta
	max := float64(d) + delta
	return time.Duration(min + rand.Float64()*(max-min))
}

// retryAfterDuration parses the Retry-After header, supporting both the
// delay-seconds and HTTP-date forms.
func retryAfterDuration(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
