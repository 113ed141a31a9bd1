// Package resilience implements the Resilience Fabric (component E): an
// HTTP middleware chain composed outermost-to-innermost as
// Timeout -> Retry -> CircuitBreaker -> Transport. The composition root
// installs it on the OBO token-exchange client and on the app-only Graph
// credential's token requests; Graph SDK data requests and the metadata
// store drivers do not go through it.
package resilience

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

// Policy carries the resilience.* recognized configuration options
// (spec §6.4), with the spec's defaults.
type Policy struct {
	Timeout             time.Duration // resilience.timeoutSec, default 30s
	MaxAttempts         int           // resilience.retry.maxAttempts, default 3
	BreakerThreshold    int           // resilience.breaker.failureThreshold, default 5
	BreakerOpenDuration time.Duration // resilience.breaker.breakSec, default 30s
}

// DefaultPolicy returns the spec's documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:             30 * time.Second,
		MaxAttempts:         3,
		BreakerThreshold:    5,
		BreakerOpenDuration: 30 * time.Second,
	}
}

// Transport wraps an inner http.RoundTripper with the resilience chain.
// Construct one per process; it owns the per-host breaker registry.
type Transport struct {
	inner    http.RoundTripper
	policy   Policy
	breakers *breakerRegistry
	log      *logrus.Entry
}

// New builds a resilience-wrapped RoundTripper.
func New(inner http.RoundTripper, policy Policy, log *logrus.Entry) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{inner: inner, policy: policy, breakers: newBreakerRegistry(policy, log), log: log}
}

// RoundTrip implements Timeout -> Retry -> CircuitBreaker -> Transport.
// Auth-time errors (marked via WithAuthTime on the request context) skip
// retry and breaker entirely, per §4.E's "retries and breaker do NOT apply
// to auth-time errors from (C)".
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isAuthTime(req) {
		return t.roundTripOnce(req)
	}

	host := hostOf(req.URL.String())
	breaker := t.breakers.forHost(host)

	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt < t.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, lastResp)
			timer := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
			retryAttempts.WithLabelValues(host).Inc()
		}

		var capturedResp *http.Response
		_, err := breaker.Execute(func() (any, error) {
			resp, err := t.roundTripOnce(req)
			if err != nil {
				return nil, err
			}
			capturedResp = resp
			if retriableStatus(resp.StatusCode) {
				// Count server-side failure statuses against the breaker
				// too — §4.E's breaker opens on consecutive failures, and a
				// string of 503s is as much a failure signal as a network
				// error.
				return nil, sdaperr.New(sdaperr.Unavailable, "retriable status "+http.StatusText(resp.StatusCode))
			}
			return resp, nil
		})

		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return nil, sdaperr.New(sdaperr.CircuitOpen, "circuit open for "+host).
					WithRetryAfter(int(t.policy.BreakerOpenDuration.Seconds()))
			}
			if capturedResp == nil {
				lastErr = err
				if !retriableError(err) {
					return nil, lastErr
				}
				continue
			}
		}

		if capturedResp == nil {
			continue
		}
		resp := capturedResp
		if !retriableStatus(resp.StatusCode) {
			return resp, nil
		}
		lastResp = resp
		if !retriableVerb(req.Method) && !hasIdempotencyKey(req) {
			return resp, nil
		}
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, sdaperr.Wrap(sdaperr.Unavailable, "downstream call failed after retries", lastErr)
}

func (t *Transport) roundTripOnce(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.policy.Timeout)
	resp, err := t.inner.RoundTrip(req.WithContext(ctx))
	if err != nil {
		defer cancel()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, sdaperr.New(sdaperr.Timeout, "outbound call exceeded per-attempt timeout")
		}
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the per-attempt context when the caller closes the
// response body, so the body stays readable after RoundTrip returns.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

type authTimeKey struct{}

// WithAuthTime marks a request as carrying an auth-time call (e.g. the OBO
// exchange itself), exempting it from retry/breaker per §4.E.
func WithAuthTime(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), authTimeKey{}, true))
}

func isAuthTime(req *http.Request) bool {
	v, _ := req.Context().Value(authTimeKey{}).(bool)
	return v
}

func hasIdempotencyKey(req *http.Request) bool {
	return req.Header.Get("Idempotency-Key") != ""
}

func retriableVerb(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodPut:
		return true
	default:
		return false
	}
}

func retriableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func retriableError(err error) bool {
	se := sdaperr.As(err)
	return se.Kind == sdaperr.Timeout || se.Kind == sdaperr.Unknown
}

var retryAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sdap_retry_attempts_total",
		Help: "Retry attempts issued per downstream host.",
	},
	[]string{"host"},
)

func init() {
	prometheus.MustRegister(retryAttempts)
}
