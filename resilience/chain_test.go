package resilience

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetriesTransientFailureThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	policy := DefaultPolicy()
	policy.Timeout = 2 * time.Second
	rt := New(http.DefaultTransport, policy, nil)
	client := &http.Client{Transport: rt}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	policy := DefaultPolicy()
	policy.MaxAttempts = 1
	policy.BreakerThreshold = 2
	policy.BreakerOpenDuration = 50 * time.Millisecond
	policy.Timeout = time.Second
	rt := New(http.DefaultTransport, policy, nil)
	client := &http.Client{Transport: rt}

	for i := 0; i < 2; i++ {
		_, _ = client.Get(srv.URL)
	}

	_, err := client.Get(srv.URL)
	require.Error(t, err)
}
