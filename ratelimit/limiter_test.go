package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

func newCtx() echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestConcurrencyPolicyRejectsSixthInFlight(t *testing.T) {
	l := New(map[string]Policy{"upload-heavy": {Name: "upload-heavy", Strategy: Concurrency, MaxInFlight: 5}})

	var releases []func()
	for i := 0; i < 5; i++ {
		b := l.bucketFor("upload-heavy", "addr:1.2.3.4")
		ok, _ := b.allow(Policy{Strategy: Concurrency, MaxInFlight: 5}, time.Now())
		require.True(t, ok)
		releases = append(releases, func() { b.release(Policy{Strategy: Concurrency}) })
	}

	b := l.bucketFor("upload-heavy", "addr:1.2.3.4")
	ok, retryAfter := b.allow(Policy{Strategy: Concurrency, MaxInFlight: 5}, time.Now())
	require.False(t, ok)
	require.Greater(t, retryAfter, time.Duration(0))

	for _, r := range releases {
		r()
	}
}

func TestFixedWindowResetsAfterWindow(t *testing.T) {
	p := Policy{Strategy: FixedWindow, Limit: 2, Window: 50 * time.Millisecond}
	b := &bucket{}

	now := time.Now()
	ok1, _ := b.allow(p, now)
	ok2, _ := b.allow(p, now)
	ok3, _ := b.allow(p, now)
	require.True(t, ok1)
	require.True(t, ok2)
	require.False(t, ok3)

	ok4, _ := b.allow(p, now.Add(100*time.Millisecond))
	require.True(t, ok4)
}

func TestMiddlewareRejectsWithRateLimitedKind(t *testing.T) {
	l := New(map[string]Policy{"tight": {Name: "tight", Strategy: FixedWindow, Limit: 1, Window: time.Minute}})
	mw := l.Middleware("tight")

	h := mw(func(c echo.Context) error { return nil })
	c1 := newCtx()
	require.NoError(t, h(c1))

	c2 := newCtx()
	err := h(c2)
	require.Error(t, err)
	require.Equal(t, sdaperr.RateLimited, sdaperr.As(err).Kind)
}
