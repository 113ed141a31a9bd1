package idempotency

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/spaarke-dev/sdap-bff/cache"
	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

func newCtxWithKey(key string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/upload/session", nil)
	if key != "" {
		req.Header.Set(HeaderName, key)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestMiddlewarePassesThroughWithoutHeader(t *testing.T) {
	ledger := New(cache.NewMemory(false))
	mw := Middleware(ledger, time.Minute)

	called := false
	h := mw(func(c echo.Context) error {
		called = true
		return nil
	})

	require.NoError(t, h(newCtxWithKey("")))
	require.True(t, called)
}

func TestMiddlewareRejectsDuplicateKey(t *testing.T) {
	ledger := New(cache.NewMemory(false))
	mw := Middleware(ledger, time.Minute)

	calls := 0
	h := mw(func(c echo.Context) error {
		calls++
		return nil
	})

	require.NoError(t, h(newCtxWithKey("key-1")))
	err := h(newCtxWithKey("key-1"))
	require.Error(t, err)
	require.Equal(t, sdaperr.Conflict, sdaperr.As(err).Kind)
	require.Equal(t, 1, calls)
}
