package authzhttp

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestAnonymousOKPassesThroughWithoutHeader(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/healthz")

	called := false
	err := AnonymousOK(nil)(func(c echo.Context) error {
		called = true
		return nil
	})(c)

	require.NoError(t, err)
	require.True(t, called)
	_, ok := GetPrincipal(c)
	require.False(t, ok)
}
