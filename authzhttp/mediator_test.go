package authzhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/spaarke-dev/sdap-bff/access"
	"github.com/spaarke-dev/sdap-bff/authz"
	"github.com/spaarke-dev/sdap-bff/principal"
	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

type staticSource struct {
	snap access.Snapshot
	err  error
}

func (s staticSource) GetAccess(ctx context.Context, userID, resourceID string) (access.Snapshot, error) {
	return s.snap, s.err
}

type countingSourceMediator struct {
	snap  access.Snapshot
	calls int
}

func (s *countingSourceMediator) GetAccess(ctx context.Context, userID, resourceID string) (access.Snapshot, error) {
	s.calls++
	return s.snap, nil
}

func newTestContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestMediatorAllowsSufficientGrant(t *testing.T) {
	m := NewMediator(staticSource{snap: access.Snapshot{AccessLevel: access.LevelRead}}, authz.New(nil))
	c, _ := newTestContext(http.MethodGet, "/drives/d1/items/i1/content")
	SetPrincipal(c, &principal.Principal{UserID: "u1"})

	called := false
	h := m.Require(authz.OpPreviewFile, PathParam("id"))(func(c echo.Context) error {
		called = true
		return nil
	})
	require.NoError(t, h(c))
	require.True(t, called)
}

func TestMediatorDeniesWithoutPrincipal(t *testing.T) {
	m := NewMediator(staticSource{snap: access.Snapshot{AccessLevel: access.LevelAdmin}}, authz.New(nil))
	c, _ := newTestContext(http.MethodGet, "/drives/d1/items/i1/content")

	err := m.Require(authz.OpPreviewFile, PathParam("id"))(func(c echo.Context) error {
		return nil
	})(c)
	require.Error(t, err)
	require.Equal(t, sdaperr.InvalidCredential, sdaperr.As(err).Kind)
}

func TestMediatorFailsClosedOnUnavailable(t *testing.T) {
	m := NewMediator(staticSource{err: sdaperr.New(sdaperr.Unavailable, "store down")}, authz.New(nil))
	c, _ := newTestContext(http.MethodGet, "/drives/d1/items/i1/content")
	SetPrincipal(c, &principal.Principal{UserID: "u1"})

	err := m.Require(authz.OpPreviewFile, PathParam("id"))(func(c echo.Context) error {
		return nil
	})(c)
	require.Error(t, err)
	require.Equal(t, sdaperr.Unavailable, sdaperr.As(err).Kind)
}

func TestMediatorMemoizesSnapshotWithinRequestCache(t *testing.T) {
	src := &countingSourceMediator{snap: access.Snapshot{AccessLevel: access.LevelAdmin}}
	m := NewMediator(src, authz.New(nil))
	c, _ := newTestContext(http.MethodGet, "/drives/d1/items/i1/content")
	SetPrincipal(c, &principal.Principal{UserID: "u1"})
	require.NoError(t, RequestCacheMiddleware()(func(c echo.Context) error { return nil })(c))

	h := m.Require(authz.OpPreviewFile, PathParam("id"))(func(c echo.Context) error { return nil })
	require.NoError(t, h(c))
	require.NoError(t, h(c))
	require.Equal(t, 1, src.calls)
}

func TestMediatorDeniesInsufficientGrant(t *testing.T) {
	m := NewMediator(staticSource{snap: access.Snapshot{AccessLevel: access.LevelRead}}, authz.New(nil))
	c, _ := newTestContext(http.MethodDelete, "/drives/d1/items/i1")
	SetPrincipal(c, &principal.Principal{UserID: "u1"})

	called := false
	err := m.Require(authz.OpDeleteFile, PathParam("id"))(func(c echo.Context) error {
		called = true
		return nil
	})(c)
	require.Error(t, err)
	require.False(t, called)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)
}
