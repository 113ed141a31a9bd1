// Package authzhttp implements the Authorization Mediator (component H):
// Echo middleware integrating the Token Validator (A), Access Data Source
// (F), and Authorization Engine (G) with the HTTP layer. Context-storage
// pattern adapted from the teacher's api/authorization.go SetUser/GetUser
// shape.
package authzhttp

import (
	"github.com/labstack/echo/v4"

	"github.com/spaarke-dev/sdap-bff/access"
	"github.com/spaarke-dev/sdap-bff/cache"
	"github.com/spaarke-dev/sdap-bff/principal"
)

const (
	contextKeyPrincipal     = "sdap.principal"
	contextKeyAssertion     = "sdap.assertion"
	contextKeySnapshot      = "sdap.accessSnapshot"
	contextKeyCorrelationID = "sdap.correlationId"
	contextKeyRequestCache  = "sdap.requestCache"
)

// RequestCacheMiddleware attaches a fresh request-scoped cache.Request to
// the context before the rest of the chain runs, so the mediator (and
// anything else on the request path) can memoize a lookup already resolved
// earlier in the same request instead of round-tripping the shared cache
// again.
func RequestCacheMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(contextKeyRequestCache, cache.NewRequest())
			return next(c)
		}
	}
}

// GetRequestCache retrieves the request-scoped cache RequestCacheMiddleware
// installed. Returns false if the middleware never ran.
func GetRequestCache(c echo.Context) (*cache.Request, bool) {
	rc, ok := c.Get(contextKeyRequestCache).(*cache.Request)
	return rc, ok
}

// SetPrincipal stores the validated Principal in the Echo context.
func SetPrincipal(c echo.Context, p *principal.Principal) {
	c.Set(contextKeyPrincipal, p)
}

// GetPrincipal retrieves the Principal stored by the authentication
// middleware. Returns false if the request was never authenticated.
func GetPrincipal(c echo.Context) (*principal.Principal, bool) {
	p, ok := c.Get(contextKeyPrincipal).(*principal.Principal)
	return p, ok
}

// SetAssertion stores the raw inbound bearer token, needed verbatim by the
// Token Exchanger (C) for OBO calls.
func SetAssertion(c echo.Context, assertion string) {
	c.Set(contextKeyAssertion, assertion)
}

// GetAssertion retrieves the raw inbound bearer token.
func GetAssertion(c echo.Context) (string, bool) {
	a, ok := c.Get(contextKeyAssertion).(string)
	return a, ok
}

// SetSnapshot stores the AccessSnapshot resolved for this request so
// downstream handlers can consult it without a second lookup.
func SetSnapshot(c echo.Context, snap access.Snapshot) {
	c.Set(contextKeySnapshot, snap)
}

// GetSnapshot retrieves the AccessSnapshot set by the mediator.
func GetSnapshot(c echo.Context) (access.Snapshot, bool) {
	s, ok := c.Get(contextKeySnapshot).(access.Snapshot)
	return s, ok
}

// SetCorrelationID stores an explicit correlation id for the request, which
// GetCorrelationID then returns in place of the X-Request-ID response header.
func SetCorrelationID(c echo.Context, id string) {
	c.Set(contextKeyCorrelationID, id)
}

// GetCorrelationID returns the id stored by SetCorrelationID, or else the
// X-Request-ID header already set on the response.
func GetCorrelationID(c echo.Context) string {
	if id, ok := c.Get(contextKeyCorrelationID).(string); ok && id != "" {
		return id
	}
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
