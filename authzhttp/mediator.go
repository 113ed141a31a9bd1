package authzhttp

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/spaarke-dev/sdap-bff/access"
	"github.com/spaarke-dev/sdap-bff/authz"
	"github.com/spaarke-dev/sdap-bff/cache"
	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

// Mediator integrates the Access Data Source (F) and Authorization Engine
// (G) with the HTTP layer, per §4.H.
type Mediator struct {
	source access.Source
	engine *authz.Engine
}

// NewMediator builds a Mediator.
func NewMediator(source access.Source, engine *authz.Engine) *Mediator {
	return &Mediator{source: source, engine: engine}
}

// ResourceIDFunc extracts the resourceId a route's operation targets, from
// the path or query parameters.
type ResourceIDFunc func(c echo.Context) string

// PathParam returns a ResourceIDFunc reading the named path parameter.
func PathParam(name string) ResourceIDFunc {
	return func(c echo.Context) string { return c.Param(name) }
}

// lookupSnapshot checks the request-scoped cache for a snapshot already
// resolved earlier in this request, avoiding a repeat shared-cache
// round trip when Require runs more than once against the same resource.
func lookupSnapshot(rc *cache.Request, has bool, key string) (access.Snapshot, bool) {
	if !has {
		return access.Snapshot{}, false
	}
	v, ok := rc.Get(key)
	if !ok {
		return access.Snapshot{}, false
	}
	snap, ok := v.(access.Snapshot)
	return snap, ok
}

// Require returns Echo middleware enforcing operation op against the
// resource resourceID identifies, per §4.H's four steps: derive userId,
// call (F), invoke (G), short-circuit with 401/403.
func (m *Mediator) Require(op authz.Operation, resourceID ResourceIDFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := GetPrincipal(c)
			if !ok || p == nil {
				return sdaperr.New(sdaperr.InvalidCredential, "authentication required")
			}

			rid := resourceID(c)
			ctx := c.Request().Context()
			cacheKey := "snapshot:" + p.UserID + ":" + rid

			var snapshot access.Snapshot
			rc, hasRequestCache := GetRequestCache(c)
			if cached, ok := lookupSnapshot(rc, hasRequestCache, cacheKey); ok {
				snapshot = cached
			} else {
				s, err := m.source.GetAccess(ctx, p.UserID, rid)
				if err != nil {
					se := sdaperr.As(err)
					if se.Kind == sdaperr.NotFound {
						s = access.Snapshot{AccessLevel: access.LevelNone}
					} else {
						// Unavailable, Timeout, or anything else — fail closed.
						// §7: "the response MUST be 503 ... not 200, not 403
						// with a silent Allow" whenever the decision cannot be
						// safely derived.
						return se
					}
				}
				snapshot = s
				if hasRequestCache {
					rc.Set(cacheKey, snapshot)
				}
			}

			correlationID := GetCorrelationID(c)
			decision := m.engine.Evaluate(p.UserID, rid, op, snapshot, correlationID)
			if decision.Verdict == authz.Denied {
				return echo.NewHTTPError(http.StatusForbidden, decision.Reason)
			}

			SetSnapshot(c, snapshot)
			return next(c)
		}
	}
}
