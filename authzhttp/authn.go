package authzhttp

import (
	"github.com/labstack/echo/v4"

	"github.com/spaarke-dev/sdap-bff/sdaperr"
	"github.com/spaarke-dev/sdap-bff/token"
)

// Authenticate returns Echo middleware running the Token Validator (A) on
// every request, storing the resulting Principal and raw assertion in
// context. Any validation failure is terminal and never retried (§7); it is
// handed to the Error Surfacer (J) as a 401 with WWW-Authenticate.
func Authenticate(v *token.Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)

			p, err := v.Validate(c.Request().Context(), header)
			if err != nil {
				c.Response().Header().Set("WWW-Authenticate", "Bearer")
				return err
			}

			assertion, err := token.RawAssertion(header)
			if err != nil {
				c.Response().Header().Set("WWW-Authenticate", "Bearer")
				return sdaperr.New(sdaperr.InvalidCredential, "malformed bearer header")
			}

			SetPrincipal(c, p)
			SetAssertion(c, assertion)
			return next(c)
		}
	}
}

// AnonymousOK is a marker middleware for routes whose rate policy is
// "anonymous" (health probes, §6.1) — it never rejects, only attempts best-
// effort principal extraction so audit logs can still carry a userId when
// one is present.
func AnonymousOK(v *token.Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}
			if p, err := v.Validate(c.Request().Context(), header); err == nil {
				SetPrincipal(c, p)
			}
			return next(c)
		}
	}
}
