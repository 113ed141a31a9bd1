package idempotency

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

// HeaderName is the opt-in header mutating endpoints consult, per §4.K.
const HeaderName = "Idempotency-Key"

// Middleware returns Echo middleware enforcing the Idempotency-Key
// contract: a request carrying the header that was already Seen within ttl
// is answered 409 rather than reprocessed. Requests without the header
// pass through unconditionally — idempotency is opt-in per §4.K, never a
// requirement a caller is forced into.
//
// The ledger only records that a key was seen, not the prior response body
// ("if available" in §4.K's wording is conditional): this core never
// persists request/response bodies, consistent with §6.5's no-persisted-
// state contract, so a duplicate always gets 409, never a replayed 200.
func Middleware(ledger *Ledger, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(HeaderName)
			if key == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			if ledger.Seen(ctx, key) {
				return sdaperr.New(sdaperr.Conflict, "duplicate request for Idempotency-Key "+key)
			}

			if err := next(c); err != nil {
				return err
			}
			return ledger.Record(ctx, key, ttl)
		}
	}
}
