package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

// Handler builds an echo.HTTPErrorHandler that converts every handler error
// into the wire-exact body from §6.2. log receives the full, unredacted
// error; the wire body never carries a stack trace.
func Handler(log *logrus.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		correlationID := c.Response().Header().Get(echo.HeaderXRequestID)
		resp := translate(err, c.Request().URL.Path, correlationID)

		if log != nil {
			entry := log.WithFields(logrus.Fields{
				"status":        resp.Status,
				"kind":          resp.Type,
				"correlationId": correlationID,
				"path":          c.Request().URL.Path,
			})
			if resp.Status >= 500 {
				entry.WithError(err).Error("request failed")
			} else {
				entry.WithError(err).Warn("request rejected")
			}
		}

		if resp.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", resp.RetryAfter))
		}
		if resp.Status == http.StatusUnauthorized {
			c.Response().Header().Set("WWW-Authenticate", "Bearer")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(resp.Status)
			return
		}
		body, marshalErr := json.Marshal(resp)
		if marshalErr != nil {
			_ = c.NoContent(http.StatusInternalServerError)
			return
		}
		_ = c.Blob(resp.Status, ContentType, body)
	}
}

// translate normalizes both *sdaperr.Error and *echo.HTTPError (the shape
// the authorization mediator and Echo's own routing layer raise) into a
// single Response.
func translate(err error, instance, correlationID string) Response {
	if he, ok := err.(*echo.HTTPError); ok {
		kind := sdaperr.Unknown
		switch he.Code {
		case http.StatusForbidden:
			kind = sdaperr.Deny
		case http.StatusNotFound:
			kind = sdaperr.NotFound
		case http.StatusTooManyRequests:
			kind = sdaperr.RateLimited
		case http.StatusUnauthorized:
			kind = sdaperr.InvalidCredential
		}
		detail := fmt.Sprintf("%v", he.Message)
		return Response{
			Type:          "urn:sdap:err:" + string(kind),
			Title:         titleFor(kind),
			Status:        StatusFor(kind),
			Detail:        detail,
			Instance:      instance,
			CorrelationID: correlationID,
		}
	}
	return FromError(err, instance, correlationID)
}
