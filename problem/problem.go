// Package problem implements the Error Surfacer (component J): the single
// pipeline converting every failure to a wire-exact ProblemResponse body,
// per §6.2 and the Kind -> HTTP mapping in §7.
package problem

import (
	"net/http"

	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

// Response is the wire-exact JSON shape from §6.2. Content type is always
// application/problem+json; the Retry-After HTTP header accompanies the
// body whenever RetryAfter is non-zero.
type Response struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail"`
	Instance      string `json:"instance"`
	RetryAfter    int    `json:"retryAfter,omitempty"`
	CorrelationID string `json:"correlationId"`
}

// ContentType is the required media type for every problem body.
const ContentType = "application/problem+json"

// mapping is the Kind -> HTTP status table from §7.
var mapping = map[sdaperr.Kind]int{
	sdaperr.InvalidCredential: http.StatusUnauthorized,
	sdaperr.ExpiredToken:      http.StatusUnauthorized,
	sdaperr.BadSignature:      http.StatusUnauthorized,
	sdaperr.WrongAudience:     http.StatusUnauthorized,
	sdaperr.WrongIssuer:       http.StatusUnauthorized,

	sdaperr.Deny:            http.StatusForbidden,
	sdaperr.ConsentRequired: http.StatusForbidden,
	sdaperr.PolicyBlocked:   http.StatusForbidden,
	sdaperr.ScopeNotGranted: http.StatusForbidden,

	sdaperr.NotFound: http.StatusNotFound,

	sdaperr.RateLimited: http.StatusTooManyRequests,

	sdaperr.Conflict:            http.StatusConflict,
	sdaperr.PreconditionFailed:  http.StatusPreconditionFailed,
	sdaperr.Timeout:             http.StatusGatewayTimeout,
	sdaperr.Unavailable:         http.StatusServiceUnavailable,
	sdaperr.CircuitOpen:         http.StatusServiceUnavailable,
	sdaperr.TransientIdpError:   http.StatusBadGateway,
	sdaperr.RuleError:           http.StatusForbidden,
	sdaperr.Unknown:             http.StatusInternalServerError,
}

// titles gives each kind a short human phrase distinct from its detail,
// which stays non-secret per §6.2.
var titles = map[sdaperr.Kind]string{
	sdaperr.InvalidCredential: "Invalid credential",
	sdaperr.ExpiredToken:      "Token expired",
	sdaperr.BadSignature:      "Invalid token signature",
	sdaperr.WrongAudience:     "Token audience mismatch",
	sdaperr.WrongIssuer:       "Token issuer mismatch",
	sdaperr.Deny:              "Access denied",
	sdaperr.ConsentRequired:   "Consent required",
	sdaperr.PolicyBlocked:     "Blocked by policy",
	sdaperr.ScopeNotGranted:   "Required scope not granted",
	sdaperr.NotFound:          "Not found",
	sdaperr.RateLimited:       "Rate limit exceeded",
	sdaperr.Conflict:          "Conflict",
	sdaperr.PreconditionFailed: "Precondition failed",
	sdaperr.Timeout:            "Upstream timeout",
	sdaperr.Unavailable:        "Service unavailable",
	sdaperr.CircuitOpen:        "Circuit open",
	sdaperr.TransientIdpError:  "Identity provider error",
	sdaperr.RuleError:          "Authorization rule failure",
	sdaperr.Unknown:            "Internal error",
}

// StatusFor returns the HTTP status the kind maps to, defaulting to 500 for
// anything unrecognized (never leaking an unmapped kind as a 2xx).
func StatusFor(kind sdaperr.Kind) int {
	if s, ok := mapping[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// FromError builds the wire body for err, scoped to instance (the request
// path) and correlationID. detail is redacted to a generic phrase for
// sdaperr.Unknown, per §7: "Unknown | 500 (detail redacted)".
func FromError(err error, instance, correlationID string) Response {
	se := sdaperr.As(err)
	status := StatusFor(se.Kind)

	detail := se.Detail
	if se.Kind == sdaperr.Unknown {
		detail = "an internal error occurred"
	}

	return Response{
		Type:          "urn:sdap:err:" + string(se.Kind),
		Title:         titleFor(se.Kind),
		Status:        status,
		Detail:        detail,
		Instance:      instance,
		RetryAfter:    se.RetryAfter,
		CorrelationID: correlationID,
	}
}

func titleFor(kind sdaperr.Kind) string {
	if t, ok := titles[kind]; ok {
		return t
	}
	return "Internal error"
}
