package problem

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

func TestStatusForMapping(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, StatusFor(sdaperr.ExpiredToken))
	require.Equal(t, http.StatusForbidden, StatusFor(sdaperr.Deny))
	require.Equal(t, http.StatusNotFound, StatusFor(sdaperr.NotFound))
	require.Equal(t, http.StatusTooManyRequests, StatusFor(sdaperr.RateLimited))
	require.Equal(t, http.StatusConflict, StatusFor(sdaperr.Conflict))
	require.Equal(t, http.StatusPreconditionFailed, StatusFor(sdaperr.PreconditionFailed))
	require.Equal(t, http.StatusGatewayTimeout, StatusFor(sdaperr.Timeout))
	require.Equal(t, http.StatusServiceUnavailable, StatusFor(sdaperr.Unavailable))
	require.Equal(t, http.StatusServiceUnavailable, StatusFor(sdaperr.CircuitOpen))
	require.Equal(t, http.StatusBadGateway, StatusFor(sdaperr.TransientIdpError))
	require.Equal(t, http.StatusInternalServerError, StatusFor(sdaperr.Unknown))
}

func TestFromErrorRedactsUnknownDetail(t *testing.T) {
	resp := FromError(sdaperr.New(sdaperr.Unknown, "leaked internal detail"), "/x", "corr-1")
	require.Equal(t, "an internal error occurred", resp.Detail)
	require.Equal(t, "urn:sdap:err:Unknown", resp.Type)
	require.Equal(t, "corr-1", resp.CorrelationID)
}

func TestFromErrorCarriesRetryAfter(t *testing.T) {
	resp := FromError(sdaperr.New(sdaperr.CircuitOpen, "breaker open").WithRetryAfter(30), "/x", "corr-2")
	require.Equal(t, 30, resp.RetryAfter)
	require.Equal(t, http.StatusServiceUnavailable, resp.Status)
}
