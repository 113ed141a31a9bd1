// Package obo implements the Downstream Token Exchanger (component C): it
// trades an inbound user assertion for a delegated downstream token via the
// IdP's On-Behalf-Of endpoint, single-flighting concurrent identical
// exchanges and caching the result in the shared cache.
//
// The HTTP call shape is grounded on the teacher's
// security/sap_btp_xsuaa.go client-credential token-endpoint POST
// (form-encoded grant_type/client_id/client_secret), generalized to the
// OBO grant (RFC 8693 style: assertion + requested_token_use=on_behalf_of).
package obo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spaarke-dev/sdap-bff/cache"
	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

const safetyMarginFloor = 60 * time.Second

// Config carries the obo.* recognized configuration options (spec §6.4).
type Config struct {
	TokenEndpoint string // IdP OBO token endpoint
	ClientID      string // obo.client.id
	ClientSecret  string // resolved from obo.client.secretRef
	SafetyMargin  time.Duration
	MaxTTL        time.Duration
}

// Exchanger performs OBO token exchange with single-flight coalescing and a
// shared-cache-backed result cache.
type Exchanger struct {
	cfg    Config
	shared cache.Shared
	http   *http.Client
	group  singleflight.Group
}

// NewExchanger builds an Exchanger. httpClient should already be wrapped by
// the resilience fabric (component E). The token call is a POST, so that
// fabric retries it only on network errors and per-attempt timeouts; a
// 429/5xx answer from the IdP is returned at once and classified here.
func NewExchanger(cfg Config, shared cache.Shared, httpClient *http.Client) *Exchanger {
	if cfg.SafetyMargin < safetyMarginFloor {
		cfg.SafetyMargin = safetyMarginFloor
	}
	return &Exchanger{cfg: cfg, shared: shared, http: httpClient}
}

type entry struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Scopes    []string  `json:"scopes"`
}

// Exchange returns a delegated downstream access token for the given
// inbound user assertion and target scopes, serving from cache when a
// non-expired entry exists and collapsing concurrent identical exchanges
// into a single IdP call.
func (e *Exchanger) Exchange(ctx context.Context, assertion string, scopes []string) (string, error) {
	key := cacheKey(assertion, scopes)

	if raw, ok, err := e.shared.Get(ctx, key); err == nil && ok {
		var cached entry
		if json.Unmarshal(raw, &cached) == nil && time.Now().Before(cached.ExpiresAt) {
			return cached.Token, nil
		}
	}

	result, err, _ := e.group.Do(key, func() (any, error) {
		return e.exchangeAndCache(ctx, key, assertion, scopes)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (e *Exchanger) exchangeAndCache(ctx context.Context, key, assertion string, scopes []string) (string, error) {
	// Re-check the cache inside the single-flight critical section: another
	// goroutine may have populated it between the first check and the gate.
	if raw, ok, _ := e.shared.Get(ctx, key); ok {
		var cached entry
		if json.Unmarshal(raw, &cached) == nil && time.Now().Before(cached.ExpiresAt) {
			return cached.Token, nil
		}
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("requested_token_use", "on_behalf_of")
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)
	form.Set("assertion", assertion)
	form.Set("scope", strings.Join(scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", sdaperr.Wrap(sdaperr.Unknown, "building OBO request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", sdaperr.Wrap(sdaperr.TransientIdpError, "OBO endpoint unreachable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return "", err
	}

	var tokResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokResp); err != nil {
		return "", sdaperr.Wrap(sdaperr.Unknown, "malformed OBO response", err)
	}
	if tokResp.AccessToken == "" {
		return "", sdaperr.New(sdaperr.Unknown, "OBO response carried no access_token")
	}

	ttl := time.Duration(tokResp.ExpiresIn)*time.Second - e.cfg.SafetyMargin
	if e.cfg.MaxTTL > 0 && ttl > e.cfg.MaxTTL {
		ttl = e.cfg.MaxTTL
	}
	if ttl <= 0 {
		ttl = time.Second // still cache briefly to dedupe a thundering herd
	}

	cached := entry{Token: tokResp.AccessToken, ExpiresAt: time.Now().Add(ttl), Scopes: scopes}
	if raw, err := json.Marshal(cached); err == nil {
		_ = e.shared.Set(ctx, key, raw, ttl)
	}

	return tokResp.AccessToken, nil
}

// classifyStatus maps an IdP HTTP response to a classified *sdaperr.Error
// per spec §4.C step 4. nil means the response was a success.
func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var errBody struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &errBody)
	detail := errBody.Description
	if detail == "" {
		detail = string(body)
	}

	switch {
	case status == http.StatusUnauthorized || errBody.Error == "invalid_grant":
		// "AssertionRejected" in spec §4.C prose maps onto the InvalidCredential
		// wire kind (§7's table sends it to 401, same as every other inbound-
		// assertion rejection).
		return sdaperr.New(sdaperr.InvalidCredential, detail)
	case errBody.Error == "consent_required" || errBody.Error == "interaction_required":
		return sdaperr.New(sdaperr.ConsentRequired, detail)
	case errBody.Error == "invalid_scope":
		return sdaperr.New(sdaperr.ScopeNotGranted, detail)
	case status == http.StatusForbidden:
		return sdaperr.New(sdaperr.PolicyBlocked, detail)
	case status >= 500 || status == http.StatusTooManyRequests:
		return sdaperr.New(sdaperr.TransientIdpError, detail)
	default:
		return sdaperr.New(sdaperr.Unknown, fmt.Sprintf("OBO endpoint returned %d: %s", status, detail))
	}
}
