package token

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// SignFixture mints an HS256-signed test token carrying the given subject,
// issuer and audience, expiring after ttl. It exists only so tests across
// this module (and the authz/authzhttp suites) can build a raw bearer header
// without standing up a real IdP; it is never used on a production code
// path. Grounded on the teacher's security/jwt.go HS256 builder.
func SignFixture(secret []byte, subject, issuer, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl))
	if issuer != "" {
		builder = builder.Issuer(issuer)
	}
	if audience != "" {
		builder = builder.Audience([]string{audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// NewRSAFixtureKey generates an RSA key pair sized for RS256 test tokens.
func NewRSAFixtureKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}

// SignFixtureRS256 mints an RS256-signed test token, with kid embedded in
// its header, so a test JWKS server (see JWKSHandler) can publish the
// matching verification key and exercise oidc.RemoteKeySet's real signature
// path rather than bypassing it.
func SignFixtureRS256(key *rsa.PrivateKey, kid, subject, issuer, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl))
	if issuer != "" {
		builder = builder.Issuer(issuer)
	}
	if audience != "" {
		builder = builder.Audience([]string{audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", err
	}

	signingKey, err := jwk.FromRaw(key)
	if err != nil {
		return "", err
	}
	if err := signingKey.Set(jwk.KeyIDKey, kid); err != nil {
		return "", err
	}
	if err := signingKey.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, signingKey))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// JWKSHandler serves the public half of key as a JWK Set, for tests that
// stand up an httptest server in place of a real IdP's jwks_uri.
func JWKSHandler(key *rsa.PrivateKey, kid string) http.HandlerFunc {
	pub, err := jwk.FromRaw(&key.PublicKey)
	if err != nil {
		panic(err)
	}
	if err := pub.Set(jwk.KeyIDKey, kid); err != nil {
		panic(err)
	}
	if err := pub.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		panic(err)
	}

	set := jwk.NewSet()
	_ = set.AddKey(pub)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}
}
