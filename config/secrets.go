package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	infisical "github.com/infisical/go-sdk"
	"github.com/sirupsen/logrus"
)

// SecretResolver resolves secretRef-style configuration values (e.g.
// obo.client.secretRef, idp.signingKeyRef) against an Infisical project,
// adapted from the teacher's InfisicalSecrets helper: the same
// authenticate-then-list call, generalized from a one-shot env/.netrc dump
// into a cache the composition root consults on demand and refreshes on a
// schedule rather than exiting the process on failure.
type SecretResolver struct {
	client      infisical.InfisicalClient
	projectID   string
	environment string
	log         *logrus.Entry

	mu     sync.RWMutex
	values map[string]string
}

// NewSecretResolver authenticates against cfg.Host with the universal auth
// client credential and performs an initial fetch of every secret in the
// project/environment.
func NewSecretResolver(ctx context.Context, cfg SecretStoreConfig, log *logrus.Entry) (*SecretResolver, error) {
	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          "https://" + cfg.Host,
		AutoTokenRefresh: true,
	})

	if _, err := client.Auth().UniversalAuthLogin(cfg.ClientID, cfg.ClientSecret); err != nil {
		return nil, fmt.Errorf("infisical authentication failed: %w", err)
	}

	r := &SecretResolver{
		client:      client,
		projectID:   cfg.ProjectID,
		environment: cfg.Environment,
		log:         log,
		values:      make(map[string]string),
	}

	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve returns the secret value for ref (a secret key name), failing if
// it was not present as of the last refresh.
func (r *SecretResolver) Resolve(ref string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[ref]
	if !ok {
		return "", fmt.Errorf("secretRef %q not found in secret store", ref)
	}
	return v, nil
}

// StartRefresh runs refresh on interval until ctx is cancelled. Failures are
// logged, not fatal: stale cached values keep serving Resolve rather than
// blocking the service on a transient secret-store outage.
func (r *SecretResolver) StartRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.refresh(); err != nil {
					r.log.WithError(err).Warn("secret refresh failed, serving stale cached values")
				}
			}
		}
	}()
}

func (r *SecretResolver) refresh() error {
	secrets, err := r.client.Secrets().List(infisical.ListSecretsOptions{
		AttachToProcessEnv: false,
		Environment:        r.environment,
		ProjectID:          r.projectID,
		SecretPath:         "/",
		IncludeImports:     true,
	})
	if err != nil {
		return fmt.Errorf("listing secrets: %w", err)
	}

	next := make(map[string]string, len(secrets))
	for _, s := range secrets {
		next[s.SecretKey] = s.SecretValue
	}

	r.mu.Lock()
	r.values = next
	r.mu.Unlock()
	return nil
}

// ResolveConfigSecrets populates every *Ref-backed field in cfg from
// resolver, called once at startup after NewSecretResolver succeeds.
func ResolveConfigSecrets(cfg *Config, resolver *SecretResolver) error {
	if cfg.OBO.Client.SecretRef != "" {
		secret, err := resolver.Resolve(cfg.OBO.Client.SecretRef)
		if err != nil {
			return fmt.Errorf("resolving obo.client.secretRef: %w", err)
		}
		cfg.OBO.Client.Secret = secret
	}
	return nil
}
