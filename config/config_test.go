package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
serviceName: sdap-bff
idp:
  issuer: https://login.example.com/tenant
  audience: api://sdap
obo:
  client:
    id: client-1
    secretRef: OBO_CLIENT_SECRET
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "in-process", cfg.Cache.Backend)
	require.Equal(t, 120, cfg.Cache.TTL.AccessSnapshotSec)
	require.Equal(t, 3, cfg.Resilience.Retry.MaxAttempts)
	require.Equal(t, 30, cfg.Resilience.Breaker.BreakSec)
}

func TestLoadFailsFastOnMissingRequiredFields(t *testing.T) {
	path := writeConfigFile(t, `serviceName: sdap-bff`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "idp.issuer")
}

func TestEnvOverridesFileDefault(t *testing.T) {
	path := writeConfigFile(t, `
serviceName: sdap-bff
idp:
  issuer: https://login.example.com/tenant
  audience: api://sdap
obo:
  client:
    id: client-1
    secretRef: OBO_CLIENT_SECRET
`)

	t.Setenv("SDAP_PORT", "9090")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
}
