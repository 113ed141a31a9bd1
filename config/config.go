// Package config loads and validates the recognized configuration surface,
// layering environment variables over a YAML file the way the teacher's
// EnvConfig/ConfigLoader did, but rebuilt on viper + yaml.v3 for the nested
// keys (rateLimits.<policy>.capacity, cache.ttl.accessSnapshotSec, ...) the
// recognized options require.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// IDPConfig carries the inbound token validation parameters (§4.A).
type IDPConfig struct {
	Issuer         string `mapstructure:"issuer"`
	Audience       string `mapstructure:"audience"`
	TenantID       string `mapstructure:"tenantId"`
	SigningKeyRef  string `mapstructure:"signingKeyRef"`
	JWKSRefreshSec int    `mapstructure:"jwksRefreshSec"`
}

// OBOClientConfig carries the on-behalf-of client credential (§4.C). Secret
// is never populated from file/env directly; it is resolved at startup from
// SecretRef via the secret store (secrets.go).
type OBOClientConfig struct {
	ID        string `mapstructure:"id"`
	SecretRef string `mapstructure:"secretRef"`
	Secret    string `mapstructure:"-"`
}

type OBOConfig struct {
	Client OBOClientConfig `mapstructure:"client"`
}

// CacheConfig selects the shared cache backend and its TTLs (§4.B).
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     CacheTTLConfig `mapstructure:"ttl"`
}

type CacheTTLConfig struct {
	OBOSafetyMarginSec  int `mapstructure:"oboSafetyMarginSec"`
	AccessSnapshotSec   int `mapstructure:"accessSnapshotSec"`
}

// ResilienceConfig parameterizes the retry/breaker/timeout chain (§4.E).
type ResilienceConfig struct {
	Retry      RetryConfig   `mapstructure:"retry"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
	TimeoutSec int           `mapstructure:"timeoutSec"`
}

type RetryConfig struct {
	MaxAttempts int `mapstructure:"maxAttempts"`
}

type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failureThreshold"`
	BreakSec         int `mapstructure:"breakSec"`
}

// RateLimitPolicy mirrors ratelimit.Policy's fields as config-file shape;
// the composition root (applyPolicyOverrides in cmd/sdap-bff) translates
// these into ratelimit.Policy values.
type RateLimitPolicy struct {
	Strategy     string        `mapstructure:"strategy"`
	Capacity     int           `mapstructure:"capacity"`
	RefillRate   float64       `mapstructure:"refillRate"`
	Limit        int           `mapstructure:"limit"`
	Window       time.Duration `mapstructure:"window"`
	MaxInFlight  int           `mapstructure:"maxInFlight"`
}

// AuditConfig gates authorization audit log verbosity (§4.G).
type AuditConfig struct {
	Level string `mapstructure:"level"`
}

// SecretStoreConfig carries the Infisical project coordinates used to
// resolve every *Ref field in the rest of Config.
type SecretStoreConfig struct {
	Host         string `mapstructure:"host"`
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"`
	ProjectID    string `mapstructure:"projectId"`
	Environment  string `mapstructure:"environment"`
	RefreshSec   int    `mapstructure:"refreshSec"`
}

// Config is the fully loaded, validated, secret-resolved configuration
// surface recognized by the composition root.
type Config struct {
	ServiceName string                     `mapstructure:"serviceName"`
	Port        int                        `mapstructure:"port"`
	LogLevel    string                     `mapstructure:"logLevel"`

	IDP         IDPConfig                  `mapstructure:"idp"`
	OBO         OBOConfig                  `mapstructure:"obo"`
	Cache       CacheConfig                `mapstructure:"cache"`
	Resilience  ResilienceConfig           `mapstructure:"resilience"`
	RateLimits  map[string]RateLimitPolicy `mapstructure:"rateLimits"`
	Audit       AuditConfig                `mapstructure:"audit"`
	SecretStore SecretStoreConfig          `mapstructure:"secretStore"`

	GraphBaseURL string `mapstructure:"graphBaseUrl"`
	AMQPURL      string `mapstructure:"amqpUrl"`
	RedisAddr    string `mapstructure:"redisAddr"`

	AccessSource AccessSourceConfig `mapstructure:"accessSource"`
}

// AccessSourceConfig selects and parameterizes one of the Access Data
// Source's two interchangeable backends (§4.F, SUPPLEMENTED FEATURES #2).
type AccessSourceConfig struct {
	Backend      string `mapstructure:"backend"` // "couchdb" or "postgres"
	CouchDBURL   string `mapstructure:"couchdbUrl"`
	CouchDBName  string `mapstructure:"couchdbDatabase"`
	PostgresDSN  string `mapstructure:"postgresDsn"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("logLevel", "info")
	v.SetDefault("cache.backend", "in-process")
	v.SetDefault("cache.ttl.oboSafetyMarginSec", 60)
	v.SetDefault("cache.ttl.accessSnapshotSec", 120)
	v.SetDefault("resilience.retry.maxAttempts", 3)
	v.SetDefault("resilience.breaker.failureThreshold", 5)
	v.SetDefault("resilience.breaker.breakSec", 30)
	v.SetDefault("resilience.timeoutSec", 30)
	v.SetDefault("audit.level", "info")
	v.SetDefault("idp.jwksRefreshSec", 900)
	v.SetDefault("secretStore.refreshSec", 900)
	v.SetDefault("accessSource.backend", "couchdb")
}

// Load reads configFile (if it exists) as YAML, layers environment
// variables (SDAP_<UPPER_SNAKE_NESTED_KEY>) over it, applies defaults, and
// validates the required fields fail-fast.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SDAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	validator := NewValidator()

	validator.RequireString("serviceName", cfg.ServiceName)
	validator.RequirePositiveInt("port", cfg.Port)
	validator.RequireString("idp.issuer", cfg.IDP.Issuer)
	validator.RequireString("idp.audience", cfg.IDP.Audience)
	validator.RequireString("obo.client.id", cfg.OBO.Client.ID)
	validator.RequireString("obo.client.secretRef", cfg.OBO.Client.SecretRef)
	validator.RequireOneOf("cache.backend", cfg.Cache.Backend, []string{"in-process", "networked"})
	validator.RequireInt("cache.ttl.oboSafetyMarginSec", cfg.Cache.TTL.OBOSafetyMarginSec, 60, 3600)
	validator.RequireInt("cache.ttl.accessSnapshotSec", cfg.Cache.TTL.AccessSnapshotSec, 60, 300)
	validator.RequireOneOf("audit.level", cfg.Audit.Level, []string{"debug", "info", "warn", "error"})
	validator.RequireOneOf("accessSource.backend", cfg.AccessSource.Backend, []string{"couchdb", "postgres"})

	return validator.Validate()
}

// Validator provides fail-fast configuration validation, accumulating every
// violation before returning a single combined error rather than stopping
// at the first.
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// RequireString validates that a string field is not empty
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequireInt validates that an integer field is within range
func (v *Validator) RequireInt(field string, value, min, max int) {
	if value < min || value > max {
		v.errors = append(v.errors, fmt.Sprintf("%s must be between %d and %d", field, min, max))
	}
}

// RequirePositiveInt validates that an integer field is positive
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireOneOf validates that a value is one of the allowed options
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// IsValid returns true if there are no validation errors
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []string {
	return v.errors
}

// ErrorString returns all validation errors as a single string
func (v *Validator) ErrorString() string {
	return strings.Join(v.errors, "; ")
}

// Validate runs validation and returns error if invalid
func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("configuration validation failed: %s", v.ErrorString())
	}
	return nil
}
