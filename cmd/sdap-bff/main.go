// Command sdap-bff is the composition root for the Secure Document Access
// Platform Backend-for-Frontend: it loads configuration, constructs every
// collaborator by hand (no DI container — see DESIGN.md Design Notes),
// wires the Echo route table from spec §6.1, and runs with graceful
// shutdown, grounded on the teacher's registry/cmd/registryservice entrypoint.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spaarke-dev/sdap-bff/access"
	"github.com/spaarke-dev/sdap-bff/authz"
	"github.com/spaarke-dev/sdap-bff/authzhttp"
	"github.com/spaarke-dev/sdap-bff/cache"
	"github.com/spaarke-dev/sdap-bff/common"
	"github.com/spaarke-dev/sdap-bff/config"
	"github.com/spaarke-dev/sdap-bff/graphclient"
	sdaphttp "github.com/spaarke-dev/sdap-bff/http"
	"github.com/spaarke-dev/sdap-bff/idempotency"
	"github.com/spaarke-dev/sdap-bff/obo"
	"github.com/spaarke-dev/sdap-bff/problem"
	"github.com/spaarke-dev/sdap-bff/queue"
	"github.com/spaarke-dev/sdap-bff/ratelimit"
	"github.com/spaarke-dev/sdap-bff/resilience"
	"github.com/spaarke-dev/sdap-bff/token"
	"github.com/spaarke-dev/sdap-bff/worker"
)

const serviceVersion = "0.1.0"

func main() {
	configFile := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	baseLogger := common.NewLogger(common.LoggerConfig{
		Level:   common.LogLevel(cfg.LogLevel),
		Format:  "json",
		Service: cfg.ServiceName,
		Version: serviceVersion,
	})
	logEntry := logrus.NewEntry(baseLogger).WithField("service", cfg.ServiceName)

	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	secretResolver, err := config.NewSecretResolver(ctx, cfg.SecretStore, logEntry)
	if err != nil {
		logEntry.WithError(err).Fatal("failed to initialize secret resolver")
	}
	secretResolver.StartRefresh(ctx, time.Duration(cfg.SecretStore.RefreshSec)*time.Second)
	if err := config.ResolveConfigSecrets(cfg, secretResolver); err != nil {
		logEntry.WithError(err).Fatal("failed to resolve referenced secrets")
	}

	sharedCache := buildSharedCache(*cfg, logEntry)
	startCacheProbe(ctx, sharedCache)

	validator, err := token.NewValidator(ctx, token.Config{
		Issuer:   cfg.IDP.Issuer,
		Audience: cfg.IDP.Audience,
		TenantID: cfg.IDP.TenantID,
	}, "", logEntry)
	if err != nil {
		logEntry.WithError(err).Fatal("failed to initialize token validator")
	}

	resilienceTransport := resilience.New(nil, resilience.Policy{
		Timeout:             time.Duration(cfg.Resilience.TimeoutSec) * time.Second,
		MaxAttempts:         cfg.Resilience.Retry.MaxAttempts,
		BreakerThreshold:    cfg.Resilience.Breaker.FailureThreshold,
		BreakerOpenDuration: time.Duration(cfg.Resilience.Breaker.BreakSec) * time.Second,
	}, logEntry)

	exchanger := obo.NewExchanger(obo.Config{
		TokenEndpoint: cfg.IDP.Issuer + "/oauth2/v2.0/token",
		ClientID:      cfg.OBO.Client.ID,
		ClientSecret:  cfg.OBO.Client.Secret,
		SafetyMargin:  time.Duration(cfg.Cache.TTL.OBOSafetyMarginSec) * time.Second,
	}, sharedCache, &http.Client{Transport: resilienceTransport})

	graphFactory, err := graphclient.New(graphclient.Config{
		TenantID: cfg.IDP.TenantID,
		ClientID: cfg.OBO.Client.ID,
		Scopes:   []string{cfg.GraphBaseURL + "/.default"},
	}, exchanger, resilienceTransport)
	if err != nil {
		logEntry.WithError(err).Fatal("failed to initialize graph client factory")
	}

	accessSource, err := buildAccessSource(ctx, *cfg)
	if err != nil {
		logEntry.WithError(err).Fatal("failed to initialize access data source")
	}
	cachedAccess := access.NewCached(accessSource, sharedCache, time.Duration(cfg.Cache.TTL.AccessSnapshotSec)*time.Second)

	auditLogger := common.NewLogger(common.LoggerConfig{
		Level:   common.LogLevel(cfg.Audit.Level),
		Format:  "json",
		Service: cfg.ServiceName,
		Version: serviceVersion,
	})
	engine := authz.New(logrus.NewEntry(auditLogger).WithField("service", cfg.ServiceName))
	mediator := authzhttp.NewMediator(cachedAccess, engine)

	policies := ratelimit.DefaultPolicies()
	applyPolicyOverrides(policies, cfg.RateLimits)
	limiter := ratelimit.New(policies)

	ledger := idempotency.New(sharedCache)

	svc := &service{
		graph:    graphFactory,
		log:      logEntry,
		mediator: mediator,
		limiter:  limiter,
		ledger:   ledger,
	}

	e := sdaphttp.NewEchoServer(sdaphttp.ServerConfig{
		Port:           cfg.Port,
		AllowedOrigins: []string{"*"},
	})
	e.HTTPErrorHandler = problem.Handler(logEntry)

	e.GET("/healthz", sdaphttp.ReadinessHandler(cfg.ServiceName, serviceVersion, sharedCache.Degraded))
	e.GET("/ping", sdaphttp.HealthCheckHandler(cfg.ServiceName, serviceVersion))

	registerRoutes(e, svc, validator)

	consumerPool := startWorkerPool(ctx, *cfg, logEntry, cachedAccess, ledger)

	go func() {
		if err := sdaphttp.StartServer(e, sdaphttp.ServerConfig{Port: cfg.Port}); err != nil {
			logEntry.WithError(err).Info("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logEntry.Info("shutdown signal received")
	cancelBackground()
	if consumerPool != nil {
		consumerPool.Stop()
	}

	if err := sdaphttp.GracefulShutdown(e, 10*time.Second); err != nil {
		logEntry.WithError(err).Error("graceful shutdown failed")
	}
}

func buildSharedCache(cfg config.Config, log *logrus.Entry) cache.Shared {
	if cfg.Cache.Backend == "networked" && cfg.RedisAddr != "" {
		return cache.NewRedis(cfg.RedisAddr, log)
	}
	return cache.NewMemory(false)
}

// startCacheProbe periodically calls Probe on a Redis-backed shared cache so
// a transient network blip self-heals without a restart; it is a no-op for
// any other Shared implementation.
func startCacheProbe(ctx context.Context, shared cache.Shared) {
	redisCache, ok := shared.(*cache.Redis)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				redisCache.Probe(ctx)
			}
		}
	}()
}

func buildAccessSource(ctx context.Context, cfg config.Config) (access.Source, error) {
	switch cfg.AccessSource.Backend {
	case "postgres":
		return access.NewPostgres(cfg.AccessSource.PostgresDSN)
	default:
		return access.NewCouchDB(ctx, cfg.AccessSource.CouchDBURL, cfg.AccessSource.CouchDBName)
	}
}

func applyPolicyOverrides(policies map[string]ratelimit.Policy, overrides map[string]config.RateLimitPolicy) {
	for name, o := range overrides {
		p, ok := policies[name]
		if !ok {
			p = ratelimit.Policy{Name: name}
		}
		if o.Strategy != "" {
			p.Strategy = ratelimit.Strategy(o.Strategy)
		}
		if o.Capacity != 0 {
			p.Capacity = o.Capacity
		}
		if o.RefillRate != 0 {
			p.RefillRate = o.RefillRate
		}
		if o.Limit != 0 {
			p.Limit = o.Limit
		}
		if o.Window != 0 {
			p.Window = o.Window
		}
		if o.MaxInFlight != 0 {
			p.MaxInFlight = o.MaxInFlight
		}
		policies[name] = p
	}
}

func startWorkerPool(ctx context.Context, cfg config.Config, log *logrus.Entry, cachedAccess *access.Cached, ledger *idempotency.Ledger) *worker.Pool {
	if cfg.AMQPURL == "" {
		log.Warn("amqpUrl not configured, background consumers disabled")
		return nil
	}

	svc, err := queue.NewService(queue.Config{URL: cfg.AMQPURL}, log)
	if err != nil {
		log.WithError(err).Error("failed to connect to AMQP broker, background consumers disabled")
		return nil
	}

	pool := worker.NewPool(svc, ledger, log,
		worker.PermissionChangedSpec(cachedAccess, log),
		worker.JobSubmittedSpec(log),
	)
	pool.Start(ctx)
	return pool
}
