// Package server assembles stores, services, handlers and workers from
// configuration. cmd/server and the end-to-end tests share it.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	alertHandler "warden/internal/alert/handler"
	alertMetrics "warden/internal/alert/metrics"
	"warden/internal/alert/notifier"
	alertService "warden/internal/alert/service"
	alertStore "warden/internal/alert/store"
	ceremonyHandler "warden/internal/ceremony/handler"
	ceremonyMetrics "warden/internal/ceremony/metrics"
	ceremonyService "warden/internal/ceremony/service"
	"warden/internal/ceremony/store/challenge"
	"warden/internal/ceremony/store/credential"
	"warden/internal/ceremony/workers/reaper"
	identityService "warden/internal/identity/service"
	"warden/internal/identity/store/revocation"
	subjectStore "warden/internal/identity/store/subject"
	"warden/internal/identity/token"
	impersonationHandler "warden/internal/impersonation/handler"
	impersonationMetrics "warden/internal/impersonation/metrics"
	impersonationService "warden/internal/impersonation/service"
	impersonationStore "warden/internal/impersonation/store"
	mfaHandler "warden/internal/mfa/handler"
	mfaMetrics "warden/internal/mfa/metrics"
	mfaService "warden/internal/mfa/service"
	mfaStore "warden/internal/mfa/store"
	"warden/internal/platform/config"
	"warden/internal/platform/database"
	"warden/internal/platform/health"
	"warden/internal/platform/kafka/producer"
	redisClient "warden/internal/platform/redis"
	ratelimitHandler "warden/internal/ratelimit/handler"
	ratelimitMetrics "warden/internal/ratelimit/metrics"
	ratelimitMiddleware "warden/internal/ratelimit/middleware"
	ratelimit "warden/internal/ratelimit/models"
	ratelimitService "warden/internal/ratelimit/service"
	"warden/internal/ratelimit/store/allowlist"
	"warden/internal/ratelimit/store/counter"
	"warden/internal/ratelimit/workers/cleanup"
	sessionHandler "warden/internal/session/handler"
	sessionMetrics "warden/internal/session/metrics"
	session "warden/internal/session/models"
	sessionService "warden/internal/session/service"
	sessionStore "warden/internal/session/store"
	"warden/internal/session/workers/sweep"
	httptransport "warden/internal/transport/http"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/audit/publisher"
	auditMemory "warden/pkg/platform/audit/store/memory"
	auditPostgres "warden/pkg/platform/audit/store/postgres"
	"warden/pkg/platform/middleware/metadata"
	"warden/pkg/platform/middleware/request"
	"warden/pkg/platform/tracer"
)

const (
	auditBuffer        = 1024
	poolStatsInterval  = 15 * time.Second
	defaultAlertsTopic = "warden.security-alerts"
)

// App is a fully wired instance.
type App struct {
	Handler  http.Handler
	Identity *identityService.Service
	Reaper   *reaper.Reaper
	Sweeper  *sweep.Sweeper
	Cleanup  *cleanup.Service

	redis   *redisClient.Client
	logger  *slog.Logger
	closers []func() error
}

// Registry is the metrics registry the app registers into and /metrics serves.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

type storage struct {
	// db backs durable stores; nil with the memory backend.
	db          *sql.DB
	rateLimitDB *sql.DB
	redis       *redisClient.Client
}

// Build connects backends and wires every component. Close releases them.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg Registry) (*App, error) {
	app := &App{logger: logger}
	if reg != nil {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	st, err := app.connect(ctx, cfg, reg)
	if err != nil {
		return nil, app.fail(err)
	}

	healthHandler := health.New(cfg.Server.Environment)
	if st.db != nil {
		healthHandler.RegisterCheck("database", st.db.PingContext)
	}
	if st.redis != nil {
		healthHandler.RegisterCheck("redis", st.redis.Health)
	}

	var auditStore audit.Store = auditMemory.New()
	if st.db != nil {
		auditStore = auditPostgres.New(st.db)
	}
	auditor := publisher.New(auditStore, publisher.WithAsyncBuffer(auditBuffer), publisher.WithLogger(logger))
	app.closers = append(app.closers, func() error { auditor.Close(); return nil })

	otel, err := app.tracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, app.fail(err)
	}

	// Identity
	var subjects identityService.SubjectStore = subjectStore.NewInMemoryStore()
	var revocations identityService.RevocationList = revocation.NewInMemory()
	if st.db != nil {
		subjects = subjectStore.NewPostgres(st.db)
		revocations = revocation.NewPostgres(st.db)
	}
	if st.redis != nil {
		revocations = revocation.NewRedis(st.redis.Client)
	}
	jwt := token.NewJWTService(cfg.Tokens.SigningKey, cfg.Tokens.Issuer, cfg.Tokens.Audience, cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL)
	identity := identityService.New(subjects, revocations, jwt,
		identityService.WithLogger(logger),
		identityService.WithAuditor(auditor),
	)
	app.Identity = identity

	// Alerts
	alertRecords := alertService.Store(alertStore.NewInMemoryStore())
	if st.db != nil {
		alertRecords = alertStore.NewPostgres(st.db)
	}
	notifiers := notifier.Multi{notifier.NewLog(logger)}
	if cfg.Kafka.Brokers != "" {
		prod, err := producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Acks:            cfg.Kafka.Acks,
			Retries:         cfg.Kafka.Retries,
			DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		}, logger)
		if err != nil {
			return nil, app.fail(err)
		}
		app.closers = append(app.closers, prod.Close)
		healthHandler.RegisterCheck("kafka", prod.Health)
		topic := cfg.Kafka.AlertTopic
		if topic == "" {
			topic = defaultAlertsTopic
		}
		notifiers = append(notifiers, notifier.NewKafka(prod, topic))
	}
	alerts, err := alertService.New(alertRecords,
		alertService.WithLogger(logger),
		alertService.WithNotifier(notifiers),
		alertService.WithAuditor(auditor),
		alertService.WithMetrics(alertMetrics.New(reg)),
	)
	if err != nil {
		return nil, app.fail(err)
	}
	app.closers = append(app.closers, func() error { alerts.Close(); return nil })

	// Sessions
	var sessionRecords interface {
		sessionService.Store
		sweep.SubjectLister
	} = sessionStore.NewInMemoryStore()
	if st.db != nil {
		sessionRecords = sessionStore.NewPostgres(st.db)
	}
	sessMetrics := sessionMetrics.New(reg)
	sessions, err := sessionService.New(sessionRecords,
		sessionService.WithLogger(logger),
		sessionService.WithPolicy(session.DetectorPolicy{
			StaleAfter:      cfg.Session.StaleAfter,
			MaxConcurrent:   cfg.Session.MaxConcurrent,
			NewDeviceWindow: cfg.Session.NewDeviceWindow,
			TravelWindow:    cfg.Session.TravelWindow,
		}),
		sessionService.WithAuditor(auditor),
		sessionService.WithMetrics(sessMetrics),
	)
	if err != nil {
		return nil, app.fail(err)
	}
	monitor, err := sessionService.NewMonitor(sessions, alerts, sessMetrics, logger)
	if err != nil {
		return nil, app.fail(err)
	}
	app.Sweeper, err = sweep.New(sessionRecords, monitor,
		sweep.WithSchedule(cfg.Workers.AnomalySweepSchedule),
		sweep.WithLookback(cfg.Workers.AnomalySweepLookback),
		sweep.WithLogger(logger),
		sweep.WithMetrics(sessMetrics),
	)
	if err != nil {
		return nil, app.fail(err)
	}

	// Ceremonies
	var challenges interface {
		ceremonyService.ChallengeStore
		reaper.ChallengeStore
	} = challenge.NewInMemoryStore()
	var credentials ceremonyService.CredentialStore = credential.NewInMemoryStore()
	if st.db != nil {
		challenges = challenge.NewPostgres(st.db)
		credentials = credential.NewPostgres(st.db)
	}
	if st.redis != nil {
		challenges = challenge.NewRedis(st.redis.Client)
	}
	cerMetrics := ceremonyMetrics.New(reg)
	ceremonies, err := ceremonyService.New(challenges, credentials, identity, ceremonyService.Config{
		RPID:             cfg.WebAuthn.RPID,
		RPName:           cfg.WebAuthn.RPName,
		Origins:          cfg.WebAuthn.Origins,
		ChallengeTTL:     cfg.WebAuthn.ChallengeTTL,
		Timeout:          cfg.WebAuthn.Timeout,
		UserVerification: cfg.WebAuthn.UserVerification,
	},
		ceremonyService.WithLogger(logger),
		ceremonyService.WithAuditor(auditor),
		ceremonyService.WithMetrics(cerMetrics),
		ceremonyService.WithTracer(otel),
	)
	if err != nil {
		return nil, app.fail(err)
	}
	reaperOpts := []reaper.Option{
		reaper.WithInterval(cfg.Workers.ReaperInterval),
		reaper.WithLogger(logger),
		reaper.WithMetrics(cerMetrics),
	}
	if expiring, ok := revocations.(reaper.RevocationStore); ok {
		reaperOpts = append(reaperOpts, reaper.WithRevocations(expiring))
	}
	app.Reaper, err = reaper.New(challenges, reaperOpts...)
	if err != nil {
		return nil, app.fail(err)
	}

	// Impersonation
	var contexts impersonationService.ContextStore = impersonationStore.NewInMemoryStore()
	if st.redis != nil {
		contexts = impersonationStore.NewRedis(st.redis.Client)
	}
	broker, err := impersonationService.New(subjects, identity, identity, contexts,
		impersonationService.WithLogger(logger),
		impersonationService.WithAuditor(auditor),
		impersonationService.WithMetrics(impersonationMetrics.New(reg)),
		impersonationService.WithTracer(otel),
		impersonationService.WithSessions(sessions),
		impersonationService.WithContextTTL(cfg.Impersonation.ContextTTL),
	)
	if err != nil {
		return nil, app.fail(err)
	}

	// Second factor
	var factors mfaService.Store = mfaStore.NewInMemoryStore()
	if st.db != nil {
		factors = mfaStore.NewPostgres(st.db)
	}
	mfa, err := mfaService.New(factors,
		mfaService.WithLogger(logger),
		mfaService.WithIssuer(cfg.MFA.Issuer),
		mfaService.WithRecoveryCodeCount(cfg.MFA.RecoveryCodeCount),
		mfaService.WithAlerts(alerts),
		mfaService.WithAuditor(auditor),
		mfaService.WithMetrics(mfaMetrics.New(reg)),
	)
	if err != nil {
		return nil, app.fail(err)
	}

	// Rate limiting
	counters, err := counterStore(cfg.RateLimit.Backend, st)
	if err != nil {
		return nil, app.fail(err)
	}
	allowed := allowlistStore(st)
	rlMetrics := ratelimitMetrics.New(reg)
	limiter, err := ratelimitService.New(counters,
		ratelimitService.WithLogger(logger),
		ratelimitService.WithAllowlist(allowed),
		ratelimitService.WithPolicy(ratelimit.Policy{Max: cfg.RateLimit.Max, Window: cfg.RateLimit.Window}),
		ratelimitService.WithAuditor(auditor),
		ratelimitService.WithMetrics(rlMetrics),
	)
	if err != nil {
		return nil, app.fail(err)
	}
	app.Cleanup = cleanup.New(counters,
		cleanup.WithLogger(logger),
		cleanup.WithInterval(cfg.Workers.RateLimitCleanupInterval),
		cleanup.WithMetrics(rlMetrics),
		cleanup.WithAllowlist(allowed),
	)

	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, app.fail(err)
	}
	app.Handler = httptransport.NewRouter(
		httptransport.Config{
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			TrustedProxies: proxies,
			DeviceCookie:   cfg.Server.DeviceCookie,
		},
		httptransport.Deps{
			Logger:      logger,
			Tokens:      identity,
			Revocations: identity,
			Limiter:     ratelimitMiddleware.New(limiter, logger),
			Metrics:     request.NewMetrics(reg),
			Gatherer:    reg,
		},
		httptransport.Handlers{
			Health:        healthHandler,
			Ceremony:      ceremonyHandler.New(ceremonies, sessions, monitor, identity, logger),
			Sessions:      sessionHandler.New(sessions, logger),
			Alerts:        alertHandler.New(alerts, logger),
			Impersonation: impersonationHandler.New(broker, logger),
			MFA:           mfaHandler.New(mfa, identity, logger),
			RateLimit:     ratelimitHandler.New(limiter, subjects, logger),
		},
	)
	return app, nil
}

func (a *App) connect(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*storage, error) {
	st := &storage{}
	needsDB := cfg.Storage.Backend == "postgres" || cfg.RateLimit.Backend == "postgres"
	if needsDB {
		pool, err := database.New(ctx, database.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, reg)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			return nil, errors.New("database.url is required for the postgres backend")
		}
		a.closers = append(a.closers, pool.Close)
		if cfg.Storage.Backend == "postgres" {
			st.db = pool.DB()
		}
		st.rateLimitDB = pool.DB()
	}
	client, err := redisClient.New(ctx, cfg.Redis, reg)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.closers = append(a.closers, client.Close)
		st.redis = client
		a.redis = client
	}
	return st, nil
}

func counterStore(backend string, st *storage) (interface {
	ratelimitService.CounterStore
	cleanup.CounterStore
}, error) {
	switch backend {
	case "postgres":
		return counter.NewPostgres(st.rateLimitDB), nil
	case "redis":
		if st.redis == nil {
			return nil, errors.New("redis.url is required for redis rate limiting")
		}
		return counter.NewRedis(st.redis.Client), nil
	case "memory", "":
		return counter.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", backend)
	}
}

// allowlistStore uses postgres whenever a pool is open.
func allowlistStore(st *storage) interface {
	ratelimitService.AllowlistStore
	cleanup.AllowlistStore
} {
	if st.rateLimitDB != nil {
		return allowlist.NewPostgres(st.rateLimitDB)
	}
	return allowlist.NewInMemoryStore()
}

// tracing installs an exporting provider when enabled. Otherwise spans go to
// the global provider, which drops them.
func (a *App) tracing(ctx context.Context, cfg config.TracingConfig) (*tracer.OTelTracer, error) {
	if !cfg.Enabled {
		return tracer.NewOTel(), nil
	}
	tp, err := tracer.NewProvider(ctx, tracer.ProviderConfig{
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		SampleRatio:    cfg.SampleRatio,
		ServiceName:    "warden",
		ServiceVersion: health.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	return tracer.NewOTel(tracer.WithProvider(tp)), nil
}

func (a *App) fail(err error) error {
	a.Close() //nolint:errcheck // best-effort cleanup on init failure
	return err
}

// RunWorkers runs the background workers until ctx is cancelled or one fails.
func (a *App) RunWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Reaper.Start(ctx) })
	g.Go(func() error { return a.Sweeper.Start(ctx) })
	g.Go(func() error { return a.Cleanup.Start(ctx) })
	if a.redis != nil {
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					a.redis.RecordPoolStats()
				}
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
