/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

// Command mobgames-site runs the backend of the Mob Games jam site:
// Slack sign-in, participant data in Airtable and request throttling of the API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	golog "log"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/mobgames/site/httpclient"
	"github.com/mobgames/site/httpserver"
	"github.com/mobgames/site/internal/airtable"
	"github.com/mobgames/site/internal/buildinfo"
	"github.com/mobgames/site/internal/participant"
	"github.com/mobgames/site/internal/ratelimit"
	"github.com/mobgames/site/internal/session"
	"github.com/mobgames/site/internal/slack"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/lrucache"
	"github.com/mobgames/site/profserver"
	"github.com/mobgames/site/restapi"
	"github.com/mobgames/site/retry"
	"github.com/mobgames/site/service"
)

const (
	metricsNamespace = "mobgames"
	errorDomain      = "MobGames"

	redisStartupPings   = 5
	redisStartupTimeout = 10 * time.Second
)

func main() {
	cfgPath := flag.String("config", "config.yml", "path to the YAML configuration file (optional)")
	envPath := flag.String("env-file", ".env", "path to the file with environment variables (optional)")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		golog.Fatalf("load env file: %v", err)
	}
	cfg, err := loadAppConfig(*cfgPath)
	if err != nil {
		golog.Fatalf("load config: %v", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	if err = run(cfg, logger); err != nil {
		logger.Error("site stopped with error", log.Error(err))
		loggerClose()
		golog.Fatal(err)
	}
}

func run(cfg *AppConfig, logger log.FieldLogger) error {
	logger.Info("starting mobgames site", log.String("version", buildinfo.Version()))

	restapi.MustInitAndRegisterMetrics(metricsNamespace)
	defer restapi.UnregisterMetrics()

	throttling, err := newThrottling(cfg.RateLimit, logger)
	if err != nil {
		return err
	}
	defer throttling.close()

	// One collector serves both upstream clients, they're distinguished by the client_type label.
	clientMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
	clientMetrics.MustRegister(prometheus.DefaultRegisterer)
	defer clientMetrics.Unregister(prometheus.DefaultRegisterer)

	slackClient, profiles, err := newSlack(cfg, clientMetrics, logger)
	if err != nil {
		return err
	}
	store, err := newAirtableStore(cfg, clientMetrics)
	if err != nil {
		return err
	}

	handler := participant.NewHandler(participant.HandlerOpts{
		SlackConfig: cfg.Slack,
		Slack:       slackClient,
		Profiles:    profiles,
		Store:       store,
		Sessions:    session.NewManager(cfg.Session),
		ErrorDomain: errorDomain,
	})

	httpServer, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ErrorDomain: errorDomain,
		Routes:      handler.Register,
		HealthCheck: throttling.healthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{
			Namespace:   metricsNamespace,
			ConstLabels: buildinfo.AddPrometheusVersionLabel(nil),
		},
		RateLimit: httpserver.RateLimitOpts{
			Limiter:   throttling.limiter,
			Config:    cfg.RateLimit,
			Namespace: metricsNamespace,
		},
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	units := []service.Unit{httpServer}
	units = append(units, throttling.units...)
	if cacheTTL := time.Duration(cfg.Slack.ProfileCache.TTL); cacheTTL > 0 {
		units = append(units, lrucache.NewCleanupUnit(profiles, cacheTTL, logger))
	}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}

	return service.New(logger, service.NewCompositeUnit(units...)).Start()
}

// throttling holds the rate limiter of the API and the units maintaining its store.
type throttling struct {
	limiter     ratelimit.Limiter
	units       []service.Unit
	healthCheck httpserver.HealthCheck
	close       func()
}

func newThrottling(cfg *ratelimit.Config, logger log.FieldLogger) (*throttling, error) {
	switch cfg.Backend {
	case ratelimit.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), redisStartupTimeout)
		err := retry.Do(pingCtx, retry.NewConstantBackoffPolicy(time.Second, redisStartupPings), nil,
			func(pingErr error, next time.Duration) {
				logger.Warn("redis is not reachable yet", log.Error(pingErr), log.Duration("next_attempt_in", next))
			},
			func(ctx context.Context) error { return client.Ping(ctx).Err() })
		pingCancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(client, cfg.Limits(),
			ratelimit.WithRedisKeyPrefix(cfg.Redis.KeyPrefix))
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("create redis rate limiter: %w", err)
		}
		logger.Info("rate limiting counters are kept in redis", log.String("address", cfg.Redis.Address))
		return &throttling{
			limiter: limiter,
			healthCheck: func(ctx context.Context) (httpserver.HealthCheckResult, error) {
				status := httpserver.HealthCheckStatusOK
				if pingErr := client.Ping(ctx).Err(); pingErr != nil {
					logger.Warn("redis ping failed", log.Error(pingErr))
					status = httpserver.HealthCheckStatusFail
				}
				return httpserver.HealthCheckResult{"redis": status}, nil
			},
			close: func() {
				if closeErr := client.Close(); closeErr != nil {
					logger.Error("failed to close redis client", log.Error(closeErr))
				}
			},
		}, nil

	default:
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Limits())
		if err != nil {
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
		liveCounters := ratelimit.NewLiveCountersGauge(metricsNamespace, limiter)
		prometheus.MustRegister(liveCounters)
		sweeper := ratelimit.NewSweeperUnit(limiter, limiter.Limits().CleanupInterval, logger, ratelimit.SweeperOpts{
			Metrics: ratelimit.NewSweeperMetrics(metricsNamespace),
		})
		return &throttling{
			limiter: limiter,
			units:   []service.Unit{sweeper},
			close:   func() { prometheus.Unregister(liveCounters) },
		}, nil
	}
}

func newSlack(
	cfg *AppConfig, clientMetrics httpclient.MetricsCollector, logger log.FieldLogger,
) (*slack.Client, *slack.ProfileCache, error) {
	httpClient, err := httpclient.NewWithOpts(cfg.HTTPClient, httpclient.Opts{
		ClientType: "slack",
		UserAgent:  buildinfo.UserAgent(),
		Collector:  clientMetrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create slack http client: %w", err)
	}
	client := slack.NewClient(cfg.Slack, httpClient)

	cacheMetrics := lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{
		Namespace:   metricsNamespace,
		ConstLabels: prometheus.Labels{"cache": "slack_profiles"},
	})
	cacheMetrics.MustRegister(prometheus.DefaultRegisterer)
	profiles, err := slack.NewProfileCache(client, cfg.Slack.ProfileCache, cacheMetrics)
	if err != nil {
		return nil, nil, fmt.Errorf("create slack profile cache: %w", err)
	}
	if cfg.Slack.ClientID == "" || cfg.Slack.ClientSecret == "" {
		logger.Warn("slack client id or secret is not configured, sign-in will fail")
	}
	return client, profiles, nil
}

func newAirtableStore(cfg *AppConfig, clientMetrics httpclient.MetricsCollector) (*airtable.Store, error) {
	httpClient, err := httpclient.NewWithOpts(cfg.HTTPClient, httpclient.Opts{
		ClientType:     "airtable",
		UserAgent:      buildinfo.UserAgent(),
		AuthProvider:   httpclient.StaticTokenProvider(cfg.Airtable.Token),
		RateLimit:      cfg.Airtable.RateLimit,
		RateLimitBurst: cfg.Airtable.RateLimitBurst,
		Collector:      clientMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create airtable http client: %w", err)
	}
	return airtable.NewStore(cfg.Airtable, httpClient), nil
}
