package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/handson"
	"github.com/MrEthical07/handson/cache"
	"github.com/MrEthical07/handson/internal/api"
	"github.com/MrEthical07/handson/internal/config"
	"github.com/MrEthical07/handson/internal/logging"
	"github.com/MrEthical07/handson/internal/rate"
	"github.com/MrEthical07/handson/internal/storage/memory"
	"github.com/MrEthical07/handson/internal/storage/postgres"
	promexport "github.com/MrEthical07/handson/metrics/export/prometheus"
	"github.com/MrEthical07/handson/middleware"
	"github.com/MrEthical07/handson/ratelimit"
)

type userBackend interface {
	handson.UserStore
	handson.UserDirectory
	Ping(context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, closeUsers, err := initUsers(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("init user store: %w", err)
	}
	defer closeUsers()

	userCache, closeCache := initCache(cfg, logger)
	defer closeCache()

	engine, err := initEngine(cfg, users, logger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer engine.Close()

	tracker := rate.NewTracker()
	janitorDone := tracker.StartJanitor(ctx, rate.DefaultSweepInterval)

	policy := ratelimit.FailOpen
	if cfg.RateLimit.FailClosed {
		policy = ratelimit.FailClosed
	}
	gate, err := ratelimit.New(ratelimit.Config{
		Limit:             cfg.RateLimit.RequestLimit,
		Window:            cfg.RateLimitWindow(),
		FailurePolicy:     policy,
		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
	}, tracker,
		ratelimit.WithIdentity(middleware.IdentityFromBearer(engine)),
		ratelimit.WithMetrics(engine.Metrics()),
		ratelimit.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init admission gate: %w", err)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		tracked := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "handson_rate_limit_tracked_keys",
			Help: "Client keys with a live rate limit window.",
		}, func() float64 { return float64(tracker.Len()) })
		metricsHandler, err = promexport.Handler(engine, tracked)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	health := []api.HealthCheck{{Name: "database", Check: users.Ping}}
	if p, ok := userCache.(cache.Pinger); ok {
		health = append(health, api.HealthCheck{Name: "cache", Check: p.Ping})
	}

	mux := api.NewHandler(api.Deps{
		Auth:     engine,
		Users:    users,
		Cache:    userCache,
		CacheTTL: cfg.CacheTTL(),
		Health:   health,
		Metrics:  metricsHandler,
		Logger:   logger,
	})

	handler := middleware.Chain(gate.Middleware(mux),
		middleware.Recover(logger),
		middleware.RequestID,
		middleware.ClientIP(cfg.RateLimit.TrustForwardedFor),
		middleware.Logging(logger),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr,
			"rate_limit", gate.Config().Limit,
			"window", gate.Config().Window.String(),
			"failure_policy", gate.Config().FailurePolicy.String(),
		)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	stop()
	<-janitorDone
	return nil
}

func initUsers(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (userBackend, func(), error) {
	if cfg.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory user store")
		return memory.New(), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	store := postgres.New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store, closeDB(db, logger), nil
}

func closeDB(db *sql.DB, logger *slog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Warn("close database", "error", err)
		}
	}
}

func initCache(cfg config.Config, logger *slog.Logger) (cache.Cache, func()) {
	switch strings.ToLower(cfg.Cache.Backend) {
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewRedis(client, "handson:"), func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}
	case "none":
		return cache.Nop{}, func() {}
	default:
		return cache.NewMemory(), func() {}
	}
}

func initEngine(cfg config.Config, users handson.UserStore, logger *slog.Logger) (*handson.Engine, error) {
	engineCfg := handson.DefaultConfig()
	engineCfg.JWT = handson.JWTConfig{
		Secret:   []byte(cfg.JWT.Key),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}
	engineCfg.Password.Algorithm = cfg.Password.Algorithm
	engineCfg.Metrics.Enabled = cfg.Metrics.Enabled

	var sink handson.AuditSink
	switch strings.ToLower(cfg.Audit.Sink) {
	case "json":
		sink = handson.NewJSONWriterSink(os.Stdout)
	case "slog":
		sink = handson.NewSlogSink(logger)
	default:
		engineCfg.Audit.Enabled = false
	}

	return handson.New().
		WithConfig(engineCfg).
		WithUserStore(users).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
}
