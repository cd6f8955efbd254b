package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"link-tracker/internal/config"
	"link-tracker/internal/geo"
	httpHandler "link-tracker/internal/handler/http"
	"link-tracker/internal/ratelimit"
	redisCache "link-tracker/internal/repository/redis"
	"link-tracker/internal/service"
	"link-tracker/internal/slug"
	"link-tracker/internal/store"
	"link-tracker/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.App.LogLevel)
	appLogger.Info("Starting link tracker",
		"environment", cfg.App.Environment,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	appLogger.Info("Server exited gracefully")
}

// run serves until ctx is cancelled, then drains in-flight requests
func run(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	app, err := newApp(ctx, cfg, appLogger, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Server starting", "address", server.Addr, "base_url", cfg.Server.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return nil
}

// app is the wired dependency graph: store, cache, limiter, service, router
type app struct {
	handler http.Handler
	store   *store.Store
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp builds the HTTP handler for cfg. A nil resolver means the
// configured HTTP geolocation service is used.
func newApp(ctx context.Context, cfg *config.Config, appLogger *logger.Logger, resolver service.GeoResolver) (*app, error) {
	a := &app{}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	appLogger.Info("Store ready", "driver", cfg.Store.Driver)

	// Redis is optional: without it the service reads the store directly
	// and rate limiting falls back to an in-process limiter.
	var redisClient *redis.Client
	var cache service.Cache
	if cfg.Redis.Enabled {
		redisClient, err = redisCache.InitRedis(ctx, cfg.Redis.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without cache", "error", err)
			redisClient = nil
		} else {
			a.closers = append(a.closers, func() { redisClient.Close() })
			cache = redisCache.NewCache(redisClient, cfg.Redis.CacheTTL)
			appLogger.Info("Redis cache enabled", "addr", cfg.Redis.RedisAddr())
		}
	}

	var limiter httpHandler.RateLimiter
	if cfg.App.RateLimitEnabled {
		if redisClient != nil {
			limiter = ratelimit.NewRedisLimiter(redisClient, cfg.App.RateLimitPerMinute, time.Minute)
		} else {
			local := ratelimit.NewLocalLimiter(cfg.App.RateLimitPerMinute, time.Minute)
			sweepCtx, cancel := context.WithCancel(context.Background())
			go local.Run(sweepCtx)
			a.closers = append(a.closers, cancel)
			limiter = local
		}
	}

	if resolver == nil {
		resolver = geo.NewResolver(cfg.Geo.APIURL, cfg.Geo.Timeout, appLogger.Logger)
	}

	tracker := service.NewTrackerService(
		st.Links,
		st.Visits,
		st.Tx,
		slug.NewGenerator(cfg.App.SlugLength),
		resolver,
		cache,
		appLogger,
	).WithSlugAttempts(cfg.App.SlugMaxAttempts)

	handler := httpHandler.NewHandler(tracker, appLogger, cfg.Server.BaseURL)
	a.handler = httpHandler.NewRouter(handler, appLogger, httpHandler.RouterOptions{
		Limiter:       limiter,
		EnableMetrics: cfg.App.EnableMetrics,
		TrustProxy:    cfg.App.TrustProxyHeaders,
	})

	return a, nil
}
