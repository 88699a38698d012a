package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/config"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/database"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/handlers"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/identity"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/middleware"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/realtime"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/routes"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/services"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/store"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 0. Config & logger
	cfg, err := config.Load(".env")
	if err != nil {
		logger.Init("development", "info")
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Info().Str("environment", cfg.Env).Msg("Starting messaging backend...")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database unavailable")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("Database migration failed")
	}

	// 2. Redis, or in-process fallbacks
	var (
		cache identity.Cache
		rdb   redis.Cmdable
	)
	client, redisOK := database.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if redisOK {
		defer client.Close()
		rdb = client
		cache = identity.NewRedisCache(client, "messaging:")
	} else {
		client.Close()
		mem := identity.NewMemoryCache()
		defer mem.Close()
		cache = mem
	}

	// 3. Identity
	policy := identity.RetryPolicy{
		Attempts:  cfg.DirectoryAttempts,
		BaseDelay: cfg.DirectoryBaseDelay,
		MaxDelay:  cfg.DirectoryMaxDelay,
		Jitter:    cfg.DirectoryJitter,
		Timeout:   cfg.DirectoryTimeout,
	}
	directory := identity.NewDirectory(
		cfg.DirectoryURL,
		identity.NewRetryClient(policy, http.DefaultClient),
		identity.WithSystemMember(cfg.SystemMemberID, cfg.SystemMemberName),
	)
	resolver := identity.NewResolver(identity.ResolverConfig{
		Secret:     cfg.JWTSecret,
		ProfileTTL: cfg.ProfileCacheTTL,
		MembersTTL: cfg.DirectoryCacheTTL,
	}, directory, cache)

	// 4. Messaging and realtime
	st := store.New(db)
	messaging := services.NewMessagingService(st, st, resolver, nil)

	origins := splitOrigins(cfg.FrontendURL)
	registry := realtime.NewRegistry()
	sockets := realtime.NewServer(resolver, messaging, registry, realtime.ServerOptions{
		AllowedOrigins: origins,
		RequestTimeout: cfg.DirectoryTimeout,
	})
	sockets.Serve()
	defer sockets.Close()

	var relayOpts []realtime.RelayOption
	if cfg.RealtimeFanout && redisOK {
		relayOpts = append(relayOpts, realtime.WithRedisFanout(client, cfg.RealtimeChannel))
	}
	relay := realtime.NewRelay(sockets, relayOpts...)
	messaging.SetPublisher(relay)
	go func() {
		if err := relay.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Realtime fan-out stopped")
		}
	}()

	// 5. HTTP
	limits := middleware.DefaultLimits()
	defer limits.Stop()

	router := routes.NewRouter(routes.Options{
		Handler:        handlers.New(messaging),
		Resolver:       resolver,
		Limits:         limits,
		AllowedOrigins: origins,
		Socket:         sockets.Handler(),
		DB:             db,
		Redis:          rdb,
		Connections:    registry,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Bool("fanout", relay.Fanout()).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Server exited gracefully")
}

// splitOrigins accepts a comma separated FRONTEND_URL.
func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
