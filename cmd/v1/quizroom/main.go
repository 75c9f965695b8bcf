package main

import (
	"context"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/quizbattle/quizroom/internal/v1/auth"
	"github.com/quizbattle/quizroom/internal/v1/catalog"
	"github.com/quizbattle/quizroom/internal/v1/config"
	"github.com/quizbattle/quizroom/internal/v1/gateway"
	"github.com/quizbattle/quizroom/internal/v1/health"
	"github.com/quizbattle/quizroom/internal/v1/logging"
	"github.com/quizbattle/quizroom/internal/v1/middleware"
	"github.com/quizbattle/quizroom/internal/v1/ratelimit"
	"github.com/quizbattle/quizroom/internal/v1/store"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	// --- Snapshot stores ---
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStartup()

	durable, err := store.NewPostgresStore(startupCtx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Postgres snapshot store initialized")

	var redisClient *redis.Client
	var hot *store.RedisHotCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(startupCtx).Err(); err != nil {
			slog.Error("Failed to connect to Redis, running without hot snapshot tier", "error", err)
			redisClient = nil
		} else {
			hot = store.NewRedisHotCacheFromClient(redisClient,
				time.Duration(cfg.HotSnapshotTTLSeconds)*time.Second)
			slog.Info("✅ Redis hot snapshot cache initialized")
		}
	} else {
		slog.Info("Running without hot snapshot tier (REDIS_URL not set)")
	}

	var hotTier store.HotCache
	var hotPinger health.Pinger
	if hot != nil {
		hotTier = hot
		hotPinger = hot
	}
	tiered := store.NewTiered(hotTier, durable,
		time.Duration(cfg.HotSnapshotIntervalMs)*time.Millisecond,
		time.Duration(cfg.DBSnapshotIntervalMs)*time.Millisecond)

	// --- Question catalog ---
	rng := mrand.New(mrand.NewSource(time.Now().UnixNano()))
	bank, err := catalog.Load(cfg.CatalogPath, rng)
	if err != nil {
		slog.Error("Failed to load question catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Question catalog loaded", "topics", len(bank.SupportedTopics()))

	// --- Identity validator ---
	var validator gateway.IdentityResolver
	if cfg.AuthJWTSecret != "" {
		v, err := auth.NewValidator(cfg.AuthJWTSecret)
		if err != nil {
			slog.Error("Failed to create auth validator", "error", err)
			os.Exit(1)
		}
		validator = v
		slog.Info("✅ JWT identity validator initialized")
	} else if cfg.DevelopmentMode {
		slog.Warn("⚠️ Authentication DISABLED for development - DO NOT USE IN PRODUCTION")
		validator = &auth.MockValidator{}
	} else {
		slog.Info("Running guest-only (AUTH_JWT_SECRET not set)")
	}

	// --- Rate limiter ---
	rateLimiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	hub := gateway.NewHub(gateway.Deps{
		Store:       tiered,
		Catalog:     bank,
		Validator:   validator,
		RateLimiter: rateLimiter,
		Rand:        rng,
		MaxPlayers:  cfg.MaxPlayers,
	})

	// --- Set up Server ---
	router := gin.Default()
	corsConfig := cors.DefaultConfig()
	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	corsConfig.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsConfig))

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	// Room API and both WebSocket paths
	hub.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(hotPinger, durable)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	go func() {
		slog.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Flush every resident room through both snapshot tiers
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during Hub shutdown:", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	if hot != nil {
		if err := hot.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}
	durable.Close()

	slog.Info("Server exiting")
}
