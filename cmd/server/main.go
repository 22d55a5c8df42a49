package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mediaforge/api/internal/auth"
	"github.com/mediaforge/api/internal/client"
	"github.com/mediaforge/api/internal/config"
	"github.com/mediaforge/api/internal/handler"
	"github.com/mediaforge/api/internal/middleware"
	"github.com/mediaforge/api/internal/ratelimit"
	"github.com/mediaforge/api/internal/service"
	"github.com/mediaforge/api/internal/store"
	"github.com/mediaforge/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg.Server.LogLevel)

	// Open the durable job store
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to open database")
	}
	jobStore := store.NewGormStore(db)
	if err := jobStore.Migrate(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis not available")
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize external clients
	groqClient := client.NewGroqClient(&cfg.Groq)
	pollClient := client.NewPollinationsClient(&cfg.Pollinations, logger)

	// Initialize storage (optional - falls back to in-memory mock)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		storage = r2Client
	} else {
		logger.Info().Msg("R2 storage not configured, using mock storage")
		storage = client.NewMockStorage()
	}

	// Initialize credential cipher (optional - fallback key only without it)
	var keyCipher *auth.KeyCipher
	if cfg.Credentials.MasterSecret != "" {
		keyCipher, err = auth.NewKeyCipher(cfg.Credentials.MasterSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize credential cipher")
		}
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			logger.Warn().Err(err).Msg("JWKS verifier not initialized")
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Shared sliding-window rate limiter, backed by the same durable store
	limiter := ratelimit.New(jobStore)

	// Initialize services
	generateService := service.NewGenerateService(jobStore, asynqClient)
	batchService := service.NewBatchService(jobStore, asynqClient)
	enhanceService := service.NewEnhanceService(groqClient)

	// Initialize handlers
	generateHandler := handler.NewGenerateHandler(generateService, validate)
	batchHandler := handler.NewBatchHandler(batchService, validate)
	enhanceHandler := handler.NewEnhanceHandler(enhanceService, validate)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware, optionalAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		logger.Info().Msg("gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
		optionalAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
		optionalAuthMiddleware = authMiddleware.OptionalAuth()
	}
	rateLimitMW := middleware.NewRateLimitMiddleware(limiter)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"groq":    groqClient.IsConfigured(),
				"storage": cfg.R2.AccessKeyID != "",
				"auth":    jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	generateTier := middleware.Tier{Limit: cfg.RateLimit.Generate.Limit, Window: cfg.RateLimit.Generate.Window()}
	generateAnonTier := middleware.Tier{Limit: cfg.RateLimit.GenerateAnon.Limit, Window: cfg.RateLimit.GenerateAnon.Window()}
	enhanceTier := middleware.Tier{Limit: cfg.RateLimit.Enhance.Limit, Window: cfg.RateLimit.Enhance.Window()}
	enhanceAnonTier := middleware.Tier{Limit: cfg.RateLimit.EnhanceAnon.Limit, Window: cfg.RateLimit.EnhanceAnon.Window()}

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Generation routes
	api.Post("/generate", rateLimitMW.Limit("generate", generateTier, generateAnonTier), generateHandler.Start)
	api.Get("/generate/:requestId", generateHandler.Status)

	// Batch routes
	api.Post("/batch", rateLimitMW.Limit("generate", generateTier, generateAnonTier), batchHandler.Start)
	api.Get("/batch/:batchId", batchHandler.Status)
	api.Post("/batch/:batchId/pause", batchHandler.Pause)
	api.Post("/batch/:batchId/resume", batchHandler.Resume)
	api.Post("/batch/:batchId/cancel", batchHandler.Cancel)

	// Prompt enhancement works for anonymous callers too, under its own tier
	app.Post("/api/enhance", optionalAuthMiddleware, rateLimitMW.Limit("enhance", enhanceTier, enhanceAnonTier), enhanceHandler.Enhance)

	// Start Asynq worker server
	go startWorkerServer(cfg, jobStore, pollClient, storage, keyCipher, limiter, logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	logger.Info().Str("addr", addr).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func startWorkerServer(
	cfg *config.Config,
	jobStore store.Store,
	generator client.MediaGenerator,
	storage client.StorageClient,
	keyCipher *auth.KeyCipher,
	limiter *ratelimit.Limiter,
	logger zerolog.Logger,
) {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"generate": 6,
				"batch":    4,
			},
			LogLevel: asynqLogLevel,
		},
	)

	creds := worker.NewCredentialResolver(jobStore, keyCipher, cfg.Pollinations.APIKey)
	budget := worker.RateBudget{
		Limit:  cfg.RateLimit.Generate.Limit,
		Window: cfg.RateLimit.Generate.Window(),
	}

	generateWorker := worker.NewGenerateWorker(jobStore, generator, storage, creds, limiter, budget, logger)
	batchWorker := worker.NewBatchWorker(jobStore, generator, storage, creds, limiter, budget, logger)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, generateWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeBatch, batchWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		logger.Error().Err(err).Msg("asynq worker error")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Info().
			Int("status", c.Response().StatusCode()).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Dur("latency", time.Since(start)).
			Msg("request")
		return err
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
