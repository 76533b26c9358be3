package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docport/gateway/handlers"
	"github.com/docport/gateway/internal/backend"
	"github.com/docport/gateway/internal/chat"
	"github.com/docport/gateway/internal/config"
	"github.com/docport/gateway/internal/documents"
	"github.com/docport/gateway/internal/idp"
	"github.com/docport/gateway/internal/session"
	"github.com/docport/gateway/internal/store"
	"github.com/docport/gateway/pkg/logger"
	"github.com/docport/gateway/pkg/metrics"
	"github.com/docport/gateway/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging first (LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_PRETTY") == "true")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: backend=%s azure_tenant_set=%v mongo=%v redis=%v",
		cfg.Backend.BaseURL, cfg.AzureAD.TenantID != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	ctx := context.Background()

	// Redis first: session store, logout blacklist and the distributed rate
	// limiter all prefer it
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// session store: Redis, then Mongo, then in-memory for development
	var repo store.Repository
	var mongoClient *mongo.Client
	switch {
	case redisClient != nil:
		repo = store.NewRedisRepository(redisClient, "session:")
		logger.Info("using Redis for session storage")
	case cfg.MongoDB.URI != "":
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = store.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Fatalf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		}
		defer func() { _ = mongoClient.Disconnect(ctx) }()
		col := mongoClient.Database(cfg.MongoDB.Database).Collection("sessions")
		repo = store.NewMongoRepository(col)
		logger.Info("using MongoDB for session storage")
	default:
		repo = store.NewMemoryRepository()
		logger.Warn("no Redis or MongoDB configured, sessions are in-memory and will not survive restarts")
	}
	blacklist := store.NewBlacklist(redisClient)

	// identity provider: discovery runs in the background, the reconciler
	// waits on readiness before its first pass
	provider := idp.New(
		idp.AzureIssuer(cfg.AzureAD.TenantID),
		cfg.AzureAD.ClientID,
		cfg.AzureAD.ClientSecret,
		cfg.AzureAD.RedirectURL,
		cfg.AzureAD.APIScope,
	)
	go func() {
		backoff := time.Second
		for {
			if err := provider.Initialize(ctx); err == nil {
				return
			} else {
				logger.Errorf("identity provider discovery failed, retrying in %s: %v", backoff, err)
			}
			time.Sleep(backoff)
			if backoff < time.Minute {
				backoff *= 2
			}
		}
	}()

	api := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	reconciler := session.New(
		repo,
		blacklist,
		provider,
		api,
		idp.DefaultStrategies(provider),
		cfg.Session.TTL,
		cfg.Session.RecheckInterval,
	)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready only when the provider finished discovery and the backend answers
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"idp":     provider.Initialized(),
			"backend": api.Health(c.Request.Context()) == nil,
			"redis":   redisClient != nil || cfg.Redis.Host == "",
		}
		ready := deps["idp"] && deps["backend"] && deps["redis"]
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	authHandler := handlers.NewAuthHandler(cfg, provider, reconciler)
	authHandler.Register(r)
	handlers.RegisterSwagger(r)

	guard := middleware.Guard(middleware.GuardConfig{
		Reconciler: reconciler,
		Store:      repo,
		CookieName: cfg.Session.CookieName,
		LoginPath:  "/auth/login",
	})
	apiGroup := r.Group("/api/v1", guard)
	handlers.NewDocumentsHandler(documents.NewService(api)).Register(apiGroup)
	handlers.NewChatHandler(chat.NewService(api)).Register(apiGroup)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting gateway on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
