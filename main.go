package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/qabase/qabase/backend/go-services/handlers"
	"github.com/qabase/qabase/backend/go-services/internal/config"
	"github.com/qabase/qabase/backend/go-services/internal/content/handler"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/internal/content/service"
	"github.com/qabase/qabase/backend/go-services/internal/database"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
	"github.com/qabase/qabase/backend/go-services/pkg/metrics"
	"github.com/qabase/qabase/backend/go-services/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mode=%s mongo=%v redis=%v minio=%v", cfg.Mode, cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := gin.New()

	// Lightweight CORS middleware for the static frontend.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	// Redis is optional; it backs the shared rate limiter when configured.
	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			rdb = nil
		} else {
			logger.Infof("connected to Redis: %s", addr)
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win, nil))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst, nil))
		}
	}

	// Content store: MongoDB when configured, in-memory otherwise so the
	// frontend can be developed without a database.
	var store repository.Store
	mongoReady := false
	if cfg.MongoDB.URI != "" {
		repo, client, err := database.OpenStore(ctx, cfg.MongoDB, 5)
		if err != nil {
			logger.Fatalf("could not open MongoDB store: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		store, mongoReady = repo, true
	} else {
		logger.Warnf("no MongoDB URI for mode %s; serving from an in-memory store", cfg.Mode)
		store = repository.NewMemoryRepo()
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when the configured dependencies are reachable
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{"store": store != nil}
		ready := deps["store"]
		if cfg.MongoDB.URI != "" {
			deps["mongodb"] = mongoReady
			ready = ready && mongoReady
		}
		if cfg.RateLimit.Enabled && cfg.RateLimit.UseRedis {
			deps["redis"] = rdb != nil && rdb.Ping(c.Request.Context()).Err() == nil
			ready = ready && deps["redis"]
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	handler.RegisterContentRoutes(r, service.New(store))
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting content service on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}
