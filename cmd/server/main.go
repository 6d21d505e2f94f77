// Package main runs the livestream session HTTP server with the live event feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/btlivestream/backend/config"
	"github.com/btlivestream/backend/internal/analytics"
	"github.com/btlivestream/backend/internal/auth"
	"github.com/btlivestream/backend/internal/coordinator"
	"github.com/btlivestream/backend/internal/middleware"
	"github.com/btlivestream/backend/internal/participants"
	"github.com/btlivestream/backend/internal/realtime"
	"github.com/btlivestream/backend/internal/sessions"
	"github.com/btlivestream/backend/internal/worker"
	"github.com/btlivestream/backend/pkg/database"
	"github.com/btlivestream/backend/pkg/queue"
	"github.com/btlivestream/backend/pkg/redis"
	"github.com/btlivestream/backend/pkg/response"
	"github.com/btlivestream/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:         int32(cfg.Database.MaxConns),
		ConnectTimeout:   cfg.Database.ConnectTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var s3Client *storage.S3
	if cfg.AWS.AnalyticsBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AnalyticsBucket:      cfg.AWS.AnalyticsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Stores
	sessionRepo := sessions.NewRepository(pool, cfg.Sessions.RoomCodeMaxAttempts)
	participantRepo := participants.NewRepository(pool)
	collector := analytics.NewCollector(analytics.NewRepository(pool), analytics.Limits{
		UserDefault: cfg.Analytics.UserLimitDefault,
		UserMax:     cfg.Analytics.UserLimitMax,
		BatchMax:    cfg.Analytics.BatchMax,
	}, logger)

	opts := coordinator.Options{
		DefaultMaxParticipants: cfg.Sessions.DefaultMaxParticipants,
		Logger:                 logger,
	}
	if s3Client != nil {
		opts.Archive = s3Client
	}

	// Live feed and export queue (Redis)
	var hub *realtime.Hub
	var exportProcessor *worker.ExportProcessor
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		hub = realtime.NewHub(realtime.NewRedisPubSub(rdb.Client, logger), logger)
		jobQueue := queue.NewQueue(rdb.Client, logger)
		opts.Exports = jobQueue
		if s3Client != nil {
			exportProcessor = worker.NewExportProcessor(sessionRepo, collector, s3Client, jobQueue, logger)
		}
	} else {
		logger.Warn("redis disabled: live feed is instance-local and analytics export is off")
		hub = realtime.NewHub(nil, logger)
	}
	opts.Publisher = hub

	svc := coordinator.NewService(sessionRepo, participantRepo, collector, opts)
	sessionHandler := coordinator.NewHandler(svc, logger)
	authHandler := auth.NewHandler(auth.NewRepository(pool), jwtService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", middleware.JWT(jwtService), authHandler.Me)
	}

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	sessionHandler.Register(api)

	// WebSocket feed (token in query)
	router.GET("/ws/sessions/:id", middleware.JWT(jwtService),
		realtime.ServeFeed(hub, svc, realtime.NewUpgrader(cfg.Server.CORSAllowedOrigins), logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (analytics archive to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if exportProcessor != nil {
		go exportProcessor.Run(workerCtx)
		logger.Info("analytics export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
