// Package main runs the Corkboard HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/corkboard/backend/config"
	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/emaillogs"
	"github.com/corkboard/backend/internal/enrollments"
	"github.com/corkboard/backend/internal/events"
	"github.com/corkboard/backend/internal/mailer"
	"github.com/corkboard/backend/internal/metrics"
	"github.com/corkboard/backend/internal/middleware"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/internal/notifications"
	"github.com/corkboard/backend/internal/realtime"
	"github.com/corkboard/backend/internal/reminders"
	"github.com/corkboard/backend/pkg/broker"
	"github.com/corkboard/backend/pkg/database"
	"github.com/corkboard/backend/pkg/queue"
	"github.com/corkboard/backend/pkg/redis"
	"github.com/corkboard/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var publisher broker.Publisher = broker.Nop{}
	if cfg.Kafka.Enabled {
		publisher = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EnrollmentsTopic, logger)
		logger.Info("kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.EnrollmentsTopic))
	}
	defer publisher.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Outbound mail through the worker queue
	emailLogsRepo := emaillogs.NewRepository(pool)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	outbox := mailer.NewOutbox(emailLogsRepo, jobQueue, logger)

	// Notifications
	notificationRepo := notifications.NewRepository(pool)
	notificationSvc := notifications.NewService(notificationRepo, hub, logger)
	notificationHandler := notifications.NewHandler(notificationSvc, logger)

	// Events and enrollments
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo, logger)
	enrollmentSvc := enrollments.NewService(enrollments.NewRepository(pool), authRepo, notificationSvc, outbox, publisher, cfg.App.BaseURL, logger)
	enrollmentHandler := enrollments.NewHandler(enrollmentSvc, logger)

	// Reminders (external cron trigger)
	reminderSvc := reminders.NewService(reminders.NewRepository(pool), emailLogsRepo, outbox,
		reminders.Options{Dedup: cfg.Reminder.Dedup, BaseURL: cfg.App.BaseURL}, logger)
	reminderHandler := reminders.NewHandler(reminderSvc, logger)

	validateToken := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(metrics.Middleware())

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Scheduler trigger (shared secret, no JWT)
	router.GET("/events/reminders", middleware.CronSecret(cfg.Cron.Secret), reminderHandler.Trigger)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireRole(models.RoleBusiness, models.RoleAdmin), eventHandler.Create)
		api.GET("/events/:id", eventHandler.Get)
		api.PATCH("/events/:id/status", eventHandler.UpdateStatus)

		// Enrollments
		api.POST("/events/:id/enroll", enrollmentHandler.Enroll)
		api.DELETE("/events/:id/enroll", enrollmentHandler.Cancel)
		api.GET("/events/:id/enroll", enrollmentHandler.Mine)
		api.GET("/events/:id/enrollments", enrollmentHandler.List)
		api.PATCH("/events/:id/enrollments/:userId", enrollmentHandler.Decide)

		// Email log (admin)
		api.GET("/events/:id/emails", emailLogsHandler.ListByEvent)

		// Notifications
		api.GET("/notifications", notificationHandler.List)
		api.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		api.PATCH("/notifications/read-all", notificationHandler.MarkAllRead)
		api.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, validateToken))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	outbox.Wait()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
