// Package main runs the webinar platform HTTP server with WebSocket rooms and
// graceful shutdown.
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

	"github.com/lumen-webinar/backend/config"
	"github.com/lumen-webinar/backend/internal/analytics"
	"github.com/lumen-webinar/backend/internal/attendance"
	"github.com/lumen-webinar/backend/internal/auth"
	"github.com/lumen-webinar/backend/internal/chat"
	"github.com/lumen-webinar/backend/internal/middleware"
	"github.com/lumen-webinar/backend/internal/models"
	"github.com/lumen-webinar/backend/internal/realtime"
	"github.com/lumen-webinar/backend/internal/registrations"
	"github.com/lumen-webinar/backend/internal/stats"
	"github.com/lumen-webinar/backend/internal/webinars"
	"github.com/lumen-webinar/backend/internal/worker"
	"github.com/lumen-webinar/backend/pkg/database"
	"github.com/lumen-webinar/backend/pkg/queue"
	"github.com/lumen-webinar/backend/pkg/redis"
	"github.com/lumen-webinar/backend/pkg/response"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Stats (queued, drained by the worker loop below)
	statsRepo := stats.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	recorder := stats.NewRecorder(jobQueue, statsRepo, logger)
	statsProcessor := worker.NewStatsProcessor(statsRepo, jobQueue, logger)

	// Registrations and attendance
	registrationRepo := registrations.NewRepository(pool)
	tracker := attendance.NewTracker(registrationRepo, logger)

	// Webinars
	webinarRepo := webinars.NewRepository(pool)
	lifecycle := webinars.NewLifecycle(webinarRepo, registrationRepo, tracker, recorder, hub, logger)
	webinarHandler := webinars.NewHandler(webinarRepo, lifecycle, tracker, recorder, logger)
	registrationHandler := registrations.NewHandler(registrationRepo, webinarRepo, logger)

	// Chat
	chatRepo := chat.NewRepository(pool)
	broker := chat.NewBroker(chatRepo, hub, tracker, recorder, logger)

	// Peak viewers: track the daily audience maximum as connections change.
	hub.SetAudienceChangeHandler(func(webinarID uuid.UUID, count int) {
		recorder.RecordPeak(context.Background(), webinarID, models.MetricPeakViewers, count)
	})

	// Analytics
	analyticsHandler := analytics.NewHandler(webinarRepo, tracker, statsRepo, logger)

	jwtValidate := func(token string) (uuid.UUID, string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", err
		}
		return claims.UserID, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (organizer only; for speaker assignment)
		api.GET("/users", middleware.RequireRole(string(models.RoleOrganizer)), authHandler.List)

		// Webinars
		api.GET("/webinars", webinarHandler.List)
		api.POST("/webinars", middleware.RequireRole(string(models.RoleOrganizer), string(models.RoleSpeaker)), webinarHandler.Create)
		api.GET("/webinars/:id", webinarHandler.GetByID)
		api.PUT("/webinars/:id", webinarHandler.Update)
		api.DELETE("/webinars/:id", webinarHandler.Delete)

		// Lifecycle and room access
		api.POST("/webinars/:id/start", webinarHandler.Start)
		api.POST("/webinars/:id/status", webinarHandler.Status)
		api.GET("/webinars/:id/status-check", webinarHandler.StatusCheck)
		api.POST("/webinars/:id/access", webinarHandler.Access)
		api.POST("/webinars/:id/attendance", webinarHandler.Attendance)

		// Agenda and recording metadata
		api.GET("/webinars/:id/schedule", webinarHandler.Agenda)
		api.POST("/webinars/:id/schedule", webinarHandler.AddAgendaItem)
		api.GET("/webinars/:id/recordings", webinarHandler.Recordings)
		api.POST("/webinars/:id/recordings", webinarHandler.AddRecording)

		// Registrations
		api.POST("/webinars/:id/register", registrationHandler.Register)
		api.DELETE("/webinars/:id/register", registrationHandler.Cancel)
		api.GET("/webinars/:id/participants", registrationHandler.Participants)

		// Analytics
		api.GET("/webinars/:id/analytics", analyticsHandler.Webinar)
	}

	// WebSocket (token in query; browsers cannot set headers on upgrade)
	router.GET("/ws", realtime.ServeWs(hub, broker, webinarRepo, authRepo, jwtValidate, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (stat event drain)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go statsProcessor.Run(workerCtx)
	logger.Info("stats worker started")

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
