// Package main runs the meeting timer HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FacerAin/dnd-10th-2-backend/config"
	"github.com/FacerAin/dnd-10th-2-backend/internal/agendas"
	"github.com/FacerAin/dnd-10th-2-backend/internal/auth"
	"github.com/FacerAin/dnd-10th-2-backend/internal/meetings"
	"github.com/FacerAin/dnd-10th-2-backend/internal/middleware"
	"github.com/FacerAin/dnd-10th-2-backend/internal/realtime"
	"github.com/FacerAin/dnd-10th-2-backend/internal/worker"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/database"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/queue"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/redis"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/response"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
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

	// report archiving is optional; without a bucket the server still runs
	var s3Client *storage.S3
	if cfg.AWS.ReportsBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.ReportsBucket,
			PresignTTL:      cfg.AWS.PresignTTL,
		}, logger)
		if err != nil {
			logger.Warn("report archive disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.TTL)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	runner := database.NewRunner(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	meetingRepo := meetings.NewRepository(runner)
	participantRepo := meetings.NewParticipantRepository(runner)
	agendaRepo := agendas.NewRepository(runner)
	meetingSvc := meetings.NewService(runner, meetingRepo, participantRepo, agendaRepo, authRepo, jobQueue, logger)
	meetingHandler := meetings.NewHandler(meetingSvc, hub, jobQueue, s3Client, logger)

	agendaSvc := agendas.NewService(runner, meetingRepo, agendaRepo, participantRepo, logger)
	agendaHandler := agendas.NewHandler(agendaSvc, hub)

	scheduler := worker.NewScheduler(meetingSvc, jobQueue, redisPubSub, cfg.Scheduler.PollInterval, logger)
	reportProcessor := worker.NewReportProcessor(meetingSvc, s3Client, jobQueue, logger)

	wsValidate := func(token string) (memberID, nickname string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.MemberID.String(), claims.Nickname, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins()))
	router.Use(middleware.Logger(logger))
	mountRoutes(router, jwtService, authHandler, meetingHandler, agendaHandler)

	// token comes in the query string, no Authorization header on upgrades
	router.GET("/ws", realtime.ServeWs(hub, logger, wsValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go scheduler.Run(workerCtx)
	logger.Info("meeting scheduler started")
	if s3Client != nil {
		go reportProcessor.Run(workerCtx)
		logger.Info("report worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func mountRoutes(r *gin.Engine, jwtService *auth.JWTService, authHandler *auth.Handler, meetingHandler *meetings.Handler, agendaHandler *agendas.Handler) {
	r.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	authGroup := r.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/register", authHandler.Register)

	api := r.Group("", middleware.JWT(jwtService))
	api.GET("/auth/me", authHandler.Me)

	m := api.Group("/meetings")
	m.POST("", meetingHandler.Create)
	m.GET("/:id", meetingHandler.GetByID)
	m.PATCH("/:id/end", meetingHandler.End)
	m.PATCH("/:id/cancel", meetingHandler.Cancel)
	m.PATCH("/:id/host", meetingHandler.StepDownHost)
	m.GET("/:id/users", meetingHandler.Members)
	m.GET("/:id/report", meetingHandler.Report)
	m.GET("/:id/report/archive", meetingHandler.ReportArchive)
	m.GET("/:id/remaining-time", meetingHandler.RemainingTime)
	m.POST("/:id/attendance", meetingHandler.Join)
	m.DELETE("/:id/attendance", meetingHandler.Leave)

	m.POST("/:id/agendas", agendaHandler.Create)
	m.GET("/:id/agendas", agendaHandler.List)
	m.PATCH("/:id/agendas/order", agendaHandler.ChangeOrder)
	m.PATCH("/:id/agendas/:agendaId/action", agendaHandler.Action)
	m.DELETE("/:id/agendas/:agendaId", agendaHandler.Cancel)
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := cfg.Build()
	return logger
}
