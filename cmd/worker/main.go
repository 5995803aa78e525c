// Package main runs the background worker (meeting start scheduler, report archive to S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FacerAin/dnd-10th-2-backend/config"
	"github.com/FacerAin/dnd-10th-2-backend/internal/agendas"
	"github.com/FacerAin/dnd-10th-2-backend/internal/auth"
	"github.com/FacerAin/dnd-10th-2-backend/internal/meetings"
	"github.com/FacerAin/dnd-10th-2-backend/internal/realtime"
	"github.com/FacerAin/dnd-10th-2-backend/internal/worker"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/database"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/queue"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

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

	runner := database.NewRunner(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)

	authRepo := auth.NewRepository(pool)
	meetingRepo := meetings.NewRepository(runner)
	participantRepo := meetings.NewParticipantRepository(runner)
	agendaRepo := agendas.NewRepository(runner)
	meetingSvc := meetings.NewService(runner, meetingRepo, participantRepo, agendaRepo, authRepo, jobQueue, logger)

	scheduler := worker.NewScheduler(meetingSvc, jobQueue, redisPubSub, cfg.Scheduler.PollInterval, logger)
	reportProcessor := worker.NewReportProcessor(meetingSvc, s3Client, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.Run(workerCtx)
	if s3Client != nil {
		go reportProcessor.Run(workerCtx)
	}
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := cfg.Build()
	return logger
}
