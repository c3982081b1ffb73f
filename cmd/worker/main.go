package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/procureflow/procureflow/internal/app"
	"github.com/procureflow/procureflow/internal/auth"
	"github.com/procureflow/procureflow/internal/platform/cache"
	"github.com/procureflow/procureflow/internal/platform/db"
	"github.com/procureflow/procureflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(auth.NewRepository(pool))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(jobs.SMTPConfig{
				Host: cfg.SMTPHost,
				Port: cfg.SMTPPort,
				From: cfg.SMTPFrom,
			}, logger)},
			{Type: jobs.TaskTypeRoleAlert, Handler: jobs.NewRoleAlertHandler(redisClient, logger)},
			{Type: jobs.TaskTypeSessionPurge, Handler: jobs.NewSessionPurgeHandler(authService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: jobs.NewSessionPurgeTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
