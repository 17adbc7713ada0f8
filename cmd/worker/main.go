package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mahnwerk/mahnwerk/internal/app"
	"github.com/mahnwerk/mahnwerk/internal/commerce"
	"github.com/mahnwerk/mahnwerk/internal/dunning"
	jobmetrics "github.com/mahnwerk/mahnwerk/internal/jobs"
	"github.com/mahnwerk/mahnwerk/internal/mail"
	"github.com/mahnwerk/mahnwerk/internal/platform/cache"
	"github.com/mahnwerk/mahnwerk/internal/platform/db"
	"github.com/mahnwerk/mahnwerk/internal/recovery"
	"github.com/mahnwerk/mahnwerk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, template cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	mailer := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}, logger)

	shop := commerce.NewShopifyClient(http.DefaultClient, commerce.ShopifyConfig{
		ShopDomain:  cfg.ShopifyShopDomain,
		AccessToken: cfg.ShopifyAccessToken,
		APIVersion:  cfg.ShopifyAPIVersion,
		Logger:      logger,
	})

	templateCache := dunning.NewTemplateCache(redisClient, cfg.TemplateCacheTTL)
	metrics := jobmetrics.NewMetrics(nil)

	dunningRepo := dunning.NewRepository(pool)
	dunningService := dunning.NewService(dunningRepo, mailer, templateCache, logger)
	dunningJob := jobs.NewDunningSweepJob(dunningService, logger, metrics)

	recoveryRepo := recovery.NewRepository(pool)
	recoveryService := recovery.NewService(recoveryRepo, mailer, shop, logger)
	recoveryJob := jobs.NewRecoverySweepJob(recoveryService, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDunningSweep, Handler: dunningJob.Handle},
			{Type: jobs.TaskRecoverySweep, Handler: recoveryJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DunningCronSpec, Task: jobs.NewDunningSweepTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: cfg.RecoveryCronSpec, Task: jobs.NewRecoverySweepTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
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
