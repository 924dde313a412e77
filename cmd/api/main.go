package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"resumeforge/internal/account"
	"resumeforge/internal/api"
	"resumeforge/internal/auth"
	"resumeforge/internal/builder"
	"resumeforge/internal/config"
	"resumeforge/internal/database"
	"resumeforge/internal/export"
	"resumeforge/internal/logging"
	"resumeforge/internal/pdf"
	"resumeforge/internal/storage"
	"resumeforge/internal/suggestion"
)

func main() {
	cfg := config.MustLoad()

	logger, flush, err := logging.New(cfg.Log, cfg.Sentry)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer flush()

	logger.Info("api bootstrapping",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
		slog.String("db_sslmode", cfg.Database.SSLMode),
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database migrated")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("ping redis: %v", err)
	}
	cancel()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	authService, err := auth.NewAuthServiceFromFiles(cfg.Auth.PublicKeyPath, cfg.Auth.PrivateKeyPath, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	guard := account.NewGuard(db)
	engine := suggestion.NewEngine(
		db,
		guard,
		// AI 调用耗时决定任务超时，多留一分钟给数据库写入
		suggestion.NewAsynqDispatcher(asynqClient, cfg.AI.Timeout+time.Minute),
		suggestion.NewRedisLimiter(redisClient, cfg.Suggestion.RateLimitPerHour, time.Hour),
		suggestion.NewRedisNotifier(redisClient),
		suggestion.Config{
			MaxJobDescriptionBytes: cfg.Suggestion.MaxJobDescriptionBytes,
			RequeueAfter:           cfg.Suggestion.RequeueAfter,
		},
		logger,
	)
	renderer := pdf.NewGenerator(cfg.Export.ChromiumBin, cfg.Export.Timeout, cfg.Export.MaxConcurrent)
	exports := export.NewService(db, guard, renderer, storageClient, cfg.Export.LinkTTL, logger)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Dependencies{
		Auth:           authService,
		Guard:          guard,
		Accounts:       account.NewService(db, guard, logger),
		Resumes:        builder.NewService(db, guard, logger),
		Suggestions:    engine,
		Exports:        exports,
		Redis:          redisClient,
		AllowedOrigins: cfg.API.Origins(),
		Logger:         logger,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("addr", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
