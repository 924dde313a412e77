package main

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"resumeforge/internal/account"
	"resumeforge/internal/ai"
	"resumeforge/internal/config"
	"resumeforge/internal/database"
	"resumeforge/internal/logging"
	"resumeforge/internal/metrics"
	"resumeforge/internal/suggestion"
	"resumeforge/internal/tasks"
	"resumeforge/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger, flush, err := logging.New(cfg.Log, cfg.Sentry)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer flush()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	asynqClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	taskTimeout := cfg.AI.Timeout + time.Minute
	engine := suggestion.NewEngine(
		db,
		account.NewGuard(db),
		suggestion.NewAsynqDispatcher(asynqClient, taskTimeout),
		nil,
		suggestion.NewRedisNotifier(redisClient),
		suggestion.Config{
			MaxJobDescriptionBytes: cfg.Suggestion.MaxJobDescriptionBytes,
			RequeueAfter:           cfg.Suggestion.RequeueAfter,
			// 超过任务超时再加一个清理周期仍未结束，说明 worker 已经丢失
			RunningTimeout: taskTimeout + cfg.Suggestion.RequeueAfter,
		},
		logger,
	)
	aiClient := ai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout, logger)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{tasks.QueueSuggestions: 1},
		Logger:      newAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeSuggestionGenerate, worker.NewSuggestionTaskHandler(engine, aiClient, logger))
	mux.Handle(tasks.TypeSuggestionRequeue, worker.NewRequeueHandler(engine, logger))

	// 周期性补投递提交后未能入队或丢失的任务
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: newAsynqLogger(logger)})
	every := "@every " + cfg.Suggestion.RequeueAfter.String()
	if _, err := scheduler.Register(every, tasks.NewSuggestionRequeueTask()); err != nil {
		log.Fatalf("register requeue schedule: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer scheduler.Shutdown()

	if addr := cfg.Worker.MetricsAddr; addr != "" {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, metricsMux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.String("requeue_every", cfg.Suggestion.RequeueAfter.String()),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
