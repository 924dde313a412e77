package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 任务结果标签
const (
	TaskOK      = "ok"
	TaskError   = "error"
	TaskSkipped = "skipped"
)

var (
	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "任务处理耗时（秒），含 AI 调用。",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"task_type", "result"},
	)

	tasksInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_in_progress",
			Help:      "当前正在处理的任务数量。",
		},
		[]string{"task_type"},
	)
)

// AsynqMetricsMiddleware 记录每个任务的耗时与结果。
// 返回 asynq.SkipRetry 的任务记为 skipped。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskType := task.Type()
			tasksInProgress.WithLabelValues(taskType).Inc()
			defer tasksInProgress.WithLabelValues(taskType).Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(taskType, taskResult(err)).Observe(time.Since(start).Seconds())
			return err
		})
	}
}

func taskResult(err error) string {
	switch {
	case err == nil:
		return TaskOK
	case errors.Is(err, asynq.SkipRetry):
		return TaskSkipped
	default:
		return TaskError
	}
}
