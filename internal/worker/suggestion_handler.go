package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"resumeforge/internal/resume"
	"resumeforge/internal/suggestion"
	"resumeforge/internal/tasks"
)

// Suggester 根据简历快照和岗位描述生成建议。
type Suggester interface {
	Suggest(ctx context.Context, snapshot resume.Snapshot, jobDescription string) ([]resume.Recommendation, error)
}

// SuggestionTaskHandler 负责消费建议生成任务。
type SuggestionTaskHandler struct {
	engine    *suggestion.Engine
	suggester Suggester
	logger    *slog.Logger
}

// NewSuggestionTaskHandler 创建任务处理器。
func NewSuggestionTaskHandler(engine *suggestion.Engine, suggester Suggester, logger *slog.Logger) *SuggestionTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuggestionTaskHandler{engine: engine, suggester: suggester, logger: logger}
}

// ProcessTask 实现 asynq.Handler。生成失败被吸收为任务记录的 failed 状态，
// 只有存储层错误才返回给 asynq。
func (h *SuggestionTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := tasks.ParseSuggestionGenerate(t)
	if err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("job_id", uint64(payload.JobID)),
	)

	job, err := h.engine.ClaimJob(ctx, payload.JobID)
	if err != nil {
		log.Error("claim suggestion job failed", slog.Any("error", err))
		return err
	}
	if job == nil {
		log.Info("suggestion job already handled or removed, skipping")
		return nil
	}

	log = log.With(
		slog.Uint64("suggestion_id", uint64(job.SuggestionID)),
		slog.Uint64("generation", job.Generation),
	)
	log.Info("starting suggestion generation")

	recs, genErr := h.suggester.Suggest(ctx, job.Snapshot.Data(), job.JobDescription)

	outcome, err := h.engine.Reconcile(ctx, suggestion.Result{
		SuggestionID:    job.SuggestionID,
		Generation:      job.Generation,
		JobDescription:  job.JobDescription,
		CorrelationID:   job.CorrelationID,
		Recommendations: recs,
		Err:             genErr,
	})
	if err != nil {
		log.Error("reconcile suggestion failed", slog.Any("error", err))
		if ferr := h.engine.FinishJob(ctx, job.ID, suggestion.Failed, err); ferr != nil {
			log.Error("mark suggestion job failed", slog.Any("error", ferr))
		}
		return err
	}

	if err := h.engine.FinishJob(ctx, job.ID, outcome, genErr); err != nil {
		log.Error("finish suggestion job failed", slog.Any("error", err))
		return err
	}

	log.Info("suggestion generation finished", slog.String("outcome", string(outcome)))
	return nil
}

// RequeueHandler 周期性地补投递停留在 queued 的任务。
type RequeueHandler struct {
	engine *suggestion.Engine
	logger *slog.Logger
}

func NewRequeueHandler(engine *suggestion.Engine, logger *slog.Logger) *RequeueHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequeueHandler{engine: engine, logger: logger}
}

func (h *RequeueHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	if _, err := h.engine.RequeueStale(ctx); err != nil {
		h.logger.Error("requeue suggestion jobs failed", slog.Any("error", err))
		return err
	}
	return nil
}
