// Package suggestion 管理每份简历的 AI 建议：受理请求、持久化任务记录、回写生成结果。
//
// 每份简历最多一条 Suggestion。每次请求把 Generation 加一并写入一条 SuggestionJob；
// 生成结果只有在其生成号仍等于当前 Generation 时才会被回写，较早请求的结果直接丢弃。
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resumeforge/internal/account"
	"resumeforge/internal/auth"
	"resumeforge/internal/database"
	"resumeforge/internal/errcode"
	"resumeforge/internal/metrics"
	"resumeforge/internal/resume"
)

// Config 是引擎的可调参数。
type Config struct {
	MaxJobDescriptionBytes int
	RequeueAfter           time.Duration
	// RunningTimeout 之后仍处于 running 的任务视为 worker 已丢失；0 表示不清理。
	RunningTimeout time.Duration
}

// errWorkerLost 记录在因 worker 丢失而放弃的任务上。
var errWorkerLost = errcode.New(errcode.Misc, "suggestion generation timed out")

// Dispatcher 把已提交的任务记录投递到执行队列。
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uint, correlationID string) error
}

// Limiter 限制单个用户的请求频率。
type Limiter interface {
	Allow(ctx context.Context, userID uint) (bool, error)
}

// Ticket 是受理请求后的回执。
type Ticket struct {
	SuggestionID uint   `json:"suggestion_id"`
	JobID        uint   `json:"job_id"`
	Generation   uint64 `json:"generation"`
}

// Outcome 是一次回写的结果。
type Outcome string

const (
	Applied Outcome = "applied"
	Stale   Outcome = "stale"
	Missing Outcome = "missing"
	Failed  Outcome = "failed"
)

// Result 是一次生成的产出，由 worker 交给 Reconcile。
type Result struct {
	SuggestionID    uint
	Generation      uint64
	JobDescription  string
	CorrelationID   string
	Recommendations []resume.Recommendation
	Err             error
}

type Engine struct {
	db         *gorm.DB
	guard      *account.Guard
	dispatcher Dispatcher
	limiter    Limiter
	notifier   Notifier
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine 构造引擎。limiter 与 notifier 可以为 nil。
func NewEngine(db *gorm.DB, guard *account.Guard, dispatcher Dispatcher, limiter Limiter, notifier Notifier, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:         db,
		guard:      guard,
		dispatcher: dispatcher,
		limiter:    limiter,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Request 受理一次生成请求：校验所有权与输入，在一个事务里递增生成号、覆盖岗位描述并写入任务记录，
// 提交后投递任务。投递失败时任务记录保持 queued，由补投递任务处理。
func (e *Engine) Request(ctx context.Context, id *auth.Identity, resumeID uint, jobDescription, correlationID string) (*Ticket, error) {
	user, r, err := e.guard.OwnedResume(ctx, id, resumeID)
	if err != nil {
		return nil, err
	}

	jobDescription = strings.TrimSpace(jobDescription)
	if jobDescription == "" {
		return nil, errcode.New(errcode.Invalid, "job description is required")
	}
	if limit := e.cfg.MaxJobDescriptionBytes; limit > 0 && len(jobDescription) > limit {
		return nil, errcode.New(errcode.Invalid, fmt.Sprintf("job description exceeds %d bytes", limit))
	}

	if e.limiter != nil {
		ok, err := e.limiter.Allow(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("check suggestion rate limit: %w", err)
		}
		if !ok {
			return nil, errcode.New(errcode.Invalid, "rate limit exceeded, try again later")
		}
	}

	snapshot := resume.Snapshot{Title: r.Title, Content: r.Content()}

	var (
		sug database.Suggestion
		job database.SuggestionJob
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := database.Suggestion{
			ResumeID:        r.ID,
			JobDescription:  jobDescription,
			Recommendations: datatypes.JSONSlice[resume.Recommendation]{},
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resume_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return fmt.Errorf("insert suggestion: %w", err)
		}

		if err := tx.Model(&database.Suggestion{}).
			Where("resume_id = ?", r.ID).
			Updates(map[string]any{
				"generation":      gorm.Expr("generation + 1"),
				"job_description": jobDescription,
				"updated_at":      e.now(),
			}).Error; err != nil {
			return fmt.Errorf("bump suggestion generation: %w", err)
		}
		if err := tx.Where("resume_id = ?", r.ID).First(&sug).Error; err != nil {
			return fmt.Errorf("reload suggestion: %w", err)
		}

		job = database.SuggestionJob{
			SuggestionID:   sug.ID,
			Generation:     sug.Generation,
			JobDescription: jobDescription,
			Snapshot:       datatypes.NewJSONType(snapshot),
			Status:         database.JobQueued,
			CorrelationID:  correlationID,
		}
		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("create suggestion job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := e.logger.With(
		slog.String("correlation_id", correlationID),
		slog.Uint64("suggestion_id", uint64(sug.ID)),
		slog.Uint64("job_id", uint64(job.ID)),
		slog.Uint64("generation", sug.Generation),
	)
	if err := e.dispatcher.Dispatch(ctx, job.ID, correlationID); err != nil {
		log.Warn("dispatch suggestion job failed, left for requeue", slog.Any("error", err))
	} else {
		log.Info("suggestion generation started")
	}
	metrics.SuggestionRequested()

	return &Ticket{SuggestionID: sug.ID, JobID: job.ID, Generation: sug.Generation}, nil
}

// Get 返回简历当前的建议记录；不存在时返回 (nil, nil)。
func (e *Engine) Get(ctx context.Context, id *auth.Identity, resumeID uint) (*database.Suggestion, error) {
	if _, _, err := e.guard.OwnedResume(ctx, id, resumeID); err != nil {
		return nil, err
	}
	var sug database.Suggestion
	err := e.db.WithContext(ctx).Where("resume_id = ?", resumeID).First(&sug).Error
	switch {
	case err == nil:
		return &sug, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("query suggestion: %w", err)
	}
}

// SetStatus 修改单条建议的状态。category 非空时必须与该条建议的类型一致。
// 若建议列表在读取后被新的生成结果替换，返回 Invalid，调用方需要重新加载。
func (e *Engine) SetStatus(ctx context.Context, id *auth.Identity, resumeID uint, index int, category resume.Category, status resume.Status) (*database.Suggestion, error) {
	if !status.Valid() {
		return nil, errcode.New(errcode.Invalid, "invalid status")
	}

	sug, err := e.Get(ctx, id, resumeID)
	if err != nil {
		return nil, err
	}
	if sug == nil {
		return nil, errcode.New(errcode.NotFound, "suggestion not found")
	}

	recs := append([]resume.Recommendation(nil), sug.Recommendations...)
	if index < 0 || index >= len(recs) {
		return nil, errcode.New(errcode.Invalid, "recommendation index out of range")
	}
	if category != "" && recs[index].Type != category {
		return nil, errcode.New(errcode.Invalid, "recommendation category mismatch")
	}
	recs[index].Status = status

	res := e.db.WithContext(ctx).Model(&database.Suggestion{}).
		Where("id = ? AND reconciled_generation = ?", sug.ID, sug.ReconciledGeneration).
		Updates(map[string]any{
			"recommendations": datatypes.JSONSlice[resume.Recommendation](recs),
			"updated_at":      e.now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update recommendation status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errcode.New(errcode.Invalid, "recommendations changed, reload and retry")
	}

	sug.Recommendations = recs
	return sug, nil
}

// Reconcile 回写一次生成结果。生成失败或结果过期时不修改记录。
func (e *Engine) Reconcile(ctx context.Context, res Result) (Outcome, error) {
	outcome, userID, resumeID, err := e.reconcile(ctx, res)
	if err != nil {
		return outcome, err
	}
	metrics.SuggestionReconciled(string(outcome))

	log := e.logger.With(
		slog.String("correlation_id", res.CorrelationID),
		slog.Uint64("suggestion_id", uint64(res.SuggestionID)),
		slog.Uint64("generation", res.Generation),
		slog.String("outcome", string(outcome)),
	)
	switch outcome {
	case Applied:
		log.Info("suggestion reconciled", slog.Int("recommendations", len(res.Recommendations)))
	case Failed:
		log.Warn("suggestion generation failed", slog.Any("error", res.Err))
	default:
		log.Info("suggestion result ignored")
	}

	if e.notifier != nil && userID != 0 && (outcome == Applied || outcome == Failed) {
		msg := Notification{
			Type:          NotificationType,
			Status:        StatusReady,
			ResumeID:      resumeID,
			SuggestionID:  res.SuggestionID,
			Generation:    res.Generation,
			CorrelationID: res.CorrelationID,
		}
		if outcome == Failed {
			msg.Status = StatusFailed
			msg.ErrorMessage = errcode.MessageOf(res.Err)
		}
		if err := e.notifier.Notify(ctx, userID, msg); err != nil {
			log.Error("publish suggestion notification failed", slog.Any("error", err))
		}
	}
	return outcome, nil
}

type suggestionOwner struct {
	UserID   uint
	ResumeID uint
}

func (e *Engine) reconcile(ctx context.Context, res Result) (Outcome, uint, uint, error) {
	var owner suggestionOwner
	q := e.db.WithContext(ctx).
		Table("suggestions").
		Select("resumes.user_id AS user_id, suggestions.resume_id AS resume_id").
		Joins("JOIN resumes ON resumes.id = suggestions.resume_id").
		Where("suggestions.id = ?", res.SuggestionID).
		Limit(1).
		Scan(&owner)
	if q.Error != nil {
		return "", 0, 0, fmt.Errorf("query suggestion owner: %w", q.Error)
	}
	if q.RowsAffected == 0 {
		return Missing, 0, 0, nil
	}

	if res.Err != nil {
		return Failed, owner.UserID, owner.ResumeID, nil
	}

	recs := res.Recommendations
	if recs == nil {
		recs = []resume.Recommendation{}
	}
	updates := map[string]any{
		"recommendations":       datatypes.JSONSlice[resume.Recommendation](recs),
		"reconciled_generation": res.Generation,
		"updated_at":            e.now(),
	}
	if res.JobDescription != "" {
		updates["job_description"] = res.JobDescription
	}

	tx := e.db.WithContext(ctx).Model(&database.Suggestion{}).
		Where("id = ? AND generation = ?", res.SuggestionID, res.Generation).
		Updates(updates)
	if tx.Error != nil {
		return "", 0, 0, fmt.Errorf("apply recommendations: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		var count int64
		if err := e.db.WithContext(ctx).Model(&database.Suggestion{}).Where("id = ?", res.SuggestionID).Count(&count).Error; err != nil {
			return "", 0, 0, fmt.Errorf("recheck suggestion: %w", err)
		}
		if count == 0 {
			return Missing, 0, 0, nil
		}
		return Stale, owner.UserID, owner.ResumeID, nil
	}
	return Applied, owner.UserID, owner.ResumeID, nil
}

// ClaimJob 把 queued 的任务记录标记为 running 并返回。记录不存在或已被处理时返回 (nil, nil)。
func (e *Engine) ClaimJob(ctx context.Context, jobID uint) (*database.SuggestionJob, error) {
	res := e.db.WithContext(ctx).Model(&database.SuggestionJob{}).
		Where("id = ? AND status = ?", jobID, database.JobQueued).
		Updates(map[string]any{"status": database.JobRunning, "updated_at": e.now()})
	if res.Error != nil {
		return nil, fmt.Errorf("claim suggestion job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var job database.SuggestionJob
	if err := e.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return nil, fmt.Errorf("load suggestion job %d: %w", jobID, err)
	}
	return &job, nil
}

// FinishJob 根据回写结果更新任务记录的终态。
func (e *Engine) FinishJob(ctx context.Context, jobID uint, outcome Outcome, cause error) error {
	status := database.JobSucceeded
	switch outcome {
	case Failed:
		status = database.JobFailed
	case Stale, Missing:
		status = database.JobStale
	}
	updates := map[string]any{"status": status, "updated_at": e.now()}
	if cause != nil {
		updates["error"] = cause.Error()
	}
	if err := e.db.WithContext(ctx).Model(&database.SuggestionJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return fmt.Errorf("finish suggestion job %d: %w", jobID, err)
	}
	return nil
}

// RequeueStale 重新投递长时间停留在 queued 的任务，返回投递数；
// 同时清理超时未完成的 running 任务。
func (e *Engine) RequeueStale(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.RequeueAfter)
	var jobs []database.SuggestionJob
	if err := e.db.WithContext(ctx).
		Select("id", "correlation_id").
		Where("status = ? AND created_at < ?", database.JobQueued, cutoff).
		Order("id ASC").
		Find(&jobs).Error; err != nil {
		return 0, fmt.Errorf("query queued suggestion jobs: %w", err)
	}

	n := 0
	for _, job := range jobs {
		if err := e.dispatcher.Dispatch(ctx, job.ID, job.CorrelationID); err != nil {
			e.logger.Error("requeue suggestion job failed", slog.Uint64("job_id", uint64(job.ID)), slog.Any("error", err))
			continue
		}
		n++
	}
	if n > 0 {
		e.logger.Info("requeued suggestion jobs", slog.Int("count", n))
	}

	if err := e.failLostJobs(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// failLostJobs 把超过 RunningTimeout 仍为 running 的任务标记为 failed 并发出失败通知。
// 任务不会被重新执行，和生成失败一样由用户重新请求。
func (e *Engine) failLostJobs(ctx context.Context) error {
	if e.cfg.RunningTimeout <= 0 {
		return nil
	}
	cutoff := e.now().Add(-e.cfg.RunningTimeout)
	var jobs []database.SuggestionJob
	if err := e.db.WithContext(ctx).
		Select("id", "suggestion_id", "generation", "correlation_id").
		Where("status = ? AND updated_at < ?", database.JobRunning, cutoff).
		Order("id ASC").
		Find(&jobs).Error; err != nil {
		return fmt.Errorf("query running suggestion jobs: %w", err)
	}

	for _, job := range jobs {
		// 条件更新，避免和刚好完成的 worker 抢写终态。
		res := e.db.WithContext(ctx).Model(&database.SuggestionJob{}).
			Where("id = ? AND status = ? AND updated_at < ?", job.ID, database.JobRunning, cutoff).
			Updates(map[string]any{
				"status":     database.JobFailed,
				"error":      errWorkerLost.Error(),
				"updated_at": e.now(),
			})
		if res.Error != nil {
			return fmt.Errorf("fail lost suggestion job %d: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		e.logger.Warn("suggestion job lost its worker",
			slog.Uint64("job_id", uint64(job.ID)),
			slog.String("correlation_id", job.CorrelationID))
		if _, err := e.Reconcile(ctx, Result{
			SuggestionID:  job.SuggestionID,
			Generation:    job.Generation,
			CorrelationID: job.CorrelationID,
			Err:           errWorkerLost,
		}); err != nil {
			return err
		}
	}
	return nil
}
