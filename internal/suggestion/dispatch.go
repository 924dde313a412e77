package suggestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"resumeforge/internal/tasks"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher 通过 asynq 投递生成任务。同一任务记录已在队列中时视为成功。
type AsynqDispatcher struct {
	client  taskEnqueuer
	timeout time.Duration
}

func NewAsynqDispatcher(client *asynq.Client, timeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, timeout: timeout}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID uint, correlationID string) error {
	task, err := tasks.NewSuggestionGenerateTask(jobID, correlationID, d.timeout)
	if err != nil {
		return fmt.Errorf("build suggestion task: %w", err)
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue suggestion task: %w", err)
	}
	return nil
}
