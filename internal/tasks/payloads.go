package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeSuggestionGenerate = "suggestion:generate"
	TypeSuggestionRequeue  = "suggestion:requeue"
)

// QueueSuggestions 是建议生成任务使用的队列。
const QueueSuggestions = "suggestions"

// SuggestionGeneratePayload 只携带任务记录 ID，其余数据在 SuggestionJob 中。
type SuggestionGeneratePayload struct {
	JobID         uint   `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
}

// TaskID 返回任务的去重 ID；同一个 job 不会被同时排队两次。
func TaskID(jobID uint) string {
	return fmt.Sprintf("suggestion-job-%d", jobID)
}

// NewSuggestionGenerateTask 构造一个建议生成任务。失败的任务不重试：
// 结果由生成号对齐，重新请求会产生新的任务。
func NewSuggestionGenerateTask(jobID uint, correlationID string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(SuggestionGeneratePayload{
		JobID:         jobID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.TaskID(TaskID(jobID)),
		asynq.Queue(QueueSuggestions),
		asynq.MaxRetry(0),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeSuggestionGenerate, payload, opts...), nil
}

// ParseSuggestionGenerate 解析任务负载。
func ParseSuggestionGenerate(t *asynq.Task) (SuggestionGeneratePayload, error) {
	var p SuggestionGeneratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	if p.JobID == 0 {
		return p, fmt.Errorf("decode %s payload: missing job_id", t.Type())
	}
	return p, nil
}

// NewSuggestionRequeueTask 构造周期性补投递任务。
func NewSuggestionRequeueTask() *asynq.Task {
	return asynq.NewTask(TypeSuggestionRequeue, nil, asynq.Queue(QueueSuggestions), asynq.MaxRetry(0))
}
