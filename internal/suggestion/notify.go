package suggestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
const (
	NotificationType = "suggestion"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Notification 告知前端某份简历的建议已生成或生成失败。
type Notification struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	ResumeID      uint   `json:"resume_id"`
	SuggestionID  uint   `json:"suggestion_id"`
	Generation    uint64 `json:"generation"`
	CorrelationID string `json:"correlation_id"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, userID uint, msg Notification) error
}

// UserChannel 返回用户的通知频道名。
func UserChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// RedisNotifier 发布到 user_notify:<userID>。
type RedisNotifier struct {
	client redis.UniversalClient
}

func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID uint, msg Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := UserChannel(userID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
