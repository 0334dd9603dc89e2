// Package notification 把市场事件与用户行为投递到 Kafka。
// 所有投递都是尽力而为：失败只记日志，绝不反压到交易与结算链路
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/predictionmarket/pkg/mq"
)

const (
	eventsTopic  = "events"
	actionsTopic = "user-actions"
)

// Notifier Kafka 事件广播器，同时承担行为进度上报
type Notifier struct {
	producer *mq.KafkaProducer
	logger   *slog.Logger
	now      func() time.Time
}

// NewNotifier 创建广播器
func NewNotifier(producer *mq.KafkaProducer, logger *slog.Logger) *Notifier {
	return &Notifier{producer: producer, logger: logger, now: time.Now}
}

// Broadcast 广播事件，key 为事件名以保证同类事件分区有序
func (n *Notifier) Broadcast(ctx context.Context, event string, payload any) {
	envelope := map[string]any{
		"event":   event,
		"payload": payload,
		"at":      n.now(),
	}
	if err := n.producer.SendMessage(ctx, eventsTopic, event, envelope); err != nil {
		n.logger.Warn("event broadcast failed", "event", event, "error", err)
	}
}

// RecordAction 上报用户行为，供任务与成就系统消费
func (n *Notifier) RecordAction(ctx context.Context, userID, actionType string) {
	message := map[string]any{
		"user_id":     userID,
		"action_type": actionType,
		"at":          n.now(),
	}
	if err := n.producer.SendMessage(ctx, actionsTopic, userID, message); err != nil {
		n.logger.Warn("action report failed", "user_id", userID, "action", actionType, "error", err)
	}
}
