package queue

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/payrecon/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskExpirySweep 过期未支付订单扫描任务
	TaskExpirySweep = constants.TaskExpirySweep
	// TaskWebhookReconcile 远端通知对账任务
	TaskWebhookReconcile = constants.TaskWebhookReconcile
)

// ExpirySweepPayload 过期扫描任务载荷
type ExpirySweepPayload struct {
	Name        string    `json:"name"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// WebhookReconcilePayload 远端通知对账任务载荷
type WebhookReconcilePayload struct {
	RemoteID   string    `json:"remote_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewExpirySweepTask 创建过期扫描任务
func NewExpirySweepTask(payload ExpirySweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirySweep, body), nil
}

// NewWebhookReconcileTask 创建远端通知对账任务
func NewWebhookReconcileTask(payload WebhookReconcilePayload) (*asynq.Task, error) {
	payload.RemoteID = strings.TrimSpace(payload.RemoteID)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookReconcile, body), nil
}
