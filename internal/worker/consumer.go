package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/payrecon/internal/logger"
	"github.com/payrecon/internal/provider"
	"github.com/payrecon/internal/queue"
	"github.com/payrecon/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskExpirySweep, c.handleExpirySweep)
	mux.HandleFunc(queue.TaskWebhookReconcile, c.handleWebhookReconcile)
}

func (c *Consumer) handleExpirySweep(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_expiry_sweep_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ExpirySweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_expiry_sweep_unmarshal_failed", "error", err)
		return err
	}
	if c.ExpiryService == nil {
		logger.Warnw("worker_expiry_sweep_skip_service_nil", "name", payload.Name)
		return nil
	}
	result, err := c.ExpiryService.Sweep(ctx)
	if err != nil {
		// 重新调度失败时交由队列重试，否则扫描链会中断
		logger.Warnw("worker_expiry_sweep_failed", "name", payload.Name, "error", err)
		return err
	}
	if result.Skipped {
		logger.Debugw("worker_expiry_sweep_skip_locked", "name", payload.Name)
	}
	return nil
}

func (c *Consumer) handleWebhookReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_webhook_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.WebhookReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_webhook_reconcile_unmarshal_failed", "error", err)
		return nil
	}
	if c.ReconcileService == nil {
		logger.Warnw("worker_webhook_reconcile_skip_service_nil", "remote_id", payload.RemoteID)
		return nil
	}
	result, err := c.ReconcileService.HandleWebhook(ctx, payload.RemoteID)
	if err != nil {
		if errors.Is(err, service.ErrRemoteIDInvalid) {
			logger.Debugw("worker_webhook_reconcile_skip_invalid_id", "remote_id", payload.RemoteID)
			return nil
		}
		logger.Warnw("worker_webhook_reconcile_failed", "remote_id", payload.RemoteID, "error", err)
		return nil
	}
	logger.Debugw("worker_webhook_reconcile_done", "remote_id", payload.RemoteID, "order_id", result.OrderID, "outcome", result.Outcome)
	return nil
}
