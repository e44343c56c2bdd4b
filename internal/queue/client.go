package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/constants"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault

	sweepMaxRetry = 3
)

// ErrQueueDisabled 队列未启用
var ErrQueueDisabled = errors.New("queue disabled")

// Client 队列客户端封装
type Client struct {
	client       *asynq.Client
	inspector    *asynq.Inspector
	enabled      bool
	defaultQueue string
	now          func() time.Time
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue, now: time.Now}, nil
	}
	opt := buildRedisOpt(cfg)
	return &Client{
		client:       asynq.NewClient(opt),
		inspector:    asynq.NewInspector(opt),
		enabled:      true,
		defaultQueue: DefaultQueue,
		now:          time.Now,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// ScheduleSweep 延迟投递过期扫描任务，每次使用新的任务ID，返回任务ID
func (c *Client) ScheduleSweep(ctx context.Context, delay time.Duration) (string, error) {
	if !c.Enabled() {
		return "", ErrQueueDisabled
	}
	if delay < 0 {
		delay = 0
	}
	task, err := NewExpirySweepTask(ExpirySweepPayload{
		Name:        constants.ExpirySweepName,
		ScheduledAt: c.now().Add(delay),
	})
	if err != nil {
		return "", err
	}
	taskID := sweepTaskID()
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.defaultQueue),
		asynq.TaskID(taskID),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(sweepMaxRetry),
	)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// CancelSweep 删除已排队的过期扫描任务，任务不存在时视为成功
func (c *Client) CancelSweep(_ context.Context, taskID string) error {
	if !c.Enabled() || c.inspector == nil {
		return ErrQueueDisabled
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil
	}
	err := c.inspector.DeleteTask(c.defaultQueue, taskID)
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

// EnqueueWebhookReconcile 推送远端通知对账任务；对账失败只记录日志，任务不重试
func (c *Client) EnqueueWebhookReconcile(ctx context.Context, remoteID string) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := NewWebhookReconcileTask(WebhookReconcilePayload{
		RemoteID:   remoteID,
		ReceivedAt: c.now(),
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.defaultQueue), asynq.MaxRetry(0))
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{DefaultQueue: 1}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func sweepTaskID() string {
	return fmt.Sprintf("%s:%s", constants.ExpirySweepName, uuid.NewString())
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
