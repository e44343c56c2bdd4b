package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/payrecon/internal/models"
)

// OrderStatusChangedEvent 本地订单状态变更事件
type OrderStatusChangedEvent struct {
	Order      models.Order
	FromStatus string
	ToStatus   string
	Source     string
}

// RemoteLinesEvent 远端行项目退款/取消事件
type RemoteLinesEvent struct {
	OrderID          uint
	RemoteResourceID string
	LineIDs          []string
}

// EventHandler 事件订阅回调
type EventHandler[T any] func(ctx context.Context, event T) error

type subscription[T any] struct {
	name    string
	handler EventHandler[T]
}

// Topic 类型化事件主题，按订阅顺序同步投递
type Topic[T any] struct {
	name string
	mu   sync.RWMutex
	subs []subscription[T]
}

// NewTopic 创建事件主题
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name}
}

// Subscribe 追加订阅者
func (t *Topic[T]) Subscribe(name string, handler EventHandler[T]) {
	if handler == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, subscription[T]{name: name, handler: handler})
}

// Publish 依次投递给所有订阅者；单个订阅者失败不影响后续订阅者，返回合并后的错误
func (t *Topic[T]) Publish(ctx context.Context, event T) error {
	t.mu.RLock()
	subs := make([]subscription[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := t.deliver(ctx, sub, event); err != nil {
			reconcileLogger("topic", t.name, "subscriber", sub.name).Warnw("event_subscriber_failed", "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sub.name, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Topic[T]) deliver(ctx context.Context, sub subscription[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}

// EventBus 领域事件总线
type EventBus struct {
	OrderStatusChanged   *Topic[OrderStatusChangedEvent]
	RemoteRefunded       *Topic[RemoteLinesEvent]
	RemoteLinesCancelled *Topic[RemoteLinesEvent]
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{
		OrderStatusChanged:   NewTopic[OrderStatusChangedEvent]("order_status_changed"),
		RemoteRefunded:       NewTopic[RemoteLinesEvent]("remote_refunded"),
		RemoteLinesCancelled: NewTopic[RemoteLinesEvent]("remote_lines_cancelled"),
	}
}
