package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/payment/mollie"
	"github.com/payrecon/internal/provider"
	"github.com/payrecon/internal/queue"
	"github.com/payrecon/internal/repository"
	"github.com/payrecon/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type stubRemoteClient struct {
	statuses map[string]string
}

func (s *stubRemoteClient) Get(_ context.Context, resourceID string) (*mollie.Resource, error) {
	status, ok := s.statuses[resourceID]
	if !ok {
		return nil, mollie.ErrResourceNotFound
	}
	return &mollie.Resource{ID: resourceID, Kind: mollie.KindOf(resourceID), Status: status}, nil
}

func (s *stubRemoteClient) Cancel(context.Context, string) error { return nil }

func (s *stubRemoteClient) ShipAll(context.Context, string) error { return nil }

func (s *stubRemoteClient) Refund(context.Context, string, mollie.RefundInput) error { return nil }

func (s *stubRemoteClient) CancelLines(context.Context, string, []string) error { return nil }

func setupConsumer(t *testing.T, remote *stubRemoteClient) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_consumer_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	gateways := []config.GatewayConfig{
		{ID: "psp_creditcard", Handler: constants.GatewayHandlerPSP, DueDateMinutes: 30, AutoCancelOnExpiry: true},
	}
	orderRepo := repository.NewOrderRepository(db)
	noteRepo := repository.NewOrderNoteRepository(db)
	ledgerRepo := repository.NewRemoteLineLedgerRepository(db)
	bus := service.NewEventBus()
	registry := service.NewGatewayRegistry(gateways, service.GatewayRegistryOptions{})
	orders := service.NewOrderService(orderRepo, noteRepo, bus)
	container := &provider.Container{
		OrderService:     orders,
		ReconcileService: service.NewReconcileService(orderRepo, ledgerRepo, orders, registry, remote, bus, service.ReconcileOptions{}),
		ExpiryService:    service.NewExpiryService(orderRepo, repository.NewSweepStateRepository(db), orders, registry.ExpiryGateways(), service.ExpiryOptions{}),
	}
	return NewConsumer(container), db
}

func createOrder(t *testing.T, db *gorm.DB, key, remoteID string, updatedAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderKey:         key,
		Status:           constants.OrderStatusPending,
		PaymentMethod:    "psp_creditcard",
		RemoteResourceID: remoteID,
		Currency:         "EUR",
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).UpdateColumn("updated_at", updatedAt).Error; err != nil {
		t.Fatalf("touch order failed: %v", err)
	}
	return order
}

func orderStatus(t *testing.T, db *gorm.DB, id uint) string {
	t.Helper()
	var order models.Order
	if err := db.First(&order, id).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	return order.Status
}

func TestConsumerRegistersTasks(t *testing.T) {
	consumer, _ := setupConsumer(t, &stubRemoteClient{})
	mux := asynq.NewServeMux()
	consumer.Register(mux)

	for _, taskType := range []string{queue.TaskExpirySweep, queue.TaskWebhookReconcile} {
		handler, pattern := mux.Handler(asynq.NewTask(taskType, nil))
		if handler == nil || pattern != taskType {
			t.Fatalf("task %s should be registered, got pattern %q", taskType, pattern)
		}
	}

	var nilConsumer *Consumer
	nilConsumer.Register(mux)
}

func TestConsumerExpirySweep(t *testing.T) {
	consumer, db := setupConsumer(t, &stubRemoteClient{})
	stale := createOrder(t, db, "key-stale", "", time.Now().Add(-time.Hour))
	fresh := createOrder(t, db, "key-fresh", "", time.Now())

	task, err := queue.NewExpirySweepTask(queue.ExpirySweepPayload{Name: constants.ExpirySweepName, ScheduledAt: time.Now()})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleExpirySweep(context.Background(), task); err != nil {
		t.Fatalf("sweep task failed: %v", err)
	}
	if got := orderStatus(t, db, stale.ID); got != constants.OrderStatusCancelled {
		t.Fatalf("stale order want cancelled got %s", got)
	}
	if got := orderStatus(t, db, fresh.ID); got != constants.OrderStatusPending {
		t.Fatalf("fresh order want pending got %s", got)
	}

	broken := asynq.NewTask(queue.TaskExpirySweep, []byte("{"))
	if err := consumer.handleExpirySweep(context.Background(), broken); err == nil {
		t.Fatalf("malformed payload should fail the task")
	}
}

func TestConsumerWebhookReconcile(t *testing.T) {
	remote := &stubRemoteClient{statuses: map[string]string{"tr_paid": constants.RemoteStatusPaid}}
	consumer, db := setupConsumer(t, remote)
	order := createOrder(t, db, "key-paid", "tr_paid", time.Now())

	task, err := queue.NewWebhookReconcileTask(queue.WebhookReconcilePayload{RemoteID: " tr_paid ", ReceivedAt: time.Now()})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleWebhookReconcile(context.Background(), task); err != nil {
		t.Fatalf("webhook task failed: %v", err)
	}
	if got := orderStatus(t, db, order.ID); got != constants.OrderStatusProcessing {
		t.Fatalf("order want processing got %s", got)
	}

	body, _ := json.Marshal(queue.WebhookReconcilePayload{RemoteID: "bogus"})
	if err := consumer.handleWebhookReconcile(context.Background(), asynq.NewTask(queue.TaskWebhookReconcile, body)); err != nil {
		t.Fatalf("invalid remote id must not be retried: %v", err)
	}
	if err := consumer.handleWebhookReconcile(context.Background(), asynq.NewTask(queue.TaskWebhookReconcile, []byte("{"))); err != nil {
		t.Fatalf("malformed webhook payload must not be retried: %v", err)
	}
}
