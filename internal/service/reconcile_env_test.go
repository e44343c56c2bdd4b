package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/payment/mollie"
	"github.com/payrecon/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	testGatewayCard     = "psp_creditcard"
	testGatewayTransfer = "psp_banktransfer"
	testGatewayHost     = "cod"
)

type fakeRemoteClient struct {
	mu        sync.Mutex
	resources map[string]*mollie.Resource
	getErr    error
	cancelErr error
	shipErr   error
	calls     []string
	refunds   []mollie.RefundInput
}

func newFakeRemoteClient() *fakeRemoteClient {
	return &fakeRemoteClient{resources: make(map[string]*mollie.Resource)}
}

func (f *fakeRemoteClient) put(id, status string, lines ...mollie.Line) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[id] = &mollie.Resource{
		ID:     id,
		Kind:   mollie.KindOf(id),
		Status: status,
		Amount: decimal.RequireFromString("10.00"),
		Lines:  lines,
	}
}

func (f *fakeRemoteClient) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeRemoteClient) callsOf(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, call := range f.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			total++
		}
	}
	return total
}

func (f *fakeRemoteClient) Get(_ context.Context, resourceID string) (*mollie.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get:" + resourceID)
	if f.getErr != nil {
		return nil, f.getErr
	}
	resource, ok := f.resources[resourceID]
	if !ok {
		return nil, mollie.ErrResourceNotFound
	}
	copied := *resource
	copied.Lines = append([]mollie.Line(nil), resource.Lines...)
	return &copied, nil
}

func (f *fakeRemoteClient) Cancel(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cancel:" + resourceID)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if resource, ok := f.resources[resourceID]; ok {
		resource.Status = constants.RemoteStatusCanceled
	}
	return nil
}

func (f *fakeRemoteClient) ShipAll(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ship:" + resourceID)
	if f.shipErr != nil {
		return f.shipErr
	}
	if resource, ok := f.resources[resourceID]; ok {
		resource.Status = constants.RemoteStatusShipping
	}
	return nil
}

func (f *fakeRemoteClient) Refund(_ context.Context, resourceID string, input mollie.RefundInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("refund:" + resourceID)
	f.refunds = append(f.refunds, input)
	return nil
}

func (f *fakeRemoteClient) CancelLines(_ context.Context, resourceID string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cancel_lines:" + resourceID)
	return nil
}

type fakeSweepScheduler struct {
	mu        sync.Mutex
	seq       int
	scheduled []time.Duration
	cancelled []string
}

func (f *fakeSweepScheduler) ScheduleSweep(_ context.Context, delay time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.scheduled = append(f.scheduled, delay)
	return fmt.Sprintf("sweep-%d", f.seq), nil
}

func (f *fakeSweepScheduler) CancelSweep(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

func (f *fakeSweepScheduler) last() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scheduled) == 0 {
		return -1
	}
	return f.scheduled[len(f.scheduled)-1]
}

type reconcileTestEnv struct {
	db        *gorm.DB
	orderRepo *repository.GormOrderRepository
	noteRepo  *repository.GormOrderNoteRepository
	bus       *EventBus
	registry  *GatewayRegistry
	remote    *fakeRemoteClient
	scheduler *fakeSweepScheduler
	orders    *OrderService
	reconcile *ReconcileService
	actions   *OrderActionService
	notes     *RemoteLineNoteService
	expiry    *ExpiryService
	now       time.Time
}

func defaultTestGateways() []config.GatewayConfig {
	return []config.GatewayConfig{
		{
			ID:                 testGatewayCard,
			Handler:            constants.GatewayHandlerPSP,
			DueDateMinutes:     60,
			AutoCancelOnExpiry: true,
			ReturnURL:          "https://shop.example/checkout/received",
			FailureURL:         "https://shop.example/checkout/failed",
		},
		{
			ID:          testGatewayTransfer,
			Handler:     constants.GatewayHandlerPSP,
			DueDateDays: 1,
			ReturnURL:   "https://shop.example/checkout/received",
		},
		{
			ID:      testGatewayHost,
			Handler: constants.GatewayHandlerHost,
		},
	}
}

func setupReconcileTestEnv(t *testing.T, gateways []config.GatewayConfig, opts GatewayRegistryOptions) *reconcileTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:reconcile_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	if opts.Redirect.TrackingParam == "" {
		opts.Redirect.TrackingParam = "utm_nooverride"
	}
	if opts.Redirect.PendingMarker == "" {
		opts.Redirect.PendingMarker = "pending"
	}

	env := &reconcileTestEnv{
		db:        db,
		orderRepo: repository.NewOrderRepository(db),
		noteRepo:  repository.NewOrderNoteRepository(db),
		bus:       NewEventBus(),
		registry:  NewGatewayRegistry(gateways, opts),
		remote:    newFakeRemoteClient(),
		scheduler: &fakeSweepScheduler{},
		now:       time.Now(),
	}
	ledgerRepo := repository.NewRemoteLineLedgerRepository(db)
	env.orders = NewOrderService(env.orderRepo, env.noteRepo, env.bus)
	env.reconcile = NewReconcileService(env.orderRepo, ledgerRepo, env.orders, env.registry, env.remote, env.bus, ReconcileOptions{ReconcileOnReturn: true})
	env.actions = NewOrderActionService(env.orders, env.registry, env.remote, env.bus, nil)
	env.actions.Subscribe()
	env.notes = NewRemoteLineNoteService(env.orderRepo, ledgerRepo, env.noteRepo, env.bus)
	env.notes.Subscribe()
	env.expiry = NewExpiryService(env.orderRepo, repository.NewSweepStateRepository(db), env.orders, env.registry.ExpiryGateways(), ExpiryOptions{
		Scheduler: env.scheduler,
	})
	env.expiry.now = func() time.Time { return env.now }
	return env
}

func (e *reconcileTestEnv) createOrder(t *testing.T, key, status, method, remoteID string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderKey:         key,
		Status:           status,
		PaymentMethod:    method,
		RemoteResourceID: remoteID,
		Currency:         "EUR",
		TotalAmount:      models.NewMoneyFromDecimal(decimal.RequireFromString("10.00")),
	}
	if err := e.db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func (e *reconcileTestEnv) touchOrder(t *testing.T, orderID uint, updatedAt time.Time) {
	t.Helper()
	if err := e.db.Model(&models.Order{}).Where("id = ?", orderID).UpdateColumn("updated_at", updatedAt).Error; err != nil {
		t.Fatalf("touch order failed: %v", err)
	}
}

func (e *reconcileTestEnv) reload(t *testing.T, orderID uint) *models.Order {
	t.Helper()
	order, err := e.orderRepo.GetByID(orderID)
	if err != nil || order == nil {
		t.Fatalf("reload order failed: %v", err)
	}
	return order
}

func (e *reconcileTestEnv) notesOf(t *testing.T, orderID uint) []models.OrderNote {
	t.Helper()
	notes, _, err := e.noteRepo.List(repository.OrderNoteListFilter{OrderID: orderID, Page: 1, PageSize: 100})
	if err != nil {
		t.Fatalf("list notes failed: %v", err)
	}
	return notes
}

func hasNote(notes []models.OrderNote, content string) bool {
	for _, note := range notes {
		if note.Content == content {
			return true
		}
	}
	return false
}
