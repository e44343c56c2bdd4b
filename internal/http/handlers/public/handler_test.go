package public

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/payment/mollie"
	"github.com/payrecon/internal/provider"
	"github.com/payrecon/internal/repository"
	"github.com/payrecon/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubRemoteClient struct {
	mu       sync.Mutex
	statuses map[string]string
	gets     int
}

func (s *stubRemoteClient) Get(_ context.Context, resourceID string) (*mollie.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	status, ok := s.statuses[resourceID]
	if !ok {
		return nil, mollie.ErrResourceNotFound
	}
	return &mollie.Resource{ID: resourceID, Kind: mollie.KindOf(resourceID), Status: status}, nil
}

func (s *stubRemoteClient) Cancel(context.Context, string) error  { return nil }
func (s *stubRemoteClient) ShipAll(context.Context, string) error { return nil }
func (s *stubRemoteClient) Refund(context.Context, string, mollie.RefundInput) error {
	return nil
}
func (s *stubRemoteClient) CancelLines(context.Context, string, []string) error { return nil }

type publicTestEnv struct {
	db     *gorm.DB
	remote *stubRemoteClient
	router *gin.Engine
}

func setupPublicTestEnv(t *testing.T) *publicTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:public_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{
		Reconcile: config.ReconcileConfig{
			TrackingParam:        "utm_nooverride",
			WebhookResourceParam: "id",
			ReturnOrderIDParam:   "order_id",
			ReturnOrderKeyParam:  "key",
			ReconcileOnReturn:    true,
			PendingLandingMarker: "pending",
		},
		Gateways: []config.GatewayConfig{
			{ID: "psp_creditcard", Handler: constants.GatewayHandlerPSP, ReturnURL: "https://shop.example/received", FailureURL: "https://shop.example/failed"},
			{ID: "cod", Handler: constants.GatewayHandlerHost},
		},
	}
	remote := &stubRemoteClient{statuses: map[string]string{}}
	orderRepo := repository.NewOrderRepository(db)
	noteRepo := repository.NewOrderNoteRepository(db)
	ledgerRepo := repository.NewRemoteLineLedgerRepository(db)
	bus := service.NewEventBus()
	registry := service.NewGatewayRegistry(cfg.Gateways, service.GatewayRegistryOptions{
		Redirect: service.RedirectOptions{TrackingParam: "utm_nooverride", PendingMarker: "pending"},
	})
	orders := service.NewOrderService(orderRepo, noteRepo, bus)
	container := &provider.Container{
		Config:       cfg,
		OrderService: orders,
		ReconcileService: service.NewReconcileService(orderRepo, ledgerRepo, orders, registry, remote, bus, service.ReconcileOptions{
			ReconcileOnReturn: true,
		}),
	}

	h := New(container)
	r := gin.New()
	r.GET("/api/v1/payments/return", h.PaymentReturn)
	r.POST("/api/v1/payments/webhook", h.PaymentWebhook)
	return &publicTestEnv{db: db, remote: remote, router: r}
}

func (e *publicTestEnv) createOrder(t *testing.T, key, status, method, remoteID string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderKey:         key,
		Status:           status,
		PaymentMethod:    method,
		RemoteResourceID: remoteID,
		Currency:         "EUR",
	}
	if err := e.db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func (e *publicTestEnv) status(t *testing.T, orderID uint) string {
	t.Helper()
	var order models.Order
	if err := e.db.First(&order, orderID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	return order.Status
}

func TestPaymentReturnErrorCodes(t *testing.T) {
	env := setupPublicTestEnv(t)
	order := env.createOrder(t, "key-card", constants.OrderStatusPending, "psp_creditcard", "")
	hostOrder := env.createOrder(t, "key-host", constants.OrderStatusPending, "cod", "")
	unknown := env.createOrder(t, "key-unknown", constants.OrderStatusPending, "bitcoin", "")

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{name: "unknown order", query: "order_id=9999&key=missing", want: http.StatusNotFound},
		{name: "key mismatch", query: fmt.Sprintf("order_id=%d&key=wrong", order.ID), want: http.StatusUnauthorized},
		{name: "host gateway", query: fmt.Sprintf("order_id=%d&key=key-host", hostOrder.ID), want: http.StatusBadRequest},
		{name: "unknown gateway", query: fmt.Sprintf("order_id=%d&key=key-unknown", unknown.ID), want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?"+tc.query, nil)
			env.router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status want %d got %d body=%s", tc.want, w.Code, w.Body.String())
			}
		})
	}
	if env.status(t, order.ID) != constants.OrderStatusPending {
		t.Fatalf("rejected return must not change the order")
	}
}

func TestPaymentReturnRedirectsAfterReconcile(t *testing.T) {
	env := setupPublicTestEnv(t)
	env.remote.statuses["tr_paid"] = constants.RemoteStatusPaid
	order := env.createOrder(t, "key-paid", constants.OrderStatusPending, "psp_creditcard", "tr_paid")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?key=key-paid", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status want 302 got %d body=%s", w.Code, w.Body.String())
	}
	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location failed: %v", err)
	}
	if location.Host != "shop.example" || location.Path != "/received" {
		t.Fatalf("unexpected landing %s", location.String())
	}
	if location.Query().Get("utm_nooverride") != "1" {
		t.Fatalf("tracking param missing in %s", location.String())
	}
	if location.Query().Get("pending") != "" {
		t.Fatalf("paid order should not carry pending marker: %s", location.String())
	}
	if env.status(t, order.ID) != constants.OrderStatusProcessing {
		t.Fatalf("return should reconcile paid order to processing, got %s", env.status(t, order.ID))
	}
}

func TestPaymentWebhookAlwaysAccepts(t *testing.T) {
	env := setupPublicTestEnv(t)
	env.remote.statuses["ord_paid"] = constants.RemoteStatusPaid
	order := env.createOrder(t, "key-webhook", constants.OrderStatusPending, "psp_creditcard", "ord_paid")

	bodies := []string{"id=ord_paid", "id=not-a-resource", "id=tr_unknown", ""}
	for _, body := range bodies {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("webhook %q status want 200 got %d", body, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"accepted":true`) {
			t.Fatalf("webhook %q should be accepted, got %s", body, w.Body.String())
		}
	}
	if env.status(t, order.ID) != constants.OrderStatusProcessing {
		t.Fatalf("webhook should move order to processing, got %s", env.status(t, order.ID))
	}
}

func TestPaymentWebhookReadsQueryParam(t *testing.T) {
	env := setupPublicTestEnv(t)
	env.remote.statuses["tr_query"] = constants.RemoteStatusExpired
	order := env.createOrder(t, "key-query", constants.OrderStatusPending, "psp_creditcard", "tr_query")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook?id=tr_query", nil)
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if env.status(t, order.ID) != constants.OrderStatusCancelled {
		t.Fatalf("expired payment should cancel order, got %s", env.status(t, order.ID))
	}
}
