package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/payment/mollie"
)

func TestReconcileWebhookPaidOrderMarksProcessing(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_paid", constants.OrderStatusPending, testGatewayCard, "ord_paid")
	env.remote.put("ord_paid", constants.RemoteStatusPaid)

	result, err := env.reconcile.HandleWebhook(context.Background(), " ord_paid ")
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if result.Outcome != ReconcileOutcomeApplied {
		t.Fatalf("expected applied outcome, got %s", result.Outcome)
	}
	if got := env.reload(t, order.ID).Status; got != constants.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", got)
	}
	if env.remote.callsOf("ship:") != 0 || env.remote.callsOf("cancel:") != 0 {
		t.Fatalf("expected no remote action, calls=%v", env.remote.calls)
	}
	want := fmt.Sprintf(constants.NoteStatusFromRemote, constants.OrderStatusPending, constants.OrderStatusProcessing, constants.RemoteStatusPaid, "ord_paid")
	if !hasNote(env.notesOf(t, order.ID), want) {
		t.Fatalf("expected status note %q", want)
	}
}

func TestReconcileWebhookIsIdempotent(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_idem", constants.OrderStatusPending, testGatewayCard, "tr_idem")
	env.remote.put("tr_idem", constants.RemoteStatusPaid)

	for i := 0; i < 3; i++ {
		if _, err := env.reconcile.HandleWebhook(context.Background(), "tr_idem"); err != nil {
			t.Fatalf("handle webhook #%d failed: %v", i, err)
		}
	}
	if got := env.reload(t, order.ID).Status; got != constants.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", got)
	}
	if notes := env.notesOf(t, order.ID); len(notes) != 1 {
		t.Fatalf("expected exactly one note, got %d", len(notes))
	}
}

func TestReconcileWebhookAlreadyCancelledIsNoop(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_cancelled", constants.OrderStatusCancelled, testGatewayCard, "ord_cancelled")
	env.remote.put("ord_cancelled", constants.RemoteStatusCanceled)

	for i := 0; i < 2; i++ {
		result, err := env.reconcile.HandleWebhook(context.Background(), "ord_cancelled")
		if err != nil {
			t.Fatalf("handle webhook failed: %v", err)
		}
		if result.Outcome != ReconcileOutcomeUnchanged {
			t.Fatalf("expected unchanged outcome, got %s", result.Outcome)
		}
	}
	if notes := env.notesOf(t, order.ID); len(notes) != 0 {
		t.Fatalf("expected no notes, got %d", len(notes))
	}
	if env.remote.callsOf("cancel:") != 0 {
		t.Fatalf("expected no remote cancel")
	}
}

func TestReconcileWebhookTerminalOrderIsNotChanged(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_done", constants.OrderStatusCompleted, testGatewayCard, "ord_done")
	env.remote.put("ord_done", constants.RemoteStatusPaid)

	result, err := env.reconcile.HandleWebhook(context.Background(), "ord_done")
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if result.Outcome != ReconcileOutcomeTerminal {
		t.Fatalf("expected terminal outcome, got %s", result.Outcome)
	}
	if got := env.reload(t, order.ID).Status; got != constants.OrderStatusCompleted {
		t.Fatalf("expected completed to stay, got %s", got)
	}
}

func TestReconcileWebhookRemoteFailureIsSwallowed(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_fail", constants.OrderStatusPending, testGatewayCard, "ord_fail")
	env.remote.getErr = fmt.Errorf("%w: timeout", mollie.ErrRequestFailed)

	result, err := env.reconcile.HandleWebhook(context.Background(), "ord_fail")
	if err != nil {
		t.Fatalf("expected remote failure to be swallowed, got %v", err)
	}
	if result.Outcome != ReconcileOutcomeRemoteFailed {
		t.Fatalf("expected remote_failed outcome, got %s", result.Outcome)
	}
	if got := env.reload(t, order.ID).Status; got != constants.OrderStatusPending {
		t.Fatalf("expected status unchanged, got %s", got)
	}
}

func TestReconcileWebhookUnresolvableIDs(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})

	result, err := env.reconcile.HandleWebhook(context.Background(), "tr_unknown")
	if err != nil {
		t.Fatalf("unknown resource should not fail: %v", err)
	}
	if result.Outcome != ReconcileOutcomeOrderNotFound {
		t.Fatalf("expected order_not_found, got %s", result.Outcome)
	}
	if env.remote.callsOf("get:") != 0 {
		t.Fatalf("expected no remote read for unknown order")
	}

	if _, err := env.reconcile.HandleWebhook(context.Background(), "not-a-resource"); !errors.Is(err, ErrRemoteIDInvalid) {
		t.Fatalf("expected ErrRemoteIDInvalid, got %v", err)
	}
}

func TestReconcileWebhookRefundedLinesNotedOnce(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_refund", constants.OrderStatusProcessing, testGatewayCard, "ord_refund")
	env.remote.put("ord_refund", constants.RemoteStatusPaid,
		mollie.Line{ID: "odl_1", Status: constants.RemoteStatusPaid, Quantity: 2, QuantityRefunded: 1},
		mollie.Line{ID: "odl_2", Status: constants.RemoteStatusPaid, Quantity: 1},
	)

	for i := 0; i < 2; i++ {
		result, err := env.reconcile.HandleWebhook(context.Background(), "ord_refund")
		if err != nil {
			t.Fatalf("handle webhook failed: %v", err)
		}
		if i == 0 && len(result.RefundedLines) != 1 {
			t.Fatalf("expected one fresh refunded line, got %v", result.RefundedLines)
		}
		if i == 1 && len(result.RefundedLines) != 0 {
			t.Fatalf("expected no fresh refunded lines on redelivery, got %v", result.RefundedLines)
		}
	}

	want := fmt.Sprintf(constants.NoteLinesRefunded, "odl_1")
	count := 0
	for _, note := range env.notesOf(t, order.ID) {
		if note.Content == want {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one refund note, got %d", count)
	}
}

func TestReconcileWebhookUsesGatewayCancelledStatus(t *testing.T) {
	gateways := defaultTestGateways()
	gateways[0].CancelledStatus = constants.OrderStatusFailed
	env := setupReconcileTestEnv(t, gateways, GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_expired", constants.OrderStatusPending, testGatewayCard, "tr_expired")
	env.remote.put("tr_expired", constants.RemoteStatusExpired)

	if _, err := env.reconcile.HandleWebhook(context.Background(), "tr_expired"); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if got := env.reload(t, order.ID).Status; got != constants.OrderStatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func TestReconcileReturnKeyMismatch(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_secret", constants.OrderStatusPending, testGatewayCard, "ord_secret")
	env.remote.put("ord_secret", constants.RemoteStatusPaid)

	_, err := env.reconcile.HandleReturn(context.Background(), ReturnInput{
		OrderID:  strconv.FormatUint(uint64(order.ID), 10),
		OrderKey: "wc_order_guess",
	})
	if !errors.Is(err, ErrOrderKeyInvalid) {
		t.Fatalf("expected ErrOrderKeyInvalid, got %v", err)
	}
	if got := env.reload(t, order.ID).Status; got != constants.OrderStatusPending {
		t.Fatalf("expected no status mutation, got %s", got)
	}
	if env.remote.callsOf("get:") != 0 {
		t.Fatalf("expected no remote read before key check")
	}
}

func TestReconcileReturnResolution(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	hostOrder := env.createOrder(t, "wc_order_host", constants.OrderStatusPending, testGatewayHost, "")
	unknownOrder := env.createOrder(t, "wc_order_unknown", constants.OrderStatusPending, "bacs", "")

	tests := []struct {
		name  string
		input ReturnInput
		want  error
	}{
		{name: "not found", input: ReturnInput{OrderID: "999", OrderKey: "wc_order_missing"}, want: ErrOrderNotFound},
		{name: "host handler", input: ReturnInput{OrderID: strconv.FormatUint(uint64(hostOrder.ID), 10), OrderKey: hostOrder.OrderKey}, want: ErrGatewayUnsupported},
		{name: "unknown handler", input: ReturnInput{OrderKey: unknownOrder.OrderKey}, want: ErrGatewayUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reconcile.HandleReturn(context.Background(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReconcileReturnRedirectTargets(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	paid := env.createOrder(t, "wc_order_r_paid", constants.OrderStatusPending, testGatewayCard, "ord_r_paid")
	env.remote.put("ord_r_paid", constants.RemoteStatusPaid)
	open := env.createOrder(t, "wc_order_r_open", constants.OrderStatusPending, testGatewayCard, "tr_r_open")
	env.remote.put("tr_r_open", constants.RemoteStatusOpen)
	canceled := env.createOrder(t, "wc_order_r_canceled", constants.OrderStatusPending, testGatewayCard, "tr_r_canceled")
	env.remote.put("tr_r_canceled", constants.RemoteStatusCanceled)

	tests := []struct {
		name        string
		key         string
		wantPrefix  string
		wantStatus  string
		wantPending bool
	}{
		{name: "paid", key: paid.OrderKey, wantPrefix: "https://shop.example/checkout/received", wantStatus: constants.OrderStatusProcessing},
		{name: "open", key: open.OrderKey, wantPrefix: "https://shop.example/checkout/received", wantStatus: constants.OrderStatusPending, wantPending: true},
		{name: "canceled", key: canceled.OrderKey, wantPrefix: "https://shop.example/checkout/failed", wantStatus: constants.OrderStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.reconcile.HandleReturn(context.Background(), ReturnInput{OrderKey: tt.key})
			if err != nil {
				t.Fatalf("handle return failed: %v", err)
			}
			if result.Order.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, result.Order.Status)
			}
			if !strings.HasPrefix(result.RedirectURL, tt.wantPrefix) {
				t.Fatalf("unexpected redirect target: %s", result.RedirectURL)
			}
			parsed, err := url.Parse(result.RedirectURL)
			if err != nil {
				t.Fatalf("parse redirect failed: %v", err)
			}
			query := parsed.Query()
			if query.Get("utm_nooverride") != "1" {
				t.Fatalf("expected tracking parameter, got %s", result.RedirectURL)
			}
			if query.Get("key") != tt.key {
				t.Fatalf("expected order key in redirect, got %s", result.RedirectURL)
			}
			if (query.Get("pending") == "1") != tt.wantPending {
				t.Fatalf("unexpected pending marker in %s", result.RedirectURL)
			}
		})
	}
}

func TestReconcileReturnWithoutRemoteResource(t *testing.T) {
	env := setupReconcileTestEnv(t, []config.GatewayConfig{{
		ID:        testGatewayCard,
		Handler:   constants.GatewayHandlerPSP,
		ReturnURL: "https://shop.example/thanks?lang=nl",
	}}, GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_fresh", constants.OrderStatusPending, testGatewayCard, "")

	result, err := env.reconcile.HandleReturn(context.Background(), ReturnInput{
		OrderID:  strconv.FormatUint(uint64(order.ID), 10),
		OrderKey: order.OrderKey,
	})
	if err != nil {
		t.Fatalf("handle return failed: %v", err)
	}
	if env.remote.callsOf("get:") != 0 {
		t.Fatalf("expected no remote read without resource id")
	}
	parsed, _ := url.Parse(result.RedirectURL)
	if parsed.Query().Get("lang") != "nl" {
		t.Fatalf("expected existing query preserved, got %s", result.RedirectURL)
	}
}
