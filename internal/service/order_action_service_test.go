package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/payment/mollie"

	"github.com/shopspring/decimal"
)

func transitionTo(t *testing.T, env *reconcileTestEnv, orderID uint, status, source string) {
	t.Helper()
	if _, err := env.orders.Transition(context.Background(), TransitionInput{
		OrderID:  orderID,
		ToStatus: status,
		Source:   source,
	}); err != nil {
		t.Fatalf("transition to %s failed: %v", status, err)
	}
}

func TestOrderActionShipOnCompletedAuthorizedOrder(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_ship", constants.OrderStatusProcessing, testGatewayCard, "ord_ship")
	env.remote.put("ord_ship", constants.RemoteStatusAuthorized)

	transitionTo(t, env, order.ID, constants.OrderStatusCompleted, constants.TransitionSourceManual)

	if env.remote.callsOf("ship:ord_ship") != 1 {
		t.Fatalf("expected one ship call, calls=%v", env.remote.calls)
	}
	if !hasNote(env.notesOf(t, order.ID), constants.NoteShipSucceeded) {
		t.Fatalf("expected ship note")
	}
}

func TestOrderActionNeverShipsPaymentKind(t *testing.T) {
	statuses := []string{
		constants.RemoteStatusOpen,
		constants.RemoteStatusPending,
		constants.RemoteStatusAuthorized,
		constants.RemoteStatusPaid,
		constants.RemoteStatusShipping,
		constants.RemoteStatusCompleted,
		constants.RemoteStatusCanceled,
		constants.RemoteStatusExpired,
		constants.RemoteStatusRefunded,
	}
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	for i, status := range statuses {
		remoteID := fmt.Sprintf("tr_kind_%d", i)
		order := env.createOrder(t, "wc_order_kind_"+status, constants.OrderStatusProcessing, testGatewayCard, remoteID)
		env.remote.put(remoteID, status)

		if outcome := env.actions.ShipRemote(context.Background(), order); outcome != ActionOutcomeKindGuarded {
			t.Fatalf("status %s: expected kind guard, got %s", status, outcome)
		}
	}
	if env.remote.callsOf("ship:") != 0 {
		t.Fatalf("payment kind must never be shipped, calls=%v", env.remote.calls)
	}
}

func TestOrderActionShipOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		want     string
		wantNote string
	}{
		{name: "created", status: constants.RemoteStatusCreated, want: ActionOutcomeDeferred, wantNote: constants.NoteShipDeferred},
		{name: "paid", status: constants.RemoteStatusPaid, want: ActionOutcomeShipped, wantNote: constants.NoteShipSucceeded},
		{name: "canceled", status: constants.RemoteStatusCanceled, want: ActionOutcomeAlreadyTerminal},
		{name: "completed", status: constants.RemoteStatusCompleted, want: ActionOutcomeAlreadyTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
			remoteID := "ord_ship_" + tt.name
			order := env.createOrder(t, "wc_order_"+tt.name, constants.OrderStatusProcessing, testGatewayCard, remoteID)
			env.remote.put(remoteID, tt.status)

			if got := env.actions.ShipRemote(context.Background(), order); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
			notes := env.notesOf(t, order.ID)
			if tt.wantNote == "" && len(notes) != 0 {
				t.Fatalf("expected no notes, got %d", len(notes))
			}
			if tt.wantNote != "" && !hasNote(notes, tt.wantNote) {
				t.Fatalf("expected note %q", tt.wantNote)
			}
		})
	}
}

func TestOrderActionCancelOnCancelledOrder(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	cancelable := env.createOrder(t, "wc_order_c1", constants.OrderStatusPending, testGatewayCard, "ord_c1")
	env.remote.put("ord_c1", constants.RemoteStatusCreated)
	settled := env.createOrder(t, "wc_order_c2", constants.OrderStatusProcessing, testGatewayCard, "ord_c2")
	env.remote.put("ord_c2", constants.RemoteStatusPaid)

	transitionTo(t, env, cancelable.ID, constants.OrderStatusCancelled, constants.TransitionSourceManual)
	transitionTo(t, env, settled.ID, constants.OrderStatusCancelled, constants.TransitionSourceManual)

	if env.remote.callsOf("cancel:ord_c1") != 1 {
		t.Fatalf("expected remote cancel for created order")
	}
	if !hasNote(env.notesOf(t, cancelable.ID), constants.NoteCancelSucceeded) {
		t.Fatalf("expected cancel success note")
	}
	if env.remote.callsOf("cancel:ord_c2") != 0 {
		t.Fatalf("paid order must not be cancelled remotely")
	}
	want := fmt.Sprintf(constants.NoteCancelNotPossible, constants.RemoteStatusPaid)
	if !hasNote(env.notesOf(t, settled.ID), want) {
		t.Fatalf("expected note %q", want)
	}
}

func TestOrderActionCancelFailureIsLogOnly(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_cf", constants.OrderStatusPending, testGatewayCard, "ord_cf")
	env.remote.put("ord_cf", constants.RemoteStatusCreated)
	env.remote.cancelErr = fmt.Errorf("%w: status 500", mollie.ErrRequestFailed)

	transitionTo(t, env, order.ID, constants.OrderStatusCancelled, constants.TransitionSourceManual)

	if got := env.reload(t, order.ID).Status; got != constants.OrderStatusCancelled {
		t.Fatalf("local cancel must stand, got %s", got)
	}
	if env.remote.callsOf("cancel:ord_cf") != 1 {
		t.Fatalf("expected one remote cancel attempt, calls=%v", env.remote.calls)
	}
	if hasNote(env.notesOf(t, order.ID), constants.NoteCancelSucceeded) {
		t.Fatalf("unexpected success note after remote failure")
	}
}

func TestOrderActionCancelSkipsPaymentResource(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_tr_cancel", constants.OrderStatusPending, testGatewayCard, "tr_pk")
	env.remote.put("tr_pk", constants.RemoteStatusOpen)

	transitionTo(t, env, order.ID, constants.OrderStatusCancelled, constants.TransitionSourceManual)

	if env.remote.callsOf("get:") != 0 || env.remote.callsOf("cancel:") != 0 {
		t.Fatalf("payment resource must not be read or cancelled remotely, calls=%v", env.remote.calls)
	}
	notes := env.notesOf(t, order.ID)
	if !hasNote(notes, constants.NoteCancelMissingOrderID) {
		t.Fatalf("expected missing order id note")
	}
	if hasNote(notes, constants.NoteCancelSucceeded) {
		t.Fatalf("unexpected success note for payment resource")
	}
	if got := env.actions.CancelRemote(context.Background(), env.reload(t, order.ID)); got != ActionOutcomeMissingRemoteID {
		t.Fatalf("expected missing remote id outcome, got %s", got)
	}
}

func TestOrderActionDisabledFlagsSkipRemoteRead(t *testing.T) {
	gateways := defaultTestGateways()
	gateways[0].DisableRemoteShip = true
	env := setupReconcileTestEnv(t, gateways, GatewayRegistryOptions{DisableRemoteCancel: true})
	shipOrder := env.createOrder(t, "wc_order_ds", constants.OrderStatusProcessing, testGatewayCard, "ord_ds")
	cancelOrder := env.createOrder(t, "wc_order_dc", constants.OrderStatusPending, testGatewayTransfer, "ord_dc")
	env.remote.put("ord_ds", constants.RemoteStatusAuthorized)
	env.remote.put("ord_dc", constants.RemoteStatusCreated)

	if got := env.actions.ShipRemote(context.Background(), shipOrder); got != ActionOutcomeDisabled {
		t.Fatalf("expected ship disabled, got %s", got)
	}
	if got := env.actions.CancelRemote(context.Background(), cancelOrder); got != ActionOutcomeDisabled {
		t.Fatalf("expected cancel disabled, got %s", got)
	}
	if env.remote.callsOf("get:") != 0 {
		t.Fatalf("disabled actions must not read remote, calls=%v", env.remote.calls)
	}
}

func TestOrderActionMissingRemoteID(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_norid", constants.OrderStatusPending, testGatewayCard, "")

	if got := env.actions.CancelRemote(context.Background(), order); got != ActionOutcomeMissingRemoteID {
		t.Fatalf("expected missing remote id, got %s", got)
	}
	if !hasNote(env.notesOf(t, order.ID), constants.NoteCancelMissingOrderID) {
		t.Fatalf("expected missing id note")
	}

	host := env.createOrder(t, "wc_order_hostc", constants.OrderStatusPending, testGatewayHost, "")
	if got := env.actions.CancelRemote(context.Background(), host); got != ActionOutcomeUnmanaged {
		t.Fatalf("expected unmanaged for host gateway, got %s", got)
	}
}

func TestOrderActionRefundAndCancelLines(t *testing.T) {
	env := setupReconcileTestEnv(t, defaultTestGateways(), GatewayRegistryOptions{})
	order := env.createOrder(t, "wc_order_lines", constants.OrderStatusProcessing, testGatewayCard, "ord_lines")
	payment := env.createOrder(t, "wc_order_amount", constants.OrderStatusProcessing, testGatewayCard, "tr_amount")

	if err := env.actions.RefundLines(context.Background(), RefundLinesInput{OrderID: order.ID}); !errors.Is(err, ErrRemoteLineIDsRequired) {
		t.Fatalf("expected ErrRemoteLineIDsRequired, got %v", err)
	}
	if err := env.actions.RefundLines(context.Background(), RefundLinesInput{OrderID: payment.ID}); !errors.Is(err, ErrRefundAmountInvalid) {
		t.Fatalf("expected ErrRefundAmountInvalid, got %v", err)
	}
	if err := env.actions.RefundLines(context.Background(), RefundLinesInput{OrderID: order.ID, LineIDs: []string{"odl_1", " odl_1 ", "odl_2"}}); err != nil {
		t.Fatalf("refund lines failed: %v", err)
	}
	if err := env.actions.CancelLines(context.Background(), CancelLinesInput{OrderID: order.ID, LineIDs: []string{"odl_3"}}); err != nil {
		t.Fatalf("cancel lines failed: %v", err)
	}
	if err := env.actions.RefundLines(context.Background(), RefundLinesInput{OrderID: payment.ID, Amount: decimal.RequireFromString("2.50")}); err != nil {
		t.Fatalf("refund amount failed: %v", err)
	}
	if err := env.actions.CancelLines(context.Background(), CancelLinesInput{OrderID: payment.ID, LineIDs: []string{"odl_4"}}); !errors.Is(err, ErrRemoteIDInvalid) {
		t.Fatalf("expected ErrRemoteIDInvalid for payment kind, got %v", err)
	}

	notes := env.notesOf(t, order.ID)
	if !hasNote(notes, fmt.Sprintf(constants.NoteLinesRefunded, "odl_1, odl_2")) {
		t.Fatalf("expected refund lines note, got %+v", notes)
	}
	if !hasNote(notes, fmt.Sprintf(constants.NoteLinesCancelled, "odl_3")) {
		t.Fatalf("expected cancel lines note, got %+v", notes)
	}
	if len(env.notesOf(t, payment.ID)) != 0 {
		t.Fatalf("payment refund note is written by the following webhook, not immediately")
	}
	if len(env.remote.refunds) != 2 || !env.remote.refunds[1].Amount.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("unexpected refund inputs: %+v", env.remote.refunds)
	}
}
