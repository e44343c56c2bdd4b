package service

import (
	"testing"

	"github.com/payrecon/internal/constants"
)

func TestMapRemoteStatus(t *testing.T) {
	tests := []struct {
		kind   string
		status string
		want   StatusIntent
	}{
		{constants.RemoteKindOrder, constants.RemoteStatusCreated, IntentNoop},
		{constants.RemoteKindPayment, constants.RemoteStatusOpen, IntentNoop},
		{constants.RemoteKindPayment, constants.RemoteStatusPending, IntentMarkOnHold},
		{constants.RemoteKindOrder, constants.RemoteStatusAuthorized, IntentMarkProcessing},
		{constants.RemoteKindPayment, constants.RemoteStatusPaid, IntentMarkProcessing},
		{constants.RemoteKindOrder, constants.RemoteStatusShipping, IntentMarkProcessing},
		{constants.RemoteKindPayment, constants.RemoteStatusShipping, IntentNoop},
		{constants.RemoteKindOrder, constants.RemoteStatusCompleted, IntentMarkCompleted},
		{constants.RemoteKindOrder, constants.RemoteStatusCanceled, IntentMarkCancelled},
		{constants.RemoteKindPayment, constants.RemoteStatusExpired, IntentMarkCancelled},
		{constants.RemoteKindPayment, constants.RemoteStatusFailed, IntentMarkFailed},
		{constants.RemoteKindOrder, constants.RemoteStatusRefunded, IntentMarkRefunded},
		{constants.RemoteKindPayment, constants.RemoteStatusPartiallyRefunded, IntentNoop},
		{constants.RemoteKindOrder, " PAID ", IntentMarkProcessing},
		{constants.RemoteKindOrder, "chargeback", IntentNoop},
		{constants.RemoteKindOrder, "", IntentNoop},
	}
	for _, tt := range tests {
		if got := MapRemoteStatus(tt.kind, tt.status); got != tt.want {
			t.Errorf("MapRemoteStatus(%q, %q) = %s, want %s", tt.kind, tt.status, got, tt.want)
		}
	}
}

func TestStatusIntentTargetStatus(t *testing.T) {
	if IntentNoop.TargetStatus() != "" {
		t.Fatalf("no-op must not target a status")
	}
	if IntentMarkOnHold.TargetStatus() != constants.OrderStatusOnHold {
		t.Fatalf("unexpected on-hold target")
	}
	if IntentMarkCancelled.TargetStatus() != constants.OrderStatusCancelled {
		t.Fatalf("unexpected cancelled target")
	}
}
