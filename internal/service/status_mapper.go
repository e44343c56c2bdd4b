package service

import (
	"strings"

	"github.com/payrecon/internal/constants"
)

// StatusIntent 远端状态映射出的本地动作
type StatusIntent string

const (
	IntentNoop           StatusIntent = "no-op"
	IntentMarkOnHold     StatusIntent = "mark-on-hold"
	IntentMarkProcessing StatusIntent = "mark-processing"
	IntentMarkCompleted  StatusIntent = "mark-completed"
	IntentMarkCancelled  StatusIntent = "mark-cancelled"
	IntentMarkRefunded   StatusIntent = "mark-refunded"
	IntentMarkFailed     StatusIntent = "mark-failed"
)

var remoteStatusIntents = map[string]StatusIntent{
	constants.RemoteStatusCreated:           IntentNoop,
	constants.RemoteStatusOpen:              IntentNoop,
	constants.RemoteStatusPending:           IntentMarkOnHold,
	constants.RemoteStatusAuthorized:        IntentMarkProcessing,
	constants.RemoteStatusPaid:              IntentMarkProcessing,
	constants.RemoteStatusShipping:          IntentMarkProcessing,
	constants.RemoteStatusCompleted:         IntentMarkCompleted,
	constants.RemoteStatusCanceled:          IntentMarkCancelled,
	constants.RemoteStatusExpired:           IntentMarkCancelled,
	constants.RemoteStatusFailed:            IntentMarkFailed,
	constants.RemoteStatusRefunded:          IntentMarkRefunded,
	constants.RemoteStatusPartiallyRefunded: IntentNoop,
}

// MapRemoteStatus 将远端资源状态映射为本地动作，未知状态返回 no-op
func MapRemoteStatus(kind, remoteStatus string) StatusIntent {
	kind = strings.ToLower(strings.TrimSpace(kind))
	remoteStatus = strings.ToLower(strings.TrimSpace(remoteStatus))

	// 支付类型资源不存在发货阶段
	if kind == constants.RemoteKindPayment && remoteStatus == constants.RemoteStatusShipping {
		reconcileLogger("remote_kind", kind, "remote_status", remoteStatus).Warnw("status_mapper_unexpected_status_for_kind")
		return IntentNoop
	}
	intent, ok := remoteStatusIntents[remoteStatus]
	if !ok {
		reconcileLogger("remote_kind", kind, "remote_status", remoteStatus).Warnw("status_mapper_unknown_status")
		return IntentNoop
	}
	return intent
}

// TargetStatus 返回动作对应的本地状态，no-op 返回空字符串
func (i StatusIntent) TargetStatus() string {
	switch i {
	case IntentMarkOnHold:
		return constants.OrderStatusOnHold
	case IntentMarkProcessing:
		return constants.OrderStatusProcessing
	case IntentMarkCompleted:
		return constants.OrderStatusCompleted
	case IntentMarkCancelled:
		return constants.OrderStatusCancelled
	case IntentMarkRefunded:
		return constants.OrderStatusRefunded
	case IntentMarkFailed:
		return constants.OrderStatusFailed
	default:
		return ""
	}
}
