package service

import (
	"strings"

	"github.com/payrecon/internal/constants"

	"github.com/looplab/fsm"
)

// 远端资源状态机事件
const (
	remoteEventAuthorize = "authorize"
	remoteEventPay       = "pay"
	remoteEventShip      = "ship"
	remoteEventComplete  = "complete"
	remoteEventCancel    = "cancel"
	remoteEventExpire    = "expire"
	remoteEventRefund    = "refund"
)

// 订单类型：created -> authorized|paid -> shipping -> completed；created|authorized|shipping -> canceled
var orderKindEvents = fsm.Events{
	{Name: remoteEventAuthorize, Src: []string{constants.RemoteStatusCreated, constants.RemoteStatusPending}, Dst: constants.RemoteStatusAuthorized},
	{Name: remoteEventPay, Src: []string{constants.RemoteStatusCreated, constants.RemoteStatusPending}, Dst: constants.RemoteStatusPaid},
	{Name: remoteEventShip, Src: []string{constants.RemoteStatusAuthorized, constants.RemoteStatusPaid}, Dst: constants.RemoteStatusShipping},
	{Name: remoteEventComplete, Src: []string{constants.RemoteStatusShipping}, Dst: constants.RemoteStatusCompleted},
	{Name: remoteEventCancel, Src: []string{constants.RemoteStatusCreated, constants.RemoteStatusAuthorized, constants.RemoteStatusShipping}, Dst: constants.RemoteStatusCanceled},
	{Name: remoteEventExpire, Src: []string{constants.RemoteStatusCreated, constants.RemoteStatusPending, constants.RemoteStatusAuthorized}, Dst: constants.RemoteStatusExpired},
	{Name: remoteEventRefund, Src: []string{constants.RemoteStatusPaid, constants.RemoteStatusShipping, constants.RemoteStatusCompleted}, Dst: constants.RemoteStatusRefunded},
}

// 支付类型只随结算流转，不支持发货
var paymentKindEvents = fsm.Events{
	{Name: remoteEventAuthorize, Src: []string{constants.RemoteStatusOpen, constants.RemoteStatusPending}, Dst: constants.RemoteStatusAuthorized},
	{Name: remoteEventPay, Src: []string{constants.RemoteStatusOpen, constants.RemoteStatusPending, constants.RemoteStatusAuthorized}, Dst: constants.RemoteStatusPaid},
	{Name: remoteEventCancel, Src: []string{constants.RemoteStatusOpen, constants.RemoteStatusAuthorized}, Dst: constants.RemoteStatusCanceled},
	{Name: remoteEventExpire, Src: []string{constants.RemoteStatusOpen, constants.RemoteStatusPending, constants.RemoteStatusAuthorized}, Dst: constants.RemoteStatusExpired},
	{Name: remoteEventRefund, Src: []string{constants.RemoteStatusPaid}, Dst: constants.RemoteStatusRefunded},
}

var remoteTerminalStatuses = map[string]bool{
	constants.RemoteStatusCompleted: true,
	constants.RemoteStatusCanceled:  true,
	constants.RemoteStatusExpired:   true,
	constants.RemoteStatusRefunded:  true,
	constants.RemoteStatusFailed:    true,
}

// remoteState 基于已读取的远端状态构建的只读状态机
type remoteState struct {
	kind    string
	status  string
	machine *fsm.FSM
}

func newRemoteState(kind, status string) *remoteState {
	kind = strings.ToLower(strings.TrimSpace(kind))
	status = normalizeRemoteStatus(kind, status)
	events := paymentKindEvents
	if kind == constants.RemoteKindOrder {
		events = orderKindEvents
	}
	return &remoteState{
		kind:    kind,
		status:  status,
		machine: fsm.NewFSM(status, events, fsm.Callbacks{}),
	}
}

// normalizeRemoteStatus 订单类型的 open 视为 created
func normalizeRemoteStatus(kind, status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if kind == constants.RemoteKindOrder && status == constants.RemoteStatusOpen {
		return constants.RemoteStatusCreated
	}
	return status
}

func (s *remoteState) Status() string {
	return s.status
}

// Terminal 远端已进入终态，不再发出任何竞争动作
func (s *remoteState) Terminal() bool {
	return remoteTerminalStatuses[s.status]
}

// CanCancel 当前状态是否允许取消
func (s *remoteState) CanCancel() bool {
	return s.machine.Can(remoteEventCancel)
}

// CanShip 当前状态是否允许发货（仅订单类型）
func (s *remoteState) CanShip() bool {
	if s.kind != constants.RemoteKindOrder {
		return false
	}
	return s.machine.Can(remoteEventShip)
}
