package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/payment/mollie"

	"github.com/shopspring/decimal"
)

// 远端动作结果
const (
	ActionOutcomeDisabled        = "disabled"
	ActionOutcomeUnmanaged       = "unmanaged"
	ActionOutcomeMissingRemoteID = "missing_remote_id"
	ActionOutcomeRemoteFailed    = "remote_failed"
	ActionOutcomeAlreadyTerminal = "already_terminal"
	ActionOutcomeKindGuarded     = "kind_guarded"
	ActionOutcomeNotCancelable   = "not_cancelable"
	ActionOutcomeDeferred        = "deferred"
	ActionOutcomeCancelled       = "cancelled"
	ActionOutcomeShipped         = "shipped"
)

const orderActionSubscriber = "order_action"

// OrderActionService 远端动作编排：本地订单取消/完成时向远端发出取消或发货指令
type OrderActionService struct {
	orders   *OrderService
	registry *GatewayRegistry
	remote   RemoteClient
	bus      *EventBus
	metrics  Metrics
}

// NewOrderActionService 创建远端动作编排服务
func NewOrderActionService(orders *OrderService, registry *GatewayRegistry, remote RemoteClient, bus *EventBus, metrics Metrics) *OrderActionService {
	return &OrderActionService{
		orders:   orders,
		registry: registry,
		remote:   remote,
		bus:      bus,
		metrics:  metricsOrNoop(metrics),
	}
}

// Subscribe 订阅本地订单状态变更
func (s *OrderActionService) Subscribe() {
	if s.bus == nil {
		return
	}
	s.bus.OrderStatusChanged.Subscribe(orderActionSubscriber, s.onOrderStatusChanged)
}

func (s *OrderActionService) onOrderStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error {
	// 由远端状态驱动的变更不再回写远端
	if event.Source == constants.TransitionSourceRemote {
		return nil
	}
	order := event.Order
	switch event.ToStatus {
	case constants.OrderStatusCancelled:
		s.CancelRemote(ctx, &order)
	case constants.OrderStatusCompleted:
		s.ShipRemote(ctx, &order)
	}
	return nil
}

// CancelRemote 重新读取远端状态后尝试取消远端资源；失败仅记录日志
func (s *OrderActionService) CancelRemote(ctx context.Context, order *models.Order) string {
	outcome := s.cancelRemote(ctx, order)
	s.metrics.ObserveRemoteAction("cancel", outcome)
	return outcome
}

func (s *OrderActionService) cancelRemote(ctx context.Context, order *models.Order) string {
	if _, ok := s.registry.Managed(order.PaymentMethod); !ok {
		return ActionOutcomeUnmanaged
	}
	if s.registry.RemoteCancelDisabled(order.PaymentMethod) {
		return ActionOutcomeDisabled
	}
	log := reconcileLogger("action", "cancel", "order_id", order.ID, "remote_id", order.RemoteResourceID)
	remoteID := strings.TrimSpace(order.RemoteResourceID)
	// 只有订单类型资源可在远端取消，支付类型与缺失编号同样处理
	if kind := mollie.KindOf(remoteID); kind != constants.RemoteKindOrder {
		s.addNote(order.ID, constants.NoteCancelMissingOrderID)
		log.Warnw("order_action_missing_remote_id", "remote_kind", kind)
		return ActionOutcomeMissingRemoteID
	}

	resource, err := s.remote.Get(ctx, remoteID)
	if err != nil {
		s.metrics.ObserveRemoteCall("get", remoteCallOutcome(err))
		log.Warnw("order_action_remote_fetch_failed", "error", fmt.Errorf("%w: %v", ErrRemoteCallFailed, err))
		return ActionOutcomeRemoteFailed
	}
	s.metrics.ObserveRemoteCall("get", "ok")
	state := newRemoteState(resource.Kind, resource.Status)
	if state.Terminal() {
		log.Infow("order_action_remote_already_terminal", "remote_status", state.Status())
		return ActionOutcomeAlreadyTerminal
	}
	if !state.CanCancel() {
		s.addNote(order.ID, fmt.Sprintf(constants.NoteCancelNotPossible, resource.Status))
		log.Infow("order_action_remote_not_cancelable", "remote_status", state.Status())
		return ActionOutcomeNotCancelable
	}
	if err := s.remote.Cancel(ctx, remoteID); err != nil {
		s.metrics.ObserveRemoteCall("cancel", remoteCallOutcome(err))
		log.Errorw("order_action_remote_cancel_failed", "remote_status", state.Status(), "error", fmt.Errorf("%w: %v", ErrRemoteCallFailed, err))
		return ActionOutcomeRemoteFailed
	}
	s.metrics.ObserveRemoteCall("cancel", "ok")
	s.addNote(order.ID, constants.NoteCancelSucceeded)
	log.Infow("order_action_remote_cancelled", "remote_status", state.Status())
	return ActionOutcomeCancelled
}

// ShipRemote 重新读取远端状态后发货全部行项目（同时触发资金捕获）；支付类型资源永不发货
func (s *OrderActionService) ShipRemote(ctx context.Context, order *models.Order) string {
	outcome := s.shipRemote(ctx, order)
	s.metrics.ObserveRemoteAction("ship", outcome)
	return outcome
}

func (s *OrderActionService) shipRemote(ctx context.Context, order *models.Order) string {
	if _, ok := s.registry.Managed(order.PaymentMethod); !ok {
		return ActionOutcomeUnmanaged
	}
	if s.registry.RemoteShipDisabled(order.PaymentMethod) {
		return ActionOutcomeDisabled
	}
	log := reconcileLogger("action", "ship", "order_id", order.ID, "remote_id", order.RemoteResourceID)
	remoteID := strings.TrimSpace(order.RemoteResourceID)
	if mollie.KindOf(remoteID) != constants.RemoteKindOrder {
		s.addNote(order.ID, constants.NoteShipMissingOrderID)
		log.Infow("order_action_ship_kind_guarded", "remote_kind", mollie.KindOf(remoteID))
		return ActionOutcomeKindGuarded
	}

	resource, err := s.remote.Get(ctx, remoteID)
	if err != nil {
		s.metrics.ObserveRemoteCall("get", remoteCallOutcome(err))
		log.Warnw("order_action_remote_fetch_failed", "error", fmt.Errorf("%w: %v", ErrRemoteCallFailed, err))
		return ActionOutcomeRemoteFailed
	}
	s.metrics.ObserveRemoteCall("get", "ok")
	if resource.Kind != constants.RemoteKindOrder {
		log.Warnw("order_action_ship_kind_guarded", "remote_kind", resource.Kind)
		return ActionOutcomeKindGuarded
	}
	state := newRemoteState(resource.Kind, resource.Status)
	if state.Terminal() {
		log.Infow("order_action_remote_already_terminal", "remote_status", state.Status())
		return ActionOutcomeAlreadyTerminal
	}
	if !state.CanShip() {
		s.addNote(order.ID, constants.NoteShipDeferred)
		log.Infow("order_action_ship_deferred", "remote_status", state.Status())
		return ActionOutcomeDeferred
	}
	if err := s.remote.ShipAll(ctx, remoteID); err != nil {
		s.metrics.ObserveRemoteCall("ship", remoteCallOutcome(err))
		log.Errorw("order_action_remote_ship_failed", "remote_status", state.Status(), "error", fmt.Errorf("%w: %v", ErrRemoteCallFailed, err))
		return ActionOutcomeRemoteFailed
	}
	s.metrics.ObserveRemoteCall("ship", "ok")
	s.addNote(order.ID, constants.NoteShipSucceeded)
	log.Infow("order_action_remote_shipped", "remote_status", state.Status())
	return ActionOutcomeShipped
}

// RefundLinesInput 运营发起的远端退款
type RefundLinesInput struct {
	OrderID     uint
	LineIDs     []string
	Amount      decimal.Decimal
	Description string
}

// CancelLinesInput 运营发起的远端行项目取消
type CancelLinesInput struct {
	OrderID uint
	LineIDs []string
}

// RefundLines 向远端发起退款；订单类型按行退款并发布退款事件，支付类型按金额退款，退款记录由后续通知对账写入
func (s *OrderActionService) RefundLines(ctx context.Context, input RefundLinesInput) error {
	order, remoteID, err := s.resolveRemoteOrder(input.OrderID)
	if err != nil {
		return err
	}
	lineIDs := normalizeLineIDs(input.LineIDs)
	kind := mollie.KindOf(remoteID)
	if kind == constants.RemoteKindOrder && len(lineIDs) == 0 {
		return ErrRemoteLineIDsRequired
	}
	if kind == constants.RemoteKindPayment && !input.Amount.IsPositive() {
		return ErrRefundAmountInvalid
	}
	err = s.remote.Refund(ctx, remoteID, mollie.RefundInput{
		LineIDs:     lineIDs,
		Amount:      input.Amount,
		Currency:    order.Currency,
		Description: input.Description,
	})
	s.metrics.ObserveRemoteCall("refund", remoteCallOutcome(err))
	if err != nil {
		reconcileLogger("order_id", order.ID, "remote_id", remoteID).Errorw("order_action_remote_refund_failed", "error", err)
		return fmt.Errorf("%w: %v", ErrRemoteCallFailed, err)
	}
	if kind != constants.RemoteKindOrder {
		return nil
	}
	return s.bus.RemoteRefunded.Publish(ctx, RemoteLinesEvent{OrderID: order.ID, RemoteResourceID: remoteID, LineIDs: lineIDs})
}

// CancelLines 取消远端订单的指定行项目并发布行取消事件
func (s *OrderActionService) CancelLines(ctx context.Context, input CancelLinesInput) error {
	order, remoteID, err := s.resolveRemoteOrder(input.OrderID)
	if err != nil {
		return err
	}
	lineIDs := normalizeLineIDs(input.LineIDs)
	if len(lineIDs) == 0 {
		return ErrRemoteLineIDsRequired
	}
	if mollie.KindOf(remoteID) != constants.RemoteKindOrder {
		return fmt.Errorf("%w: line cancellation requires an order resource", ErrRemoteIDInvalid)
	}
	err = s.remote.CancelLines(ctx, remoteID, lineIDs)
	s.metrics.ObserveRemoteCall("cancel_lines", remoteCallOutcome(err))
	if err != nil {
		reconcileLogger("order_id", order.ID, "remote_id", remoteID).Errorw("order_action_remote_cancel_lines_failed", "error", err)
		return fmt.Errorf("%w: %v", ErrRemoteCallFailed, err)
	}
	return s.bus.RemoteLinesCancelled.Publish(ctx, RemoteLinesEvent{OrderID: order.ID, RemoteResourceID: remoteID, LineIDs: lineIDs})
}

func (s *OrderActionService) resolveRemoteOrder(orderID uint) (*models.Order, string, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, "", err
	}
	if _, ok := s.registry.Managed(order.PaymentMethod); !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrGatewayUnsupported, order.PaymentMethod)
	}
	remoteID := strings.TrimSpace(order.RemoteResourceID)
	if remoteID == "" {
		return nil, "", ErrRemoteResourceMissing
	}
	if mollie.KindOf(remoteID) == "" {
		return nil, "", ErrRemoteIDInvalid
	}
	return order, remoteID, nil
}

func (s *OrderActionService) addNote(orderID uint, content string) {
	if err := s.orders.AddNote(orderID, constants.NoteSourceRemoteAction, content); err != nil {
		reconcileLogger("order_id", orderID).Errorw("order_action_note_failed", "error", err)
	}
}

func normalizeLineIDs(lineIDs []string) []string {
	seen := make(map[string]struct{}, len(lineIDs))
	result := make([]string, 0, len(lineIDs))
	for _, id := range lineIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
