package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/logger"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/payment/mollie"
	"github.com/payrecon/internal/repository"

	"go.uber.org/zap"
)

// 对账结果
const (
	ReconcileOutcomeApplied        = "applied"
	ReconcileOutcomeUnchanged      = "unchanged"
	ReconcileOutcomeTerminal       = "terminal_skipped"
	ReconcileOutcomeOrderNotFound  = "order_not_found"
	ReconcileOutcomeInvalidID      = "invalid_id"
	ReconcileOutcomeRemoteFailed   = "remote_failed"
	ReconcileOutcomeUpdateFailed   = "update_failed"
	ReconcileOutcomeLookupFailed   = "lookup_failed"
	ReconcileOutcomeNoRemoteID     = "no_remote_id"
	ReconcileOutcomeMismatchedKind = "resource_mismatch"
)

// 对账入口
const (
	reconcileEntryWebhook = "webhook"
	reconcileEntryReturn  = "return"
	reconcileEntryManual  = "manual"
)

// RemoteClient 远端支付服务客户端
type RemoteClient interface {
	Get(ctx context.Context, resourceID string) (*mollie.Resource, error)
	Cancel(ctx context.Context, resourceID string) error
	ShipAll(ctx context.Context, resourceID string) error
	Refund(ctx context.Context, resourceID string, input mollie.RefundInput) error
	CancelLines(ctx context.Context, resourceID string, lineIDs []string) error
}

// ReconcileService 对账引擎：处理 webhook 通知与浏览器回跳
type ReconcileService struct {
	orderRepo         repository.OrderRepository
	ledgerRepo        repository.RemoteLineLedgerRepository
	orders            *OrderService
	registry          *GatewayRegistry
	remote            RemoteClient
	bus               *EventBus
	metrics           Metrics
	reconcileOnReturn bool
}

// ReconcileOptions 对账引擎选项
type ReconcileOptions struct {
	ReconcileOnReturn bool
	Metrics           Metrics
}

// NewReconcileService 创建对账引擎
func NewReconcileService(orderRepo repository.OrderRepository, ledgerRepo repository.RemoteLineLedgerRepository, orders *OrderService, registry *GatewayRegistry, remote RemoteClient, bus *EventBus, opts ReconcileOptions) *ReconcileService {
	return &ReconcileService{
		orderRepo:         orderRepo,
		ledgerRepo:        ledgerRepo,
		orders:            orders,
		registry:          registry,
		remote:            remote,
		bus:               bus,
		metrics:           metricsOrNoop(opts.Metrics),
		reconcileOnReturn: opts.ReconcileOnReturn,
	}
}

// ReconcileResult 单次对账结果
type ReconcileResult struct {
	OrderID        uint         `json:"order_id"`
	RemoteID       string       `json:"remote_id"`
	RemoteStatus   string       `json:"remote_status,omitempty"`
	Intent         StatusIntent `json:"intent"`
	FromStatus     string       `json:"from_status,omitempty"`
	ToStatus       string       `json:"to_status,omitempty"`
	Changed        bool         `json:"changed"`
	RefundedLines  []string     `json:"refunded_lines,omitempty"`
	CancelledLines []string     `json:"cancelled_lines,omitempty"`
	Outcome        string       `json:"outcome"`
}

// ReturnInput 浏览器回跳输入
type ReturnInput struct {
	OrderID  string
	OrderKey string
}

// ReturnResult 浏览器回跳结果
type ReturnResult struct {
	Order       *models.Order
	RedirectURL string
}

func reconcileLogger(kv ...interface{}) *zap.SugaredLogger {
	return logger.Named("reconcile", kv...)
}

// HandleWebhook 处理远端通知：只信任资源ID，重新读取远端状态后幂等应用。
// 远端调用失败仅记录日志，不向调用方返回错误。
func (s *ReconcileService) HandleWebhook(ctx context.Context, remoteID string) (*ReconcileResult, error) {
	remoteID = strings.TrimSpace(remoteID)
	result := &ReconcileResult{RemoteID: remoteID}
	if mollie.KindOf(remoteID) == "" {
		result.Outcome = ReconcileOutcomeInvalidID
		s.metrics.ObserveReconcile(reconcileEntryWebhook, result.Outcome)
		reconcileLogger("remote_id", remoteID).Warnw("reconcile_webhook_invalid_remote_id")
		return result, ErrRemoteIDInvalid
	}

	order, err := s.orderRepo.GetByRemoteResourceID(remoteID)
	if err != nil {
		result.Outcome = ReconcileOutcomeLookupFailed
		s.metrics.ObserveReconcile(reconcileEntryWebhook, result.Outcome)
		reconcileLogger("remote_id", remoteID).Errorw("reconcile_webhook_order_lookup_failed", "error", err)
		return result, nil
	}
	if order == nil {
		result.Outcome = ReconcileOutcomeOrderNotFound
		s.metrics.ObserveReconcile(reconcileEntryWebhook, result.Outcome)
		reconcileLogger("remote_id", remoteID).Warnw("reconcile_webhook_order_not_found")
		return result, nil
	}

	result = s.reconcileOrder(ctx, order, reconcileEntryWebhook)
	return result, nil
}

// ReconcileOrder 手动触发指定订单的对账
func (s *ReconcileService) ReconcileOrder(ctx context.Context, orderID uint) (*ReconcileResult, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(order.RemoteResourceID) == "" {
		return &ReconcileResult{OrderID: order.ID, Outcome: ReconcileOutcomeNoRemoteID}, ErrRemoteResourceMissing
	}
	return s.reconcileOrder(ctx, order, reconcileEntryManual), nil
}

// HandleReturn 处理浏览器回跳：解析订单、校验访问密钥与支付处理器，返回落地页地址
func (s *ReconcileService) HandleReturn(ctx context.Context, input ReturnInput) (*ReturnResult, error) {
	order, err := s.resolveReturnOrder(input)
	if err != nil {
		s.metrics.ObserveReconcile(reconcileEntryReturn, returnOutcome(err))
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(order.OrderKey), []byte(strings.TrimSpace(input.OrderKey))) != 1 {
		reconcileLogger("order_id", order.ID).Warnw("reconcile_return_key_mismatch")
		s.metrics.ObserveReconcile(reconcileEntryReturn, returnOutcome(ErrOrderKeyInvalid))
		return nil, ErrOrderKeyInvalid
	}
	gateway, ok := s.registry.Lookup(order.PaymentMethod)
	if !ok {
		s.metrics.ObserveReconcile(reconcileEntryReturn, returnOutcome(ErrGatewayUnsupported))
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnsupported, order.PaymentMethod)
	}
	redirector, ok := gateway.(ReturnRedirector)
	if !ok {
		s.metrics.ObserveReconcile(reconcileEntryReturn, returnOutcome(ErrGatewayUnsupported))
		return nil, fmt.Errorf("%w: %s has no return handler", ErrGatewayUnsupported, order.PaymentMethod)
	}

	if s.reconcileOnReturn && strings.TrimSpace(order.RemoteResourceID) != "" {
		reconciled := s.reconcileOrder(ctx, order, reconcileEntryReturn)
		if reconciled.Changed {
			if fresh, err := s.orderRepo.GetByID(order.ID); err == nil && fresh != nil {
				order = fresh
			}
		}
	} else {
		s.metrics.ObserveReconcile(reconcileEntryReturn, ReconcileOutcomeUnchanged)
	}

	redirectURL, err := redirector.ReturnRedirectURL(order)
	if err != nil {
		return nil, err
	}
	return &ReturnResult{Order: order, RedirectURL: redirectURL}, nil
}

func (s *ReconcileService) resolveReturnOrder(input ReturnInput) (*models.Order, error) {
	var order *models.Order
	if id, err := strconv.ParseUint(strings.TrimSpace(input.OrderID), 10, 64); err == nil && id > 0 {
		found, err := s.orderRepo.GetByID(uint(id))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
		}
		order = found
	}
	if order == nil {
		found, err := s.orderRepo.GetByOrderKey(input.OrderKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
		}
		order = found
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// reconcileOrder 对账核心：读取远端真值，映射并应用状态，检测行项目变化
func (s *ReconcileService) reconcileOrder(ctx context.Context, order *models.Order, entry string) *ReconcileResult {
	result := &ReconcileResult{
		OrderID:    order.ID,
		RemoteID:   order.RemoteResourceID,
		FromStatus: order.Status,
		ToStatus:   order.Status,
	}
	log := reconcileLogger("entry", entry, "order_id", order.ID, "remote_id", order.RemoteResourceID)

	resource, err := s.remote.Get(ctx, order.RemoteResourceID)
	if err != nil {
		result.Outcome = ReconcileOutcomeRemoteFailed
		s.metrics.ObserveRemoteCall("get", remoteCallOutcome(err))
		s.metrics.ObserveReconcile(entry, result.Outcome)
		log.Warnw("reconcile_remote_fetch_failed", "error", fmt.Errorf("%w: %v", ErrRemoteCallFailed, err))
		return result
	}
	s.metrics.ObserveRemoteCall("get", "ok")
	if resource.ID != order.RemoteResourceID {
		result.Outcome = ReconcileOutcomeMismatchedKind
		s.metrics.ObserveReconcile(entry, result.Outcome)
		log.Errorw("reconcile_remote_resource_mismatch", "fetched_id", resource.ID)
		return result
	}
	result.RemoteStatus = resource.Status
	result.Intent = MapRemoteStatus(resource.Kind, resource.Status)

	result.Outcome = s.applyIntent(ctx, order, resource, result)
	result.RefundedLines = s.detectLineChanges(ctx, order, constants.RemoteLineKindRefunded, resource.RefundedLineIDs())
	result.CancelledLines = s.detectLineChanges(ctx, order, constants.RemoteLineKindCancelled, resource.CanceledLineIDs())
	s.metrics.ObserveReconcile(entry, result.Outcome)
	log.Infow("reconcile_completed",
		"remote_status", resource.Status,
		"intent", string(result.Intent),
		"from_status", result.FromStatus,
		"to_status", result.ToStatus,
		"outcome", result.Outcome,
	)
	return result
}

func (s *ReconcileService) applyIntent(ctx context.Context, order *models.Order, resource *mollie.Resource, result *ReconcileResult) string {
	target := result.Intent.TargetStatus()
	if target == "" {
		return ReconcileOutcomeUnchanged
	}
	if result.Intent == IntentMarkCancelled {
		target = s.registry.CancelledStatusFor(order.PaymentMethod)
	}
	if order.Status == target {
		return ReconcileOutcomeUnchanged
	}
	transition, err := s.orders.Transition(ctx, TransitionInput{
		OrderID:  order.ID,
		ToStatus: target,
		Source:   constants.TransitionSourceRemote,
		Note:     fmt.Sprintf(constants.NoteStatusFromRemote, order.Status, target, resource.Status, resource.ID),
	})
	if err != nil {
		if errors.Is(err, ErrOrderStatusTerminal) {
			reconcileLogger("order_id", order.ID, "remote_id", resource.ID).Infow("reconcile_terminal_order_skipped",
				"local_status", order.Status,
				"remote_status", resource.Status,
			)
			return ReconcileOutcomeTerminal
		}
		reconcileLogger("order_id", order.ID, "remote_id", resource.ID).Errorw("reconcile_status_update_failed", "error", err)
		return ReconcileOutcomeUpdateFailed
	}
	result.FromStatus = transition.FromStatus
	result.ToStatus = transition.Order.Status
	result.Changed = transition.Changed
	if !transition.Changed {
		return ReconcileOutcomeUnchanged
	}
	return ReconcileOutcomeApplied
}

// detectLineChanges 对比账本，发布尚未记录过的行项目事件
func (s *ReconcileService) detectLineChanges(ctx context.Context, order *models.Order, kind string, lineIDs []string) []string {
	if len(lineIDs) == 0 {
		return nil
	}
	recorded, err := s.ledgerRepo.ListRecorded(order.ID, kind)
	if err != nil {
		reconcileLogger("order_id", order.ID, "remote_id", order.RemoteResourceID).Errorw("reconcile_ledger_read_failed", "kind", kind, "error", err)
		return nil
	}
	fresh := make([]string, 0, len(lineIDs))
	for _, id := range lineIDs {
		if _, ok := recorded[id]; ok {
			continue
		}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil
	}
	event := RemoteLinesEvent{OrderID: order.ID, RemoteResourceID: order.RemoteResourceID, LineIDs: fresh}
	topic := s.bus.RemoteRefunded
	if kind == constants.RemoteLineKindCancelled {
		topic = s.bus.RemoteLinesCancelled
	}
	if err := topic.Publish(ctx, event); err != nil {
		reconcileLogger("order_id", order.ID, "remote_id", order.RemoteResourceID).Warnw("reconcile_line_event_failed", "kind", kind, "error", err)
	}
	return fresh
}

func returnOutcome(err error) string {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrOrderKeyInvalid):
		return "unauthorized"
	case errors.Is(err, ErrGatewayUnsupported):
		return "unsupported_gateway"
	default:
		return "error"
	}
}

func remoteCallOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, mollie.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, mollie.ErrResourceNotFound):
		return "not_found"
	case errors.Is(err, mollie.ErrRequestRejected):
		return "rejected"
	default:
		return "failed"
	}
}
