package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxStatusTransitionAttempts = 3

// OrderService 本地订单生命周期服务
type OrderService struct {
	orderRepo repository.OrderRepository
	noteRepo  repository.OrderNoteRepository
	bus       *EventBus
	now       func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, noteRepo repository.OrderNoteRepository, bus *EventBus) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		noteRepo:  noteRepo,
		bus:       bus,
		now:       time.Now,
	}
}

// RegisterOrderInput 结账流程登记订单输入
type RegisterOrderInput struct {
	OrderKey      string
	PaymentMethod string
	Currency      string
	TotalAmount   decimal.Decimal
}

// TransitionInput 订单状态流转输入
type TransitionInput struct {
	OrderID    uint
	FromStatus string // 非空时仅当当前状态等于该值才流转
	ToStatus   string
	Source     string
	Note       string
}

// TransitionResult 订单状态流转结果
type TransitionResult struct {
	Order      *models.Order
	FromStatus string
	Changed    bool
}

// Register 登记新订单，初始状态为 pending 且未绑定远端资源
func (s *OrderService) Register(input RegisterOrderInput) (*models.Order, error) {
	key := strings.TrimSpace(input.OrderKey)
	method := strings.TrimSpace(input.PaymentMethod)
	if key == "" || method == "" {
		return nil, fmt.Errorf("%w: order key and payment method are required", ErrOrderCreateFailed)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "EUR"
	}
	order := &models.Order{
		OrderKey:      key,
		Status:        constants.OrderStatusPending,
		PaymentMethod: method,
		Currency:      currency,
		TotalAmount:   models.NewMoneyFromDecimal(input.TotalAmount),
	}
	if err := s.orderRepo.Create(order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderCreateFailed, err)
	}
	return order, nil
}

// Get 获取订单
func (s *OrderService) Get(orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// List 管理端订单列表
func (s *OrderService) List(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	orders, total, err := s.orderRepo.ListAdmin(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	return orders, total, nil
}

// AttachRemoteResource 绑定远端资源ID，绑定后不可更换
func (s *OrderService) AttachRemoteResource(orderID uint, remoteID string) (*models.Order, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return nil, ErrRemoteIDInvalid
	}
	order, err := s.Get(orderID)
	if err != nil {
		return nil, err
	}
	if err := s.orderRepo.AssignRemoteResourceID(order.ID, remoteID); err != nil {
		if errors.Is(err, repository.ErrRemoteResourceIDAssigned) {
			return nil, ErrRemoteIDConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	order.RemoteResourceID = remoteID
	return order, nil
}

// AddNote 追加订单备注
func (s *OrderService) AddNote(orderID uint, source, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	note := &models.OrderNote{
		OrderID:   orderID,
		Source:    source,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.noteRepo.Create(note); err != nil {
		return fmt.Errorf("%w: %v", ErrNoteRecordFailed, err)
	}
	return nil
}

// ListNotes 查询订单备注
func (s *OrderService) ListNotes(filter repository.OrderNoteListFilter) ([]models.OrderNote, int64, error) {
	notes, total, err := s.noteRepo.List(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	return notes, total, nil
}

// Transition 变更订单状态并追加备注，提交后发布状态变更事件。
// 目标状态与当前状态一致时不产生任何写入；自动来源不会改变终态订单；
// 指定 FromStatus 时当前状态不符返回 ErrOrderStatusConflict，不重试。
func (s *OrderService) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	target := normalizeOrderStatus(input.ToStatus)
	if !IsKnownOrderStatus(target) {
		return nil, ErrOrderStatusInvalid
	}
	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = constants.TransitionSourceManual
	}
	expected := strings.TrimSpace(input.FromStatus)
	if expected != "" {
		expected = normalizeOrderStatus(expected)
	}

	for attempt := 0; attempt < maxStatusTransitionAttempts; attempt++ {
		order, err := s.Get(input.OrderID)
		if err != nil {
			return nil, err
		}
		from := order.Status
		if expected != "" && from != expected {
			return &TransitionResult{Order: order, FromStatus: from}, ErrOrderStatusConflict
		}
		if from == target {
			return &TransitionResult{Order: order, FromStatus: from, Changed: false}, nil
		}
		if isAutomaticSource(source) && IsTerminalOrderStatus(from) {
			return &TransitionResult{Order: order, FromStatus: from}, ErrOrderStatusTerminal
		}

		now := s.now()
		updated := false
		err = s.orderRepo.Transaction(func(tx *gorm.DB) error {
			ok, err := s.orderRepo.WithTx(tx).CompareAndUpdateStatus(order.ID, from, target, map[string]interface{}{
				"updated_at": now,
			})
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			updated = true
			content := strings.TrimSpace(input.Note)
			if content == "" {
				return nil
			}
			return s.noteRepo.WithTx(tx).Create(&models.OrderNote{
				OrderID:   order.ID,
				Source:    source,
				Content:   content,
				CreatedAt: now,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
		}
		if !updated {
			// 其他调用方已修改状态，重新读取后再判定
			continue
		}

		order.Status = target
		order.UpdatedAt = now
		if s.bus != nil {
			_ = s.bus.OrderStatusChanged.Publish(ctx, OrderStatusChangedEvent{
				Order:      *order,
				FromStatus: from,
				ToStatus:   target,
				Source:     source,
			})
		}
		return &TransitionResult{Order: order, FromStatus: from, Changed: true}, nil
	}
	return nil, ErrOrderStatusConflict
}
