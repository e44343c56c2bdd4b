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
)

const (
	defaultSweepBatchSize = 100
	defaultSweepLockTTL   = 5 * time.Minute
	maxSweepBatches       = 50
)

// SweepScheduler 过期扫描任务调度
type SweepScheduler interface {
	ScheduleSweep(ctx context.Context, delay time.Duration) (string, error)
	CancelSweep(ctx context.Context, taskID string) error
}

// SweepLocker 多实例下的扫描互斥
type SweepLocker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}

// ExpiryOptions 过期扫描选项
type ExpiryOptions struct {
	Scheduler     SweepScheduler
	Locker        SweepLocker
	Metrics       Metrics
	LockTTL       time.Duration
	FallbackDelay time.Duration
	BatchSize     int
}

// ExpiryService 过期未支付订单扫描与自调度
type ExpiryService struct {
	orderRepo repository.OrderRepository
	stateRepo repository.SweepStateRepository
	orders    *OrderService
	gateways  []ExpiryGateway
	scheduler SweepScheduler
	locker    SweepLocker
	metrics   Metrics
	opts      ExpiryOptions
	now       func() time.Time
}

// NewExpiryService 创建过期扫描服务，网关列表在构造时显式注入
func NewExpiryService(orderRepo repository.OrderRepository, stateRepo repository.SweepStateRepository, orders *OrderService, gateways []ExpiryGateway, opts ExpiryOptions) *ExpiryService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultSweepLockTTL
	}
	active := make([]ExpiryGateway, 0, len(gateways))
	for _, gw := range gateways {
		if gw.Due > 0 && strings.TrimSpace(gw.ID) != "" {
			active = append(active, gw)
		}
	}
	return &ExpiryService{
		orderRepo: orderRepo,
		stateRepo: stateRepo,
		orders:    orders,
		gateways:  active,
		scheduler: opts.Scheduler,
		locker:    opts.Locker,
		metrics:   metricsOrNoop(opts.Metrics),
		opts:      opts,
		now:       time.Now,
	}
}

// SetScheduler 替换调度器（未启用任务队列时使用进程内定时器）
func (s *ExpiryService) SetScheduler(scheduler SweepScheduler) {
	s.scheduler = scheduler
}

// SweepResult 单次扫描结果
type SweepResult struct {
	Skipped    bool           `json:"skipped"`
	Cancelled  []uint         `json:"cancelled"`
	Failed     []uint         `json:"failed"`
	PerGateway map[string]int `json:"per_gateway"`
	NextDelay  time.Duration  `json:"next_delay"`
	NextRunAt  *time.Time     `json:"next_run_at,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
}

// Sweep 取消超过截止时长仍未支付的订单，然后按最小截止时长重新调度下一次扫描
func (s *ExpiryService) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{PerGateway: make(map[string]int)}
	log := reconcileLogger("sweep", constants.ExpirySweepName)

	if s.locker != nil {
		unlock, acquired, err := s.locker.TryLock(ctx, constants.ExpirySweepName, s.opts.LockTTL)
		switch {
		case err != nil:
			log.Warnw("expiry_sweep_lock_unavailable", "error", err)
		case !acquired:
			log.Infow("expiry_sweep_lock_held_elsewhere")
			result.Skipped = true
			return result, nil
		default:
			defer func() {
				if err := unlock(context.Background()); err != nil {
					log.Warnw("expiry_sweep_unlock_failed", "error", err)
				}
			}()
		}
	}

	now := s.now()
	for _, gw := range s.gateways {
		cancelled, failed := s.sweepGateway(ctx, gw, now)
		result.Cancelled = append(result.Cancelled, cancelled...)
		result.Failed = append(result.Failed, failed...)
		result.PerGateway[gw.ID] = len(cancelled)
	}

	delay, err := s.nextDelay()
	if err != nil {
		log.Errorw("expiry_sweep_next_delay_failed", "error", err)
		return result, err
	}
	result.NextDelay = delay
	if err := s.reschedule(ctx, now, delay, result); err != nil {
		return result, err
	}
	s.metrics.ObserveSweep(len(result.Cancelled), delay)
	log.Infow("expiry_sweep_completed",
		"cancelled", len(result.Cancelled),
		"failed", len(result.Failed),
		"next_delay", delay,
		"task_id", result.TaskID,
	)
	return result, nil
}

func (s *ExpiryService) sweepGateway(ctx context.Context, gw ExpiryGateway, now time.Time) ([]uint, []uint) {
	cutoff := now.Add(-gw.Due)
	var cancelled, failed []uint
	for batch := 0; batch < maxSweepBatches; batch++ {
		orders, err := s.orderRepo.ListStalePending(repository.StalePendingFilter{
			Status:         constants.OrderStatusPending,
			PaymentMethod:  gw.ID,
			ModifiedBefore: cutoff,
			Limit:          s.opts.BatchSize,
		})
		if err != nil {
			reconcileLogger("gateway", gw.ID).Errorw("expiry_sweep_query_failed", "error", err)
			return cancelled, failed
		}
		batchFailed := false
		for i := range orders {
			switch s.expireOrder(ctx, &orders[i]) {
			case expireCancelled:
				cancelled = append(cancelled, orders[i].ID)
			case expireFailed:
				failed = append(failed, orders[i].ID)
				batchFailed = true
			}
		}
		// 失败的订单仍会被下一批查询命中，留给下一次扫描
		if batchFailed || len(orders) < s.opts.BatchSize {
			return cancelled, failed
		}
	}
	return cancelled, failed
}

type expireOutcome int

const (
	expireCancelled expireOutcome = iota
	expireSkipped
	expireFailed
)

// expireOrder 与手动取消走同一流转路径，强制写入 cancelled 而非网关配置的取消状态；
// 查询后状态已被其他调用方改变（如通知已确认支付）时跳过
func (s *ExpiryService) expireOrder(ctx context.Context, order *models.Order) expireOutcome {
	log := reconcileLogger("order_id", order.ID, "remote_id", order.RemoteResourceID)
	_, err := s.orders.Transition(ctx, TransitionInput{
		OrderID:    order.ID,
		FromStatus: constants.OrderStatusPending,
		ToStatus:   constants.OrderStatusCancelled,
		Source:     constants.TransitionSourceExpiry,
		Note:       constants.NoteExpiryCancelled,
	})
	switch {
	case err == nil:
		return expireCancelled
	case errors.Is(err, ErrOrderStatusConflict):
		log.Infow("expiry_sweep_order_no_longer_pending")
		return expireSkipped
	default:
		log.Warnw("expiry_sweep_cancel_failed", "error", err)
		return expireFailed
	}
}

// nextDelay 取当前存在待支付订单的网关中的最小截止时长；都没有待支付订单时取所有网关的最小值
func (s *ExpiryService) nextDelay() (time.Duration, error) {
	var withPending time.Duration
	for _, gw := range s.gateways {
		count, err := s.orderRepo.CountByStatusAndMethod(constants.OrderStatusPending, gw.ID)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
		}
		if count == 0 {
			continue
		}
		if withPending == 0 || gw.Due < withPending {
			withPending = gw.Due
		}
	}
	if withPending > 0 {
		return withPending, nil
	}
	var overall time.Duration
	for _, gw := range s.gateways {
		if overall == 0 || gw.Due < overall {
			overall = gw.Due
		}
	}
	if overall > 0 {
		return overall, nil
	}
	return s.opts.FallbackDelay, nil
}

// Reschedule 清除已排队的扫描并按给定延迟重新排队
func (s *ExpiryService) Reschedule(ctx context.Context, delay time.Duration) (string, error) {
	result := &SweepResult{NextDelay: delay}
	if err := s.reschedule(ctx, time.Time{}, delay, result); err != nil {
		return "", err
	}
	return result.TaskID, nil
}

func (s *ExpiryService) reschedule(ctx context.Context, ranAt time.Time, delay time.Duration, result *SweepResult) error {
	log := reconcileLogger("sweep", constants.ExpirySweepName)
	state, err := s.stateRepo.Get(constants.ExpirySweepName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSweepScheduleFailed, err)
	}
	if state == nil {
		state = &models.SweepState{Name: constants.ExpirySweepName}
	}

	if s.scheduler != nil && state.TaskID != "" {
		if err := s.scheduler.CancelSweep(ctx, state.TaskID); err != nil {
			log.Debugw("expiry_sweep_previous_task_not_cleared", "task_id", state.TaskID, "error", err)
		}
	}
	state.TaskID = ""
	state.NextRunAt = nil

	if s.scheduler != nil && (delay > 0 || ranAt.IsZero()) {
		taskID, err := s.scheduler.ScheduleSweep(ctx, delay)
		if err != nil {
			log.Errorw("expiry_sweep_schedule_failed", "delay", delay, "error", err)
			return errors.Join(ErrSweepScheduleFailed, err)
		}
		nextRunAt := s.now().Add(delay)
		state.TaskID = taskID
		state.NextRunAt = &nextRunAt
		result.TaskID = taskID
		result.NextRunAt = &nextRunAt
	}

	if !ranAt.IsZero() {
		lastRunAt := ranAt
		state.LastRunAt = &lastRunAt
		state.LastResult = models.JSON{
			"cancelled":   len(result.Cancelled),
			"failed":      len(result.Failed),
			"per_gateway": result.PerGateway,
			"next_delay":  delay.String(),
		}
	}
	state.UpdatedAt = s.now()
	if err := s.stateRepo.Save(state); err != nil {
		return fmt.Errorf("%w: %v", ErrSweepScheduleFailed, err)
	}
	return nil
}

// State 返回当前调度状态
func (s *ExpiryService) State() (*models.SweepState, error) {
	state, err := s.stateRepo.Get(constants.ExpirySweepName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	return state, nil
}

// AllowHostUnpaidCancel 远端网关配置了截止时长且开启自动取消时，宿主平台的通用未支付取消被抑制，交由过期扫描处理
func (s *ExpiryService) AllowHostUnpaidCancel(paymentMethod string) bool {
	paymentMethod = strings.TrimSpace(paymentMethod)
	for _, gw := range s.gateways {
		if gw.ID == paymentMethod && gw.AutoCancelOnExpiry {
			return false
		}
	}
	return true
}

// CancelUnpaidResult 宿主未支付取消请求结果
type CancelUnpaidResult struct {
	Order     *models.Order `json:"order"`
	Cancelled bool          `json:"cancelled"`
	Deferred  bool          `json:"deferred"`
}

// CancelUnpaid 宿主平台请求取消未支付订单
func (s *ExpiryService) CancelUnpaid(ctx context.Context, orderID uint) (*CancelUnpaidResult, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != constants.OrderStatusPending {
		return &CancelUnpaidResult{Order: order}, nil
	}
	if !s.AllowHostUnpaidCancel(order.PaymentMethod) {
		reconcileLogger("order_id", order.ID).Infow("expiry_host_cancel_deferred", "payment_method", order.PaymentMethod)
		return &CancelUnpaidResult{Order: order, Deferred: true}, nil
	}
	transition, err := s.orders.Transition(ctx, TransitionInput{
		OrderID:    order.ID,
		FromStatus: constants.OrderStatusPending,
		ToStatus:   constants.OrderStatusCancelled,
		Source:     constants.TransitionSourceHost,
		Note:       constants.NoteExpiryCancelled,
	})
	if errors.Is(err, ErrOrderStatusConflict) && transition != nil {
		return &CancelUnpaidResult{Order: transition.Order}, nil
	}
	if err != nil {
		return nil, err
	}
	return &CancelUnpaidResult{Order: transition.Order, Cancelled: transition.Changed}, nil
}
