package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/payrecon/internal/logger"
	"github.com/payrecon/internal/service"
)

// TimerScheduler 未启用任务队列时的进程内扫描调度
type TimerScheduler struct {
	mu     sync.Mutex
	seq    uint64
	timers map[string]*time.Timer
	base   context.Context
	run    func(ctx context.Context)
}

// NewTimerScheduler 创建进程内调度器，run 在定时器到期时执行
func NewTimerScheduler(base context.Context, run func(ctx context.Context)) *TimerScheduler {
	if base == nil {
		base = context.Background()
	}
	return &TimerScheduler{
		timers: make(map[string]*time.Timer),
		base:   base,
		run:    run,
	}
}

// ScheduleSweep 延迟执行一次扫描，返回定时器ID
func (t *TimerScheduler) ScheduleSweep(_ context.Context, delay time.Duration) (string, error) {
	if delay < 0 {
		delay = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	id := fmt.Sprintf("timer:%d", t.seq)
	t.timers[id] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		if t.base.Err() != nil || t.run == nil {
			return
		}
		t.run(t.base)
	})
	return id, nil
}

// CancelSweep 停止尚未触发的定时器
func (t *TimerScheduler) CancelSweep(_ context.Context, taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[taskID]; ok {
		timer.Stop()
		delete(t.timers, taskID)
	}
	return nil
}

// Pending 返回尚未触发的定时器数量
func (t *TimerScheduler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// StopAll 停止全部定时器
func (t *TimerScheduler) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// TimerService 队列关闭时以进程内定时器驱动过期扫描
type TimerService struct {
	expiry    *service.ExpiryService
	scheduler *TimerScheduler
	done      chan struct{}
}

// NewTimerService 创建定时扫描服务
func NewTimerService(expiry *service.ExpiryService) *TimerService {
	return &TimerService{expiry: expiry, done: make(chan struct{})}
}

// Name 服务名称
func (s *TimerService) Name() string {
	return "sweep-timer"
}

// Start 注入进程内调度器并立即排入一次扫描，阻塞至 ctx 结束
func (s *TimerService) Start(ctx context.Context) error {
	if s.expiry == nil {
		<-ctx.Done()
		return nil
	}
	s.scheduler = NewTimerScheduler(ctx, func(runCtx context.Context) {
		if _, err := s.expiry.Sweep(runCtx); err != nil {
			logger.Warnw("sweep_timer_run_failed", "error", err)
		}
	})
	s.expiry.SetScheduler(s.scheduler)
	if _, err := s.expiry.Reschedule(ctx, 0); err != nil {
		logger.Warnw("sweep_timer_boot_schedule_failed", "error", err)
	}
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

// Stop 停止全部定时器
func (s *TimerService) Stop(_ context.Context) error {
	if s.scheduler != nil {
		s.scheduler.StopAll()
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}
