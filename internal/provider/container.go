package provider

import (
	"net/http"
	"time"

	"github.com/payrecon/internal/cache"
	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/logger"
	"github.com/payrecon/internal/metrics"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/payment/mollie"
	"github.com/payrecon/internal/queue"
	"github.com/payrecon/internal/repository"
	"github.com/payrecon/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Metrics     *metrics.Metrics
	PSPClient   *mollie.Client
	EventBus    *service.EventBus
	Gateways    *service.GatewayRegistry

	// Repositories
	OrderRepo      repository.OrderRepository
	OrderNoteRepo  repository.OrderNoteRepository
	LineLedgerRepo repository.RemoteLineLedgerRepository
	SweepStateRepo repository.SweepStateRepository

	// Services
	OrderService          *service.OrderService
	ReconcileService      *service.ReconcileService
	OrderActionService    *service.OrderActionService
	RemoteLineNoteService *service.RemoteLineNoteService
	ExpiryService         *service.ExpiryService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Metrics:     metrics.New(""),
		EventBus:    service.NewEventBus(),
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化远端客户端
	c.initPSPClient()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OrderRepo = repository.NewOrderRepository(db)
	c.OrderNoteRepo = repository.NewOrderNoteRepository(db)
	c.LineLedgerRepo = repository.NewRemoteLineLedgerRepository(db)
	c.SweepStateRepo = repository.NewSweepStateRepository(db)
}

func (c *Container) initPSPClient() {
	pspCfg := c.Config.PSP
	client, err := mollie.NewClient(mollie.Config{
		BaseURL: pspCfg.BaseURL,
		APIKey:  pspCfg.APIKey,
		Timeout: time.Duration(pspCfg.TimeoutSeconds) * time.Second,
		Breaker: mollie.BreakerConfig{
			MaxRequests:         pspCfg.Breaker.MaxRequests,
			Interval:            time.Duration(pspCfg.Breaker.IntervalSeconds) * time.Second,
			Timeout:             time.Duration(pspCfg.Breaker.TimeoutSeconds) * time.Second,
			ConsecutiveFailures: pspCfg.Breaker.ConsecutiveFailures,
		},
	}, &http.Client{})
	if err != nil {
		logger.Errorw("provider_init_psp_client_failed", "error", err)
		panic(err)
	}
	c.PSPClient = client
}

func (c *Container) initServices() {
	reconcileCfg := c.Config.Reconcile
	c.Gateways = service.NewGatewayRegistry(c.Config.Gateways, service.GatewayRegistryOptions{
		DisableRemoteCancel: reconcileCfg.DisableRemoteCancel,
		DisableRemoteShip:   reconcileCfg.DisableRemoteShip,
		Redirect: service.RedirectOptions{
			TrackingParam: reconcileCfg.TrackingParam,
			TrackingValue: reconcileCfg.TrackingValue,
			PendingMarker: reconcileCfg.PendingLandingMarker,
		},
	})

	c.OrderService = service.NewOrderService(c.OrderRepo, c.OrderNoteRepo, c.EventBus)
	c.ReconcileService = service.NewReconcileService(
		c.OrderRepo,
		c.LineLedgerRepo,
		c.OrderService,
		c.Gateways,
		c.PSPClient,
		c.EventBus,
		service.ReconcileOptions{
			ReconcileOnReturn: reconcileCfg.ReconcileOnReturn,
			Metrics:           c.Metrics,
		},
	)

	// 订阅顺序即投递顺序：先回写远端，再记录行项目备注
	c.OrderActionService = service.NewOrderActionService(c.OrderService, c.Gateways, c.PSPClient, c.EventBus, c.Metrics)
	c.OrderActionService.Subscribe()
	c.RemoteLineNoteService = service.NewRemoteLineNoteService(c.OrderRepo, c.LineLedgerRepo, c.OrderNoteRepo, c.EventBus)
	c.RemoteLineNoteService.Subscribe()

	expiryOpts := service.ExpiryOptions{
		Metrics:       c.Metrics,
		LockTTL:       time.Duration(reconcileCfg.SweepLockTTLSeconds) * time.Second,
		FallbackDelay: time.Duration(reconcileCfg.SweepFallbackMinutes) * time.Minute,
		BatchSize:     reconcileCfg.SweepBatchSize,
	}
	if c.QueueClient != nil && c.QueueClient.Enabled() {
		expiryOpts.Scheduler = c.QueueClient
	}
	if locker := cache.NewSweepLocker(); locker != nil {
		expiryOpts.Locker = locker
	}
	c.ExpiryService = service.NewExpiryService(c.OrderRepo, c.SweepStateRepo, c.OrderService, c.Gateways.ExpiryGateways(), expiryOpts)
}

// Close 释放外部连接
func (c *Container) Close() {
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_client_failed", "error", err)
		}
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
