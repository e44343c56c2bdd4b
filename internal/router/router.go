package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/payrecon/internal/cache"
	"github.com/payrecon/internal/config"
	adminhandlers "github.com/payrecon/internal/http/handlers/admin"
	publichandlers "github.com/payrecon/internal/http/handlers/public"
	"github.com/payrecon/internal/http/response"
	"github.com/payrecon/internal/logger"
	"github.com/payrecon/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "pr"
	}
	redisClient := cache.Client()
	publicRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payments", redisPrefix),
		WindowSeconds: cfg.Security.PublicRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.PublicRateLimit.MaxRequests,
		MessageKey:    "error.rate_limited",
	}
	webhookParam := strings.TrimSpace(cfg.Reconcile.WebhookResourceParam)
	if webhookParam == "" {
		webhookParam = "id"
	}
	// 远端通知无论是否超限都应答 200
	webhookRule := publicRule
	webhookRule.Prefix = fmt.Sprintf("%s:rate:webhook", redisPrefix)
	webhookRule.FailOpen = true
	webhookRule.OnLimited = AcknowledgeThrottledWebhook

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(MetricsMiddleware(c.Metrics))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 浏览器回跳与远端通知（无需鉴权）
		payments := apiV1.Group("/payments")
		{
			payments.GET("/return", RateLimitMiddleware(redisClient, publicRule, KeyByIP), publicHandler.PaymentReturn)
			payments.POST("/webhook", RateLimitMiddleware(redisClient, webhookRule, KeyByIPAndParam(webhookParam)), publicHandler.PaymentWebhook)
		}

		// 运营后台接口
		admin := apiV1.Group("/admin")
		authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey))
		{
			// 订单
			authorized.GET("/orders", adminHandler.AdminListOrders)
			authorized.POST("/orders", adminHandler.AdminRegisterOrder)
			authorized.GET("/orders/:id", adminHandler.AdminGetOrder)
			authorized.PATCH("/orders/:id", adminHandler.AdminUpdateOrderStatus)
			authorized.PUT("/orders/:id/remote", adminHandler.AdminAttachRemoteResource)
			authorized.GET("/orders/:id/notes", adminHandler.AdminListOrderNotes)
			authorized.POST("/orders/:id/cancel-unpaid", adminHandler.AdminCancelUnpaid)

			// 远端动作
			authorized.POST("/orders/:id/reconcile", adminHandler.AdminReconcileOrder)
			authorized.POST("/orders/:id/refund", adminHandler.AdminRefundOrder)
			authorized.POST("/orders/:id/cancel-lines", adminHandler.AdminCancelOrderLines)

			// 过期扫描
			authorized.POST("/sweep/run", adminHandler.AdminRunSweep)
			authorized.GET("/sweep/state", adminHandler.AdminGetSweepState)

			authorized.GET("/routes", func(ctx *gin.Context) {
				response.Success(ctx, buildAdminRouteCatalog(r))
			})
		}
	}

	if c.Metrics != nil {
		r.GET("/metrics", gin.WrapH(c.Metrics.Handler()))
	}

	// 健康检查
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type adminRouteCatalogItem struct {
	Module string `json:"module"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

func buildAdminRouteCatalog(engine *gin.Engine) []adminRouteCatalogItem {
	if engine == nil {
		return []adminRouteCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminRouteCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		key := method + ":" + item.Path
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, adminRouteCatalogItem{
			Module: deriveAdminRouteModule(item.Path),
			Method: method,
			Path:   item.Path,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Path == items[j].Path {
				return items[i].Method < items[j].Method
			}
			return items[i].Path < items[j].Path
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminRouteModule(path string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(path), "/api/v1/")
	normalized = strings.TrimPrefix(normalized, "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	return segments[1]
}
