package service

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/models"
)

// Gateway 已登记的支付方式处理器
type Gateway interface {
	ID() string
	Config() config.GatewayConfig
}

// ReturnRedirector 具备浏览器回跳能力的处理器
type ReturnRedirector interface {
	ReturnRedirectURL(order *models.Order) (string, error)
}

// RedirectOptions 回跳地址参数
type RedirectOptions struct {
	TrackingParam string
	TrackingValue string
	PendingMarker string
}

type hostGateway struct {
	cfg config.GatewayConfig
}

func (g *hostGateway) ID() string                   { return g.cfg.ID }
func (g *hostGateway) Config() config.GatewayConfig { return g.cfg }

type pspGateway struct {
	cfg  config.GatewayConfig
	opts RedirectOptions
}

func (g *pspGateway) ID() string                   { return g.cfg.ID }
func (g *pspGateway) Config() config.GatewayConfig { return g.cfg }

// ReturnRedirectURL 根据订单当前状态选择落地页，并追加订单标识与跟踪参数
func (g *pspGateway) ReturnRedirectURL(order *models.Order) (string, error) {
	if order == nil {
		return "", ErrOrderNotFound
	}
	target := strings.TrimSpace(g.cfg.ReturnURL)
	switch order.Status {
	case constants.OrderStatusCancelled, constants.OrderStatusFailed:
		if failure := strings.TrimSpace(g.cfg.FailureURL); failure != "" {
			target = failure
		}
	}
	if target == "" {
		return "", fmt.Errorf("%w: gateway %s has no return url", ErrGatewayUnsupported, g.cfg.ID)
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: gateway %s return url invalid", ErrGatewayUnsupported, g.cfg.ID)
	}
	query := parsed.Query()
	query.Set("order_id", strconv.FormatUint(uint64(order.ID), 10))
	query.Set("key", order.OrderKey)
	if order.Status == constants.OrderStatusPending && g.opts.PendingMarker != "" {
		query.Set(g.opts.PendingMarker, "1")
	}
	if g.opts.TrackingParam != "" {
		query.Set(g.opts.TrackingParam, g.opts.TrackingValue)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// GatewayRegistry 显式注入的网关配置表
type GatewayRegistry struct {
	gateways      map[string]Gateway
	ordered       []config.GatewayConfig
	disableCancel bool
	disableShip   bool
}

// GatewayRegistryOptions 注册表全局开关
type GatewayRegistryOptions struct {
	DisableRemoteCancel bool
	DisableRemoteShip   bool
	Redirect            RedirectOptions
}

// NewGatewayRegistry 根据配置列表构建注册表
func NewGatewayRegistry(gateways []config.GatewayConfig, opts GatewayRegistryOptions) *GatewayRegistry {
	if opts.Redirect.TrackingValue == "" {
		opts.Redirect.TrackingValue = "1"
	}
	registry := &GatewayRegistry{
		gateways:      make(map[string]Gateway, len(gateways)),
		ordered:       make([]config.GatewayConfig, 0, len(gateways)),
		disableCancel: opts.DisableRemoteCancel,
		disableShip:   opts.DisableRemoteShip,
	}
	for _, gw := range gateways {
		id := strings.TrimSpace(gw.ID)
		if id == "" {
			continue
		}
		gw.ID = id
		if gw.IsPSP() {
			registry.gateways[id] = &pspGateway{cfg: gw, opts: opts.Redirect}
		} else {
			registry.gateways[id] = &hostGateway{cfg: gw}
		}
		registry.ordered = append(registry.ordered, gw)
	}
	return registry
}

// Lookup 查找支付方式处理器
func (r *GatewayRegistry) Lookup(paymentMethod string) (Gateway, bool) {
	if r == nil {
		return nil, false
	}
	gw, ok := r.gateways[strings.TrimSpace(paymentMethod)]
	return gw, ok
}

// Managed 返回由远端支付服务处理的网关配置
func (r *GatewayRegistry) Managed(paymentMethod string) (config.GatewayConfig, bool) {
	gw, ok := r.Lookup(paymentMethod)
	if !ok {
		return config.GatewayConfig{}, false
	}
	if _, ok := gw.(ReturnRedirector); !ok {
		return config.GatewayConfig{}, false
	}
	return gw.Config(), true
}

// RemoteCancelDisabled 远端取消是否被全局或网关开关关闭
func (r *GatewayRegistry) RemoteCancelDisabled(paymentMethod string) bool {
	if r.disableCancel {
		return true
	}
	cfg, ok := r.Managed(paymentMethod)
	return ok && cfg.DisableRemoteCancel
}

// RemoteShipDisabled 远端发货是否被全局或网关开关关闭
func (r *GatewayRegistry) RemoteShipDisabled(paymentMethod string) bool {
	if r.disableShip {
		return true
	}
	cfg, ok := r.Managed(paymentMethod)
	return ok && cfg.DisableRemoteShip
}

// CancelledStatusFor 远端取消/过期时应写入的本地状态
func (r *GatewayRegistry) CancelledStatusFor(paymentMethod string) string {
	if cfg, ok := r.Managed(paymentMethod); ok {
		return cfg.ResolveCancelledStatus()
	}
	return constants.OrderStatusCancelled
}

// ExpiryGateways 返回配置了过期时间的远端网关，按过期时长升序
func (r *GatewayRegistry) ExpiryGateways() []ExpiryGateway {
	if r == nil {
		return nil
	}
	result := make([]ExpiryGateway, 0, len(r.ordered))
	for _, gw := range r.ordered {
		if !gw.IsPSP() {
			continue
		}
		due := gw.DueDuration()
		if due <= 0 {
			continue
		}
		result = append(result, ExpiryGateway{ID: gw.ID, Due: due, AutoCancelOnExpiry: gw.AutoCancelOnExpiry})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Due < result[j].Due
	})
	return result
}

// ExpiryGateway 过期扫描使用的网关视图
type ExpiryGateway struct {
	ID                 string
	Due                time.Duration
	AutoCancelOnExpiry bool
}
