package public

import "github.com/payrecon/internal/provider"

// Handler 公开接口处理器入口
// 说明：该处理器仅用于浏览器回跳与远端通知，不做身份认证。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
