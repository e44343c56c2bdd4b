package admin

import "github.com/payrecon/internal/provider"

// Handler 运营后台接口处理器入口
// 说明：该处理器仅用于运营后台 API，需 JWT 鉴权。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
