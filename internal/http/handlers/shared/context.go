package shared

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// OperatorContextKey 已认证运营身份在上下文中的键
const OperatorContextKey = "operator"

// SetOperator 写入已认证的运营身份
func SetOperator(c *gin.Context, operator string) {
	c.Set(OperatorContextKey, strings.TrimSpace(operator))
}

// OperatorFromContext 读取运营身份，未认证时返回空串。
func OperatorFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	value, exists := c.Get(OperatorContextKey)
	if !exists {
		return ""
	}
	operator, _ := value.(string)
	return operator
}
