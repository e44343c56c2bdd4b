package public

import (
	handlershared "github.com/payrecon/internal/http/handlers/shared"
	"github.com/payrecon/internal/http/response"
	"github.com/payrecon/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

var paymentReturnErrorRules = []handlershared.MappedError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Key: "error.order_not_found"},
	{Target: service.ErrOrderKeyInvalid, Code: response.CodeUnauthorized, Key: "error.order_key_invalid"},
	{Target: service.ErrGatewayUnsupported, Code: response.CodeBadRequest, Key: "error.gateway_unsupported"},
}

// respondPaymentReturnError 回跳接口直接写入 HTTP 状态码
func respondPaymentReturnError(c *gin.Context, err error) {
	if rule, ok := handlershared.Match(err, paymentReturnErrorRules); ok {
		handlershared.RespondErrorWithStatus(c, rule.Code, rule.Key, nil)
		return
	}
	handlershared.RespondErrorWithStatus(c, response.CodeInternal, "error.order_fetch_failed", err)
}
