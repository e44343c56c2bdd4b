package shared

import (
	"github.com/payrecon/internal/http/response"
	"github.com/payrecon/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, key string, err error) {
	appErr := response.WrapKeyedError(code, key, Message(key), err)
	logHandlerError(c, appErr, err)
	response.Error(c, appErr.Code, appErr.Message)
}

// RespondErrorWithStatus 与 RespondError 相同，但同时写入 HTTP 状态码。
func RespondErrorWithStatus(c *gin.Context, code int, key string, err error) {
	appErr := response.WrapKeyedError(code, key, Message(key), err)
	logHandlerError(c, appErr, err)
	response.ErrorWithStatus(c, code, appErr.Code, appErr.Message)
}

// RespondErrorWithMsg 返回自定义消息错误响应，并在有原始错误时记录日志。
func RespondErrorWithMsg(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	logHandlerError(c, appErr, err)
	response.Error(c, appErr.Code, appErr.Message)
}

func logHandlerError(c *gin.Context, appErr *response.AppError, err error) {
	if err == nil {
		return
	}
	RequestLog(c).Errorw("handler_error",
		"code", appErr.Code,
		"key", appErr.Key,
		"message", appErr.Message,
		"error", err,
	)
}
