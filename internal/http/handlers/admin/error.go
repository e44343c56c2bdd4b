package admin

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

func operatorName(c *gin.Context) string {
	return handlershared.OperatorFromContext(c)
}

func respondError(c *gin.Context, code int, key string, err error) {
	handlershared.RespondError(c, code, key, err)
}

func normalizePagination(page, pageSize int) (int, int) {
	return handlershared.NormalizePagination(page, pageSize)
}

var orderLookupErrorRules = []handlershared.MappedError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Key: "error.order_not_found"},
}

var orderStatusErrorRules = []handlershared.MappedError{
	{Target: service.ErrOrderStatusInvalid, Code: response.CodeBadRequest, Key: "error.order_status_invalid"},
	{Target: service.ErrOrderStatusTerminal, Code: response.CodeConflict, Key: "error.order_status_terminal"},
	{Target: service.ErrOrderStatusConflict, Code: response.CodeConflict, Key: "error.order_status_conflict"},
}

var remoteResourceErrorRules = []handlershared.MappedError{
	{Target: service.ErrRemoteIDInvalid, Code: response.CodeBadRequest, Key: "error.remote_id_invalid"},
	{Target: service.ErrRemoteIDConflict, Code: response.CodeConflict, Key: "error.remote_id_conflict"},
	{Target: service.ErrRemoteResourceMissing, Code: response.CodeBadRequest, Key: "error.remote_resource_missing"},
}

var remoteActionErrorRules = []handlershared.MappedError{
	{Target: service.ErrGatewayUnsupported, Code: response.CodeBadRequest, Key: "error.gateway_unsupported"},
	{Target: service.ErrRemoteLineIDsRequired, Code: response.CodeBadRequest, Key: "error.remote_line_ids_required"},
	{Target: service.ErrRefundAmountInvalid, Code: response.CodeBadRequest, Key: "error.refund_amount_invalid"},
	{Target: service.ErrRemoteCallFailed, Code: response.CodeServiceUnavailable, Key: "error.remote_call_failed"},
}

func respondOrderFetchError(c *gin.Context, err error) {
	handlershared.RespondWithMappedError(c, err, orderLookupErrorRules, response.CodeInternal, "error.order_fetch_failed")
}

func respondOrderUpdateError(c *gin.Context, err error) {
	rules := handlershared.ConcatMappedErrors(orderLookupErrorRules, orderStatusErrorRules, remoteResourceErrorRules)
	handlershared.RespondWithMappedError(c, err, rules, response.CodeInternal, "error.order_update_failed")
}

func respondRemoteActionError(c *gin.Context, err error) {
	rules := handlershared.ConcatMappedErrors(orderLookupErrorRules, remoteResourceErrorRules, remoteActionErrorRules)
	handlershared.RespondWithMappedError(c, err, rules, response.CodeInternal, "error.remote_call_failed")
}
