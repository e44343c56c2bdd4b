package admin

import (
	"strings"

	"github.com/payrecon/internal/http/response"
	"github.com/payrecon/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AdminReconcileOrder 立即读取远端真值并对账
func (h *Handler) AdminReconcileOrder(c *gin.Context) {
	orderID, ok := parseOrderIDParam(c)
	if !ok {
		return
	}
	result, err := h.ReconcileService.ReconcileOrder(c.Request.Context(), orderID)
	if err != nil {
		respondRemoteActionError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminRefundRequest 远端退款请求
type AdminRefundRequest struct {
	LineIDs     []string `json:"line_ids"`
	Amount      string   `json:"amount"`
	Description string   `json:"description"`
}

// AdminRefundOrder 向远端发起退款：订单类型按行，支付类型按金额
func (h *Handler) AdminRefundOrder(c *gin.Context) {
	orderID, ok := parseOrderIDParam(c)
	if !ok {
		return
	}
	var req AdminRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	amount := decimal.Zero
	if raw := strings.TrimSpace(req.Amount); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "error.refund_amount_invalid", nil)
			return
		}
		amount = parsed
	}
	err := h.OrderActionService.RefundLines(c.Request.Context(), service.RefundLinesInput{
		OrderID:     orderID,
		LineIDs:     req.LineIDs,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		respondRemoteActionError(c, err)
		return
	}
	requestLog(c).Infow("admin_order_refund_requested",
		"order_id", orderID,
		"line_ids", req.LineIDs,
		"amount", amount.String(),
		"operator", operatorName(c),
	)
	response.Success(c, gin.H{"order_id": orderID, "refunded": true})
}

// AdminCancelLinesRequest 远端行项目取消请求
type AdminCancelLinesRequest struct {
	LineIDs []string `json:"line_ids" binding:"required"`
}

// AdminCancelOrderLines 取消远端订单的指定行项目
func (h *Handler) AdminCancelOrderLines(c *gin.Context) {
	orderID, ok := parseOrderIDParam(c)
	if !ok {
		return
	}
	var req AdminCancelLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	err := h.OrderActionService.CancelLines(c.Request.Context(), service.CancelLinesInput{
		OrderID: orderID,
		LineIDs: req.LineIDs,
	})
	if err != nil {
		respondRemoteActionError(c, err)
		return
	}
	requestLog(c).Infow("admin_order_lines_cancel_requested",
		"order_id", orderID,
		"line_ids", req.LineIDs,
		"operator", operatorName(c),
	)
	response.Success(c, gin.H{"order_id": orderID, "cancelled": true})
}
