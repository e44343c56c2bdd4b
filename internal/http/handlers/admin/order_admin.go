package admin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/http/response"
	"github.com/payrecon/internal/repository"
	"github.com/payrecon/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AdminListOrders 管理端订单列表
func (h *Handler) AdminListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("created_from")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("created_to")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	orders, total, err := h.OrderService.List(repository.OrderListFilter{
		Page:             page,
		PageSize:         pageSize,
		Status:           strings.TrimSpace(c.Query("status")),
		PaymentMethod:    strings.TrimSpace(c.Query("payment_method")),
		RemoteResourceID: strings.TrimSpace(c.Query("remote_resource_id")),
		Keyword:          strings.TrimSpace(c.Query("keyword")),
		CreatedFrom:      createdFrom,
		CreatedTo:        createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.order_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, orders, buildPagination(page, pageSize, total))
}

// AdminGetOrder 管理端订单详情
func (h *Handler) AdminGetOrder(c *gin.Context) {
	orderID, ok := parseOrderIDParam(c)
	if !ok {
		return
	}
	order, err := h.OrderService.Get(orderID)
	if err != nil {
		respondOrderFetchError(c, err)
		return
	}
	response.Success(c, order)
}

// AdminRegisterOrderRequest 登记本地订单请求
type AdminRegisterOrderRequest struct {
	OrderKey         string `json:"order_key" binding:"required"`
	PaymentMethod    string `json:"payment_method" binding:"required"`
	Currency         string `json:"currency"`
	TotalAmount      string `json:"total_amount"`
	RemoteResourceID string `json:"remote_resource_id"`
}

// AdminRegisterOrder 登记结账流程创建的本地订单，可同时绑定远端资源
func (h *Handler) AdminRegisterOrder(c *gin.Context) {
	var req AdminRegisterOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	amount := decimal.Zero
	if raw := strings.TrimSpace(req.TotalAmount); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil || parsed.IsNegative() {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
		amount = parsed
	}

	order, err := h.OrderService.Register(service.RegisterOrderInput{
		OrderKey:      req.OrderKey,
		PaymentMethod: req.PaymentMethod,
		Currency:      req.Currency,
		TotalAmount:   amount,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.order_create_failed", err)
		return
	}
	if remoteID := strings.TrimSpace(req.RemoteResourceID); remoteID != "" {
		order, err = h.OrderService.AttachRemoteResource(order.ID, remoteID)
		if err != nil {
			respondOrderUpdateError(c, err)
			return
		}
	}
	requestLog(c).Infow("admin_order_registered",
		"order_id", order.ID,
		"payment_method", order.PaymentMethod,
		"remote_id", order.RemoteResourceID,
	)
	response.Success(c, order)
}

// AdminAttachRemoteRequest 绑定远端资源请求
type AdminAttachRemoteRequest struct {
	RemoteResourceID string `json:"remote_resource_id" binding:"required"`
}

// AdminAttachRemoteResource 绑定远端资源ID（写入后不可更换）
func (h *Handler) AdminAttachRemoteResource(c *gin.Context) {
	orderID, ok := parseOrderIDParam(c)
	if !ok {
		return
	}
	var req AdminAttachRemoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	order, err := h.OrderService.AttachRemoteResource(orderID, req.RemoteResourceID)
	if err != nil {
		respondOrderUpdateError(c, err)
		return
	}
	response.Success(c, order)
}

// AdminUpdateOrderStatusRequest 管理端更新订单状态请求
type AdminUpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// AdminUpdateOrderStatus 管理端更新订单状态，与自动流转走同一路径并触发远端动作
func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	orderID, ok := parseOrderIDParam(c)
	if !ok {
		return
	}
	var req AdminUpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	current, err := h.OrderService.Get(orderID)
	if err != nil {
		respondOrderFetchError(c, err)
		return
	}
	target := strings.TrimSpace(req.Status)
	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = fmt.Sprintf(constants.NoteStatusManual, current.Status, target)
	}

	result, err := h.OrderService.Transition(c.Request.Context(), service.TransitionInput{
		OrderID:  orderID,
		ToStatus: target,
		Source:   constants.TransitionSourceManual,
		Note:     note,
	})
	if err != nil {
		respondOrderUpdateError(c, err)
		return
	}
	requestLog(c).Infow("admin_order_status_updated",
		"order_id", orderID,
		"from_status", result.FromStatus,
		"to_status", result.Order.Status,
		"changed", result.Changed,
		"operator", operatorName(c),
	)
	response.Success(c, gin.H{
		"order":       result.Order,
		"from_status": result.FromStatus,
		"changed":     result.Changed,
	})
}

// AdminListOrderNotes 订单备注列表
func (h *Handler) AdminListOrderNotes(c *gin.Context) {
	orderID, ok := parseOrderIDParam(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	notes, total, err := h.OrderService.ListNotes(repository.OrderNoteListFilter{
		Page:     page,
		PageSize: pageSize,
		OrderID:  orderID,
		Source:   strings.TrimSpace(c.Query("source")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.note_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, notes, buildPagination(page, pageSize, total))
}

// AdminCancelUnpaid 宿主平台未支付取消；由过期扫描接管的网关返回 deferred
func (h *Handler) AdminCancelUnpaid(c *gin.Context) {
	orderID, ok := parseOrderIDParam(c)
	if !ok {
		return
	}
	result, err := h.ExpiryService.CancelUnpaid(c.Request.Context(), orderID)
	if err != nil {
		respondOrderUpdateError(c, err)
		return
	}
	response.Success(c, result)
}
