package public

import (
	"net/http"
	"strings"

	"github.com/payrecon/internal/service"

	"github.com/gin-gonic/gin"
)

// PaymentReturn 浏览器支付回跳：校验订单与访问密钥后重定向到网关落地页。
func (h *Handler) PaymentReturn(c *gin.Context) {
	log := requestLog(c)
	orderIDParam, orderKeyParam := h.returnParams()
	input := service.ReturnInput{
		OrderID:  strings.TrimSpace(c.Query(orderIDParam)),
		OrderKey: strings.TrimSpace(c.Query(orderKeyParam)),
	}
	result, err := h.ReconcileService.HandleReturn(c.Request.Context(), input)
	if err != nil {
		log.Warnw("payment_return_rejected",
			"order_id", input.OrderID,
			"client_ip", c.ClientIP(),
			"error", err,
		)
		respondPaymentReturnError(c, err)
		return
	}
	log.Infow("payment_return_redirect",
		"order_id", result.Order.ID,
		"status", result.Order.Status,
		"redirect_url", result.RedirectURL,
	)
	c.Redirect(http.StatusFound, result.RedirectURL)
}

func (h *Handler) returnParams() (string, string) {
	orderIDParam, orderKeyParam := "order_id", "key"
	if h.Config != nil {
		if v := strings.TrimSpace(h.Config.Reconcile.ReturnOrderIDParam); v != "" {
			orderIDParam = v
		}
		if v := strings.TrimSpace(h.Config.Reconcile.ReturnOrderKeyParam); v != "" {
			orderKeyParam = v
		}
	}
	return orderIDParam, orderKeyParam
}
