package public

import (
	"errors"
	"strings"

	"github.com/payrecon/internal/http/response"
	"github.com/payrecon/internal/service"

	"github.com/gin-gonic/gin"
)

// PaymentWebhook 远端支付通知入口。
// 通知只携带资源ID，真值总是重新读取远端获得；无论对账结果如何都返回 200，避免远端重试风暴。
func (h *Handler) PaymentWebhook(c *gin.Context) {
	log := requestLog(c)
	remoteID := h.webhookResourceID(c)
	log.Infow("payment_webhook_received",
		"remote_id", remoteID,
		"client_ip", c.ClientIP(),
	)

	if h.QueueClient != nil && h.QueueClient.Enabled() {
		err := h.QueueClient.EnqueueWebhookReconcile(c.Request.Context(), remoteID)
		if err == nil {
			response.Success(c, gin.H{"accepted": true, "queued": true})
			return
		}
		log.Warnw("payment_webhook_enqueue_failed_fallback_inline", "remote_id", remoteID, "error", err)
	}

	result, err := h.ReconcileService.HandleWebhook(c.Request.Context(), remoteID)
	if err != nil {
		if errors.Is(err, service.ErrRemoteIDInvalid) {
			log.Warnw("payment_webhook_invalid_remote_id", "remote_id", remoteID)
		} else {
			log.Warnw("payment_webhook_reconcile_failed", "remote_id", remoteID, "error", err)
		}
		response.Success(c, gin.H{"accepted": true, "queued": false})
		return
	}
	log.Infow("payment_webhook_reconciled",
		"remote_id", remoteID,
		"order_id", result.OrderID,
		"outcome", result.Outcome,
		"changed", result.Changed,
	)
	response.Success(c, gin.H{"accepted": true, "queued": false})
}

func (h *Handler) webhookResourceID(c *gin.Context) string {
	param := "id"
	if h.Config != nil {
		if v := strings.TrimSpace(h.Config.Reconcile.WebhookResourceParam); v != "" {
			param = v
		}
	}
	if value := strings.TrimSpace(c.PostForm(param)); value != "" {
		return value
	}
	return strings.TrimSpace(c.Query(param))
}
