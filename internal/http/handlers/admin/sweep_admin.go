package admin

import (
	"github.com/payrecon/internal/http/response"

	"github.com/gin-gonic/gin"
)

// AdminRunSweep 立即执行一次过期扫描（随后按最短到期时间重新调度）
func (h *Handler) AdminRunSweep(c *gin.Context) {
	result, err := h.ExpiryService.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.sweep_failed", err)
		return
	}
	requestLog(c).Infow("admin_sweep_run",
		"skipped", result.Skipped,
		"cancelled", len(result.Cancelled),
		"failed", len(result.Failed),
		"next_delay", result.NextDelay.String(),
		"operator", operatorName(c),
	)
	response.Success(c, result)
}

// AdminGetSweepState 过期扫描调度状态
func (h *Handler) AdminGetSweepState(c *gin.Context) {
	state, err := h.ExpiryService.State()
	if err != nil {
		respondError(c, response.CodeInternal, "error.sweep_state_fetch_failed", err)
		return
	}
	response.Success(c, gin.H{"state": state})
}
