package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Aduersarius/polybet-sub009/internal/handler/response"
	"github.com/Aduersarius/polybet-sub009/internal/service/health"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

type HealthHandler struct {
	state *health.State
}

func NewHealthHandler(state *health.State) *HealthHandler {
	return &HealthHandler{state: state}
}

// Check 健康时 200，否则 503，body 都是当前快照
func (h *HealthHandler) Check(c *gin.Context) {
	snap := h.state.Snapshot()
	if !snap.Healthy {
		response.Error(c, http.StatusServiceUnavailable, errno.ErrServiceUnhealthy, snap)
		return
	}
	response.Success(c, snap)
}
