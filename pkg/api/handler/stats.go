package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
)

// StatsHandler 统计API处理器
type StatsHandler struct {
	pipeline Pipeline
}

// NewStatsHandler 创建StatsHandler
func NewStatsHandler(p Pipeline) *StatsHandler {
	return &StatsHandler{pipeline: p}
}

// Overview 实例数量概览
// GET /api/v1/stats/overview
func (h *StatsHandler) Overview(c *gin.Context) {
	ov, err := h.pipeline.Overview(c.Request.Context())
	if err != nil {
		abortWithError(c, "统计失败", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(ov))
}
