package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	pipeline  Pipeline
	version   string
	startTime time.Time
}

// NewHealthHandler 创建HealthHandler
func NewHealthHandler(p Pipeline, version string) *HealthHandler {
	return &HealthHandler{
		pipeline:  p,
		version:   version,
		startTime: time.Now(),
	}
}

// Health 健康检查
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    formatDuration(time.Since(h.startTime)),
		InFlight:  h.pipeline.InFlight(),
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}

// Ready 就绪检查，存储不可用时返回503
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.pipeline.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(http.StatusServiceUnavailable, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"status": "ready",
	}))
}

// formatDuration 格式化时长
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
