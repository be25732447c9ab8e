package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
	"github.com/LENAX/content-pipeline/pkg/storage"
)

// LogsHandler 执行记录API处理器
type LogsHandler struct {
	pipeline Pipeline
}

// NewLogsHandler 创建LogsHandler
func NewLogsHandler(p Pipeline) *LogsHandler {
	return &LogsHandler{pipeline: p}
}

// List 按条件分页查询执行记录
// GET /api/v1/logs
func (h *LogsHandler) List(c *gin.Context) {
	var query dto.LogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		abortBadRequest(c, err)
		return
	}
	records, total, err := h.pipeline.ListLogs(c.Request.Context(), storage.RecordFilter{
		WorkflowID: query.WorkflowID,
		Step:       query.Step,
		Status:     query.Status,
		Limit:      query.GetDefaultLimit(),
		Offset:     query.Offset,
	})
	if err != nil {
		abortWithError(c, "查询执行记录失败", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewListResponse(records, total, query.Offset)))
}
