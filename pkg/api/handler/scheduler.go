package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
)

// SchedulerHandler 定时调度API处理器
type SchedulerHandler struct {
	pipeline Pipeline
}

// NewSchedulerHandler 创建SchedulerHandler
func NewSchedulerHandler(p Pipeline) *SchedulerHandler {
	return &SchedulerHandler{pipeline: p}
}

// Status 调度器状态
// GET /api/v1/scheduler/status
func (h *SchedulerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.pipeline.SchedulerStatus()))
}

// Jobs 定时任务列表，含下次执行时间
// GET /api/v1/scheduler/jobs
func (h *SchedulerHandler) Jobs(c *gin.Context) {
	jobs := h.pipeline.ListJobs()
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewListResponse(jobs, len(jobs), 0)))
}

// Run 手动触发定时任务，批量在后台执行
// POST /api/v1/scheduler/jobs/:name/run
func (h *SchedulerHandler) Run(c *gin.Context) {
	exec, err := h.pipeline.RunJob(c.Param("name"))
	if err != nil {
		abortWithError(c, "触发定时任务失败", err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(exec))
}

// Executions 最近的执行记录，最新的在前
// GET /api/v1/scheduler/executions
func (h *SchedulerHandler) Executions(c *gin.Context) {
	var query dto.ExecutionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		abortBadRequest(c, err)
		return
	}
	runs := h.pipeline.JobExecutions(query.GetDefaultLimit())
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewListResponse(runs, len(runs), 0)))
}
