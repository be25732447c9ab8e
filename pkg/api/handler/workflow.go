package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// WorkflowHandler 工作流实例API处理器
type WorkflowHandler struct {
	pipeline Pipeline
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(p Pipeline) *WorkflowHandler {
	return &WorkflowHandler{pipeline: p}
}

// Start 启动实例
// POST /api/v1/workflows
// wait=true 时同步执行到挂起或终止，否则立即返回 workflow_id
func (h *WorkflowHandler) Start(c *gin.Context) {
	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	if req.Wait {
		outcome, err := h.pipeline.RunWorkflow(c.Request.Context(), req.UserID, req.RecentTopics)
		if err != nil {
			abortWithError(c, "执行实例失败", err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(outcome))
		return
	}

	id, err := h.pipeline.StartWorkflow(c.Request.Context(), req.UserID, req.RecentTopics)
	if err != nil {
		abortWithError(c, "启动实例失败", err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.StartWorkflowResponse{WorkflowID: id}))
}

// Batch 批量执行
// POST /api/v1/workflows/batch
func (h *WorkflowHandler) Batch(c *gin.Context) {
	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	result, err := h.pipeline.StartBatch(c.Request.Context(), req.UserID, req.Count)
	if err != nil {
		abortWithError(c, "批量执行失败", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(result))
}

// List 分页查询实例
// GET /api/v1/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	var query dto.ListWorkflowsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		abortBadRequest(c, err)
		return
	}
	views, total, err := h.pipeline.ListWorkflows(c.Request.Context(), suspension.ListFilter{
		Status: suspension.Status(query.Status),
		UserID: query.UserID,
		Limit:  query.GetDefaultLimit(),
		Offset: query.Offset,
	})
	if err != nil {
		abortWithError(c, "查询实例失败", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewListResponse(views, total, query.Offset)))
}

// Get 查询实例状态
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	view, err := h.pipeline.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, "查询实例失败", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(view))
}

// Review 提交审核结论
// POST /api/v1/workflows/:id/review
func (h *WorkflowHandler) Review(c *gin.Context) {
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	outcome, err := h.pipeline.Resume(c.Request.Context(), c.Param("id"), workflow.ReviewDecision(req.Decision), req.Notes, req.Version)
	if err != nil {
		abortWithError(c, "提交审核失败", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(outcome))
}

// Logs 查询实例执行记录
// GET /api/v1/workflows/:id/logs
func (h *WorkflowHandler) Logs(c *gin.Context) {
	records, err := h.pipeline.WorkflowLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, "查询执行记录失败", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewListResponse(records, len(records), 0)))
}

// Graph 步骤图
// GET /api/v1/workflows/graph
func (h *WorkflowHandler) Graph(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.GraphResponse{
		Steps:   workflow.Steps(),
		Edges:   workflow.Edges(),
		Mermaid: h.pipeline.Graph(),
	}))
}
