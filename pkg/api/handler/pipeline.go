package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
	"github.com/LENAX/content-pipeline/pkg/core/engine"
	"github.com/LENAX/content-pipeline/pkg/core/realtime"
	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage"
)

// Pipeline handler依赖的引擎能力，由 *engine.Engine 实现
type Pipeline interface {
	types.WorkflowInstanceManager
	ListWorkflows(ctx context.Context, filter suspension.ListFilter) ([]*workflow.StatusView, int, error)
	WorkflowLogs(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error)
	ListLogs(ctx context.Context, filter storage.RecordFilter) ([]*workflow.ExecutionRecord, int, error)
	Events(ctx context.Context) (<-chan *realtime.WorkflowEvent, error)
	Graph() string
	Ping(ctx context.Context) error
	InFlight() int

	ListJobs() []engine.JobInfo
	RunJob(name string) (engine.JobExecution, error)
	JobExecutions(limit int) []engine.JobExecution
	SchedulerStatus() engine.SchedulerStatus
	Overview(ctx context.Context) (*engine.Overview, error)
}

var _ Pipeline = (*engine.Engine)(nil)

// statusOf 错误到HTTP状态码的映射
func statusOf(err error) int {
	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, engine.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrConflict), errors.Is(err, engine.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidDecision), errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, action string, err error) {
	status := statusOf(err)
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(status, fmt.Sprintf("%s: %v", action, err)))
}

func abortBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("请求参数错误: %v", err)))
}
