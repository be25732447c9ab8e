package types

import (
	"context"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// WorkflowInstanceManager 引擎对调用方暴露的实例操作（对外导出）
// 用于解耦调度器、API 与 Engine 的具体实现
type WorkflowInstanceManager interface {
	// StartWorkflow 异步启动实例，返回 workflow_id
	StartWorkflow(ctx context.Context, userID string, recentTopics []string) (string, error)

	// RunWorkflow 同步执行实例直到挂起或终止
	RunWorkflow(ctx context.Context, userID string, recentTopics []string) (workflow.InstanceOutcome, error)

	// StartBatch 并发执行 count 个实例，全部结束后返回汇总
	StartBatch(ctx context.Context, userID string, count int) (workflow.BatchResult, error)

	// Resume 提交审核结论并继续执行
	// 无挂起快照返回 workflow.ErrNotFound；已恢复或已终止返回 workflow.ErrConflict
	Resume(ctx context.Context, workflowID string, decision workflow.ReviewDecision, notes string, expectedVersion int) (workflow.InstanceOutcome, error)

	// Status 查询实例当前步骤或终态
	Status(ctx context.Context, workflowID string) (*workflow.StatusView, error)
}
