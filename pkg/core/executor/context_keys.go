package executor

import (
	"context"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// context key类型，用于类型安全的context.Value访问
type contextKey string

const (
	// WorkflowIDKey 工作流ID在context中的key
	WorkflowIDKey contextKey = "workflow.id"
	// StepKey 当前步骤在context中的key
	StepKey contextKey = "workflow.step"
	// TopicLedgerKey 批量共享的选题账本在context中的key
	TopicLedgerKey contextKey = "workflow.topic_ledger"
)

// WithWorkflowID 将工作流ID添加到context中（对外导出）
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, WorkflowIDKey, workflowID)
}

// GetWorkflowID 从context中获取工作流ID（对外导出）
func GetWorkflowID(ctx context.Context) string {
	if id, ok := ctx.Value(WorkflowIDKey).(string); ok {
		return id
	}
	return ""
}

// WithStep 将当前步骤添加到context中
func WithStep(ctx context.Context, step workflow.Step) context.Context {
	return context.WithValue(ctx, StepKey, step)
}

// GetStep 从context中获取当前步骤
func GetStep(ctx context.Context) workflow.Step {
	if step, ok := ctx.Value(StepKey).(workflow.Step); ok {
		return step
	}
	return ""
}

// WithTopicLedger 将选题账本添加到context中（批量执行时共享）
func WithTopicLedger(ctx context.Context, ledger *TopicLedger) context.Context {
	return context.WithValue(ctx, TopicLedgerKey, ledger)
}

// GetTopicLedger 从context中获取选题账本，未设置时返回nil
func GetTopicLedger(ctx context.Context) *TopicLedger {
	if ledger, ok := ctx.Value(TopicLedgerKey).(*TopicLedger); ok {
		return ledger
	}
	return nil
}
