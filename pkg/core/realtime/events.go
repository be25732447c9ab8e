// Package realtime 提供工作流事件总线和实时推送的背压缓冲
package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// EventType 事件类型
type EventType string

const (
	// 工作流生命周期事件
	EventWorkflowStarted    EventType = "workflow.started"    // 实例创建
	EventWorkflowSuspended  EventType = "workflow.suspended"  // 等待人工审核
	EventWorkflowResumed    EventType = "workflow.resumed"    // 审核结果已提交
	EventWorkflowTerminated EventType = "workflow.terminated" // 实例终止

	// 步骤事件
	EventStepCompleted EventType = "step.completed" // 步骤执行完成（含失败）

	// 推送背压事件
	EventBackpressure EventType = "backpressure.triggered" // 客户端消费过慢
)

// WorkflowEvent 工作流事件
type WorkflowEvent struct {
	ID         string                 `json:"id"`          // 事件ID（UUID）
	Type       EventType              `json:"type"`        // 事件类型
	WorkflowID string                 `json:"workflow_id"` // 关联工作流ID
	Step       workflow.Step          `json:"step"`        // 所在步骤
	Status     string                 `json:"status"`      // 记录状态或结果状态
	Timestamp  time.Time              `json:"timestamp"`   // 事件时间
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
}

// NewWorkflowEvent 创建工作流事件
func NewWorkflowEvent(eventType EventType, workflowID string, step workflow.Step, status string) *WorkflowEvent {
	return &WorkflowEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		WorkflowID: workflowID,
		Step:       step,
		Status:     status,
		Timestamp:  time.Now(),
		Payload:    make(map[string]interface{}),
		Metadata:   make(map[string]string),
	}
}

// WithPayload 添加负载字段
func (e *WorkflowEvent) WithPayload(key string, value interface{}) *WorkflowEvent {
	if e.Payload == nil {
		e.Payload = make(map[string]interface{})
	}
	e.Payload[key] = value
	return e
}

// WithMetadata 添加元数据
func (e *WorkflowEvent) WithMetadata(key, value string) *WorkflowEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// StepCompletedEvent 根据执行记录构造步骤事件
func StepCompletedEvent(record *workflow.ExecutionRecord) *WorkflowEvent {
	e := NewWorkflowEvent(EventStepCompleted, record.WorkflowID, record.Step, string(record.Status))
	e.WithPayload("record_id", record.ID).
		WithPayload("action", record.Action).
		WithPayload("duration_ms", record.DurationMs)
	if record.Error != "" {
		e.WithPayload("error", record.Error)
	}
	return e
}

// OutcomeEvent 根据实例结果构造挂起或终止事件
func OutcomeEvent(outcome workflow.InstanceOutcome) *WorkflowEvent {
	eventType := EventWorkflowTerminated
	if outcome.Status == workflow.OutcomeSuspended {
		eventType = EventWorkflowSuspended
	}
	e := NewWorkflowEvent(eventType, outcome.WorkflowID, outcome.Step, string(outcome.Status))
	if outcome.Error != "" {
		e.WithPayload("error", outcome.Error)
	}
	if outcome.State != nil {
		e.WithPayload("revision_round", outcome.State.RevisionRound)
		if outcome.State.SelectedTopic != nil {
			e.WithPayload("topic", outcome.State.SelectedTopic.Title)
		}
	}
	return e
}
