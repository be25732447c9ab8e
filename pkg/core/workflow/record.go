package workflow

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus 执行记录状态
type RecordStatus string

const (
	RecordRunning RecordStatus = "RUNNING"
	RecordSuccess RecordStatus = "SUCCESS"
	RecordFailed  RecordStatus = "FAILED"
	RecordBlocked RecordStatus = "BLOCKED"
	RecordPending RecordStatus = "PENDING"
)

// ExecutionRecord 单次步骤执行记录，创建后不可修改（对外导出）
type ExecutionRecord struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflow_id"`
	Step       Step                   `json:"step"`
	Action     string                 `json:"action"`
	Status     RecordStatus           `json:"status"`
	Input      map[string]interface{} `json:"input,omitempty"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewExecutionRecord 创建执行记录
func NewExecutionRecord(workflowID string, step Step, action string, status RecordStatus) *ExecutionRecord {
	return &ExecutionRecord{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Step:       step,
		Action:     action,
		Status:     status,
		CreatedAt:  time.Now(),
	}
}

// InstanceOutcome 实例运行结果（run/resume/batch 的统一返回）
type InstanceOutcome struct {
	WorkflowID string         `json:"workflow_id"`
	Status     OutcomeStatus  `json:"status"`
	Step       Step           `json:"step"`
	State      *WorkflowState `json:"state,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Succeeded 结果是否成功（携带错误的结果永远不算成功）
func (o InstanceOutcome) Succeeded() bool {
	return o.Error == "" && !o.Status.IsFailure()
}

// FailedOutcome 构造失败结果
func FailedOutcome(workflowID string, step Step, state *WorkflowState, err error) InstanceOutcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return InstanceOutcome{
		WorkflowID: workflowID,
		Status:     OutcomeFailed,
		Step:       step,
		State:      state,
		Error:      msg,
	}
}
