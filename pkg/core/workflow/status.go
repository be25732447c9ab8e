package workflow

import "time"

// StatusView 实例状态查询结果
// 运行中的实例返回当前步骤；已挂起或终止的实例返回快照中的状态
type StatusView struct {
	WorkflowID    string         `json:"workflow_id"`
	UserID        string         `json:"user_id"`
	Status        string         `json:"status"` // running / suspended / resumed / terminated
	Step          Step           `json:"step"`
	Outcome       OutcomeStatus  `json:"outcome,omitempty"`
	Error         string         `json:"error,omitempty"`
	RevisionRound int            `json:"revision_round"`
	Version       int            `json:"version"`
	InFlight      bool           `json:"in_flight"`
	UpdatedAt     time.Time      `json:"updated_at"`
	State         *WorkflowState `json:"state,omitempty"`
}

// BatchResult 批量执行的汇总结果，Outcomes 与提交顺序一致
type BatchResult struct {
	Outcomes  []InstanceOutcome `json:"outcomes"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// NewBatchResult 汇总批量结果
func NewBatchResult(outcomes []InstanceOutcome) BatchResult {
	r := BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Succeeded() {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	return r
}
