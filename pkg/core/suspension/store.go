// Package suspension 定义工作流快照存储：挂起时持久化完整状态，恢复时单次领取
package suspension

import (
	"context"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// Status 快照状态
type Status string

const (
	StatusRunning    Status = "running"    // 正在执行
	StatusSuspended  Status = "suspended"  // 等待人工审核
	StatusResumed    Status = "resumed"    // 已被领取，正在继续执行
	StatusTerminated Status = "terminated" // 已终止
)

// IsValid 检查状态是否有效
func (s Status) IsValid() bool {
	switch s {
	case StatusRunning, StatusSuspended, StatusResumed, StatusTerminated:
		return true
	default:
		return false
	}
}

// Snapshot 工作流快照
type Snapshot struct {
	WorkflowID string
	UserID     string
	Status     Status
	Step       workflow.Step
	Outcome    workflow.OutcomeStatus // 终止时的结果
	State      *workflow.WorkflowState
	Error      string
	Version    int // 每次写入递增
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListFilter 快照查询条件
type ListFilter struct {
	Status Status
	UserID string
	Limit  int
	Offset int
}

// Store 快照存储（对外导出）
// 所有实现都必须支持不同 workflow_id 的并发写入
type Store interface {
	// Save 按 workflow_id 幂等写入（覆盖），版本号递增
	Save(ctx context.Context, snap *Snapshot) error
	// Claim 将 suspended 快照原子地转为 resumed 并返回
	// 不存在返回 workflow.ErrNotFound；非 suspended 返回 workflow.ErrConflict
	Claim(ctx context.Context, workflowID string) (*Snapshot, error)
	// Get 查询快照，不存在返回 workflow.ErrNotFound
	Get(ctx context.Context, workflowID string) (*Snapshot, error)
	// List 按条件分页查询，按更新时间倒序，返回总数
	List(ctx context.Context, filter ListFilter) ([]*Snapshot, int, error)
}

// NewSnapshot 根据状态构造快照
func NewSnapshot(state *workflow.WorkflowState, status Status, step workflow.Step) *Snapshot {
	return &Snapshot{
		WorkflowID: state.WorkflowID,
		UserID:     state.UserID,
		Status:     status,
		Step:       step,
		State:      state,
		Error:      state.Error,
	}
}

// DefaultLimit 默认分页大小
func (f ListFilter) DefaultLimit() int {
	if f.Limit <= 0 {
		return 20
	}
	if f.Limit > 200 {
		return 200
	}
	return f.Limit
}
