package storage

import (
	"context"

	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// RecordFilter 执行记录查询条件
type RecordFilter struct {
	WorkflowID string
	Step       string
	Status     string
	Limit      int
	Offset     int
}

// DefaultLimit 默认分页大小
func (f RecordFilter) DefaultLimit() int {
	if f.Limit <= 0 {
		return 50
	}
	if f.Limit > 500 {
		return 500
	}
	return f.Limit
}

// ExecutionRecordCRUDRepository 执行记录通用接口（对外导出）
// 记录只追加，不提供更新和删除
type ExecutionRecordCRUDRepository interface {
	BaseRepository
	// Append 追加一条执行记录（实现 types.LogSink）
	Append(ctx context.Context, record *workflow.ExecutionRecord) error
	// GetByID 根据ID查询执行记录
	GetByID(ctx context.Context, id string) (*workflow.ExecutionRecord, error)
}

// ExecutionRecordRepository 执行记录业务存储接口（对外导出）
type ExecutionRecordRepository interface {
	ExecutionRecordCRUDRepository

	// ListByWorkflow 查询某个工作流的全部记录，按时间正序
	ListByWorkflow(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error)
	// ListRecords 分页查询，按时间倒序，返回总数
	ListRecords(ctx context.Context, filter RecordFilter) ([]*workflow.ExecutionRecord, int, error)
}

// SnapshotRepository 工作流快照存储接口（对外导出）
type SnapshotRepository interface {
	BaseRepository
	suspension.Store
}
