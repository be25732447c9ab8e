package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage"
)

// ExecutionLog 内存执行记录存储，只追加（对外导出）
type ExecutionLog struct {
	mu      sync.RWMutex
	records []*workflow.ExecutionRecord
	byID    map[string]*workflow.ExecutionRecord
}

// NewExecutionLog 创建内存执行记录存储
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{byID: make(map[string]*workflow.ExecutionRecord)}
}

// Append 追加一条执行记录
func (l *ExecutionLog) Append(ctx context.Context, record *workflow.ExecutionRecord) error {
	if record == nil {
		return fmt.Errorf("执行记录为空")
	}
	c := *record
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, &c)
	l.byID[c.ID] = &c
	return nil
}

// GetByID 根据ID查询执行记录
func (l *ExecutionLog) GetByID(ctx context.Context, id string) (*workflow.ExecutionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.byID[id]
	if !ok {
		return nil, fmt.Errorf("执行记录 %s: %w", id, workflow.ErrNotFound)
	}
	c := *r
	return &c, nil
}

// ListByWorkflow 按写入顺序返回某个工作流的记录
func (l *ExecutionLog) ListByWorkflow(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*workflow.ExecutionRecord, 0)
	for _, r := range l.records {
		if r.WorkflowID == workflowID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

// ListRecords 按写入倒序分页查询
func (l *ExecutionLog) ListRecords(ctx context.Context, filter storage.RecordFilter) ([]*workflow.ExecutionRecord, int, error) {
	l.mu.RLock()
	matched := make([]*workflow.ExecutionRecord, 0)
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if filter.WorkflowID != "" && r.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Step != "" && string(r.Step) != filter.Step {
			continue
		}
		if filter.Status != "" && string(r.Status) != filter.Status {
			continue
		}
		c := *r
		matched = append(matched, &c)
	}
	l.mu.RUnlock()
	return page(matched, filter.Offset, filter.DefaultLimit()), len(matched), nil
}

// Close 内存存储无需关闭
func (l *ExecutionLog) Close() error {
	return nil
}

// 确保实现接口
var _ storage.ExecutionRecordRepository = (*ExecutionLog)(nil)
