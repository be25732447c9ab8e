// Package memory 提供进程内存储实现，用于测试和无持久化部署
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage"
)

// SnapshotStore 内存快照存储（对外导出）
type SnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]*suspension.Snapshot
}

// NewSnapshotStore 创建内存快照存储
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snaps: make(map[string]*suspension.Snapshot)}
}

// Save 按 workflow_id 覆盖写入，版本号递增
func (s *SnapshotStore) Save(ctx context.Context, snap *suspension.Snapshot) error {
	if snap == nil || snap.State == nil {
		return fmt.Errorf("快照或状态为空")
	}
	if snap.WorkflowID == "" {
		return fmt.Errorf("workflow_id不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	stored := copySnapshot(snap)
	stored.CreatedAt = now
	stored.Version = 1
	if existing, ok := s.snaps[snap.WorkflowID]; ok {
		stored.CreatedAt = existing.CreatedAt
		stored.Version = existing.Version + 1
	}
	stored.UpdatedAt = now
	s.snaps[snap.WorkflowID] = stored

	snap.Version = stored.Version
	snap.CreatedAt = stored.CreatedAt
	snap.UpdatedAt = stored.UpdatedAt
	return nil
}

// Claim 原子地将 suspended 转为 resumed
func (s *SnapshotStore) Claim(ctx context.Context, workflowID string) (*suspension.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snaps[workflowID]
	if !ok {
		return nil, fmt.Errorf("工作流 %s: %w", workflowID, workflow.ErrNotFound)
	}
	if snap.Status != suspension.StatusSuspended {
		return nil, fmt.Errorf("工作流 %s 当前状态为 %s: %w", workflowID, snap.Status, workflow.ErrConflict)
	}
	snap.Status = suspension.StatusResumed
	snap.Version++
	snap.UpdatedAt = time.Now()
	return copySnapshot(snap), nil
}

// Get 查询快照
func (s *SnapshotStore) Get(ctx context.Context, workflowID string) (*suspension.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[workflowID]
	if !ok {
		return nil, fmt.Errorf("工作流 %s: %w", workflowID, workflow.ErrNotFound)
	}
	return copySnapshot(snap), nil
}

// List 按更新时间倒序分页查询
func (s *SnapshotStore) List(ctx context.Context, filter suspension.ListFilter) ([]*suspension.Snapshot, int, error) {
	s.mu.RLock()
	matched := make([]*suspension.Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && snap.UserID != filter.UserID {
			continue
		}
		matched = append(matched, copySnapshot(snap))
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].WorkflowID > matched[j].WorkflowID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return page(matched, filter.Offset, filter.DefaultLimit()), len(matched), nil
}

// Close 内存存储无需关闭
func (s *SnapshotStore) Close() error {
	return nil
}

func copySnapshot(snap *suspension.Snapshot) *suspension.Snapshot {
	c := *snap
	c.State = snap.State.Clone()
	return &c
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// 确保实现接口
var _ storage.SnapshotRepository = (*SnapshotStore)(nil)
