package publisher

import (
	"context"
	"log"
	"sync"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// DryRunPublisher 不调用外部服务，只记录发布请求
type DryRunPublisher struct {
	mu        sync.Mutex
	published []types.PublishRequest
}

// NewDryRunPublisher 创建演练发布器
func NewDryRunPublisher() *DryRunPublisher {
	return &DryRunPublisher{}
}

// Publish 实现 types.PublishTarget
func (p *DryRunPublisher) Publish(ctx context.Context, req types.PublishRequest) (*workflow.PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.published = append(p.published, req)
	p.mu.Unlock()

	log.Printf("📝 [DryRun] 模拟发布: WorkflowID=%s, Title=%s, 图片=%d, 标签=%v", req.WorkflowID, req.Title, len(req.Images), req.Tags)
	return &workflow.PublishResult{Success: true, ID: "dryrun-" + req.WorkflowID}, nil
}

// Published 已记录的发布请求
func (p *DryRunPublisher) Published() []types.PublishRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.PublishRequest(nil), p.published...)
}

var _ types.PublishTarget = (*DryRunPublisher)(nil)
