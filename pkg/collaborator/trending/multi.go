package trending

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// MultiSource 并发拉取多个来源，按标题去重后按热度排序
// 只要有一个来源成功就返回结果
type MultiSource struct {
	sources []types.TopicSource
}

// NewMultiSource 创建多来源聚合
func NewMultiSource(sources ...types.TopicSource) *MultiSource {
	return &MultiSource{sources: sources}
}

// Discover 实现 types.TopicSource
func (m *MultiSource) Discover(ctx context.Context, count int) ([]workflow.TopicCandidate, error) {
	if len(m.sources) == 0 {
		return nil, fmt.Errorf("未配置热点来源: %w", types.ErrSourceUnavailable)
	}

	results := make([][]workflow.TopicCandidate, len(m.sources))
	errs := make([]error, len(m.sources))
	var wg sync.WaitGroup
	for i, src := range m.sources {
		wg.Add(1)
		go func(i int, src types.TopicSource) {
			defer wg.Done()
			results[i], errs[i] = src.Discover(ctx, 0)
		}(i, src)
	}
	wg.Wait()

	best := make(map[string]workflow.TopicCandidate)
	for i, items := range results {
		if errs[i] != nil {
			log.Printf("⚠️ [Trending] 热点来源失败: %v", errs[i])
			continue
		}
		for _, c := range items {
			if prev, ok := best[c.Title]; !ok || c.Score > prev.Score {
				best[c.Title] = c
			}
		}
	}
	if len(best) == 0 {
		return nil, fmt.Errorf("所有热点来源均不可用: %w", errors.Join(append(errs, types.ErrSourceUnavailable)...))
	}

	merged := make([]workflow.TopicCandidate, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Title < merged[j].Title
	})
	return limit(merged, count), nil
}
