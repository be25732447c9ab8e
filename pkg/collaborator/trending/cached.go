package trending

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LENAX/content-pipeline/pkg/core/cache"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

const cacheKey = "trending:candidates"

// CachedSource 在TTL内复用上游结果，避免批量执行时重复请求
// 缓存未命中时并发的调用合并为一次上游请求
type CachedSource struct {
	source types.TopicSource
	cache  cache.ResultCache
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedSource 创建带缓存的热点来源
func NewCachedSource(source types.TopicSource, c cache.ResultCache, ttl time.Duration) *CachedSource {
	return &CachedSource{source: source, cache: c, ttl: ttl}
}

// Discover 实现 types.TopicSource；失败的结果不缓存
func (s *CachedSource) Discover(ctx context.Context, count int) ([]workflow.TopicCandidate, error) {
	if items, ok := s.cached(); ok {
		return limit(items, count), nil
	}

	// 上游请求不随单个调用方取消，其余等待者仍可拿到结果
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(cacheKey, func() (interface{}, error) {
		if items, ok := s.cached(); ok {
			return items, nil
		}
		items, err := s.source.Discover(fetchCtx, 0)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(cacheKey, append([]workflow.TopicCandidate(nil), items...), s.ttl); err != nil {
			log.Printf("⚠️ [Trending] 写入热点缓存失败: %v", err)
		}
		return items, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		items := res.Val.([]workflow.TopicCandidate)
		return limit(append([]workflow.TopicCandidate(nil), items...), count), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CachedSource) cached() ([]workflow.TopicCandidate, bool) {
	v, ok := s.cache.Get(cacheKey)
	if !ok {
		return nil, false
	}
	items, ok := v.([]workflow.TopicCandidate)
	if !ok || len(items) == 0 {
		return nil, false
	}
	return append([]workflow.TopicCandidate(nil), items...), true
}

// Invalidate 清除缓存
func (s *CachedSource) Invalidate() {
	_ = s.cache.Delete(cacheKey)
}
