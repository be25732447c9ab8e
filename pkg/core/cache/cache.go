package cache

import (
	"sync"
	"time"
)

// ResultCache 结果缓存接口（对外导出）
// 用于缓存热点榜单等外部请求结果，避免批量运行时重复请求上游
type ResultCache interface {
	// Set 设置缓存值
	// key: 缓存键（如热榜来源名称）
	// value: 结果数据
	// ttl: 缓存有效期
	Set(key string, value interface{}, ttl time.Duration) error

	// Get 获取缓存值
	// 返回: 结果数据和是否存在
	Get(key string) (interface{}, bool)

	// Delete 删除缓存值
	Delete(key string) error

	// Clear 清空所有缓存
	Clear() error
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry struct {
	value      interface{}
	expireTime time.Time
}

// MemoryResultCache 内存结果缓存实现（对外导出）
type MemoryResultCache struct {
	mu       sync.RWMutex
	cache    map[string]*cacheEntry
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryResultCache 创建内存结果缓存实例（对外导出）
// cleanInterval <= 0 时使用默认的1分钟
func NewMemoryResultCache(cleanInterval time.Duration) *MemoryResultCache {
	if cleanInterval <= 0 {
		cleanInterval = time.Minute
	}
	c := &MemoryResultCache{
		cache:  make(map[string]*cacheEntry),
		stopCh: make(chan struct{}),
	}
	// 启动清理协程，定期清理过期缓存
	go c.cleanupExpired(cleanInterval)
	return c
}

// Set 设置缓存值
func (c *MemoryResultCache) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return nil // 空key，忽略
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[key] = &cacheEntry{
		value:      value,
		expireTime: time.Now().Add(ttl),
	}
	return nil
}

// Get 获取缓存值
func (c *MemoryResultCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	entry, exists := c.cache[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	// 已过期，删除并返回不存在
	if time.Now().After(entry.expireTime) {
		c.mu.Lock()
		if cur, ok := c.cache[key]; ok && cur == entry {
			delete(c.cache, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.value, true
}

// Delete 删除缓存值
func (c *MemoryResultCache) Delete(key string) error {
	if key == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cache, key)
	return nil
}

// Clear 清空所有缓存
func (c *MemoryResultCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cacheEntry)
	return nil
}

// Len 当前缓存条目数（含未清理的过期条目）
func (c *MemoryResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Stop 停止清理协程，可重复调用
func (c *MemoryResultCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// cleanupExpired 清理过期缓存（内部方法）
func (c *MemoryResultCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.purge()
		}
	}
}

func (c *MemoryResultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, entry := range c.cache {
		if now.After(entry.expireTime) {
			delete(c.cache, key)
		}
	}
}

var _ ResultCache = (*MemoryResultCache)(nil)
