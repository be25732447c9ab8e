package realtime

import (
	"sync"
	"sync/atomic"
)

// DataBuffer 数据缓冲区（用于背压控制）
// 实时推送时每个客户端一个缓冲区，消费过慢时丢弃新数据而不阻塞发布方
type DataBuffer[T any] struct {
	data         chan T
	capacity     int
	threshold    float64
	backpressure int32 // atomic，0=正常，1=背压

	// 统计
	totalIn  int64 // atomic，总入队数
	totalOut int64 // atomic，总出队数
	dropped  int64 // atomic，丢弃数

	// 回调函数
	onBackpressure        func(usage float64)
	onBackpressureRelieve func(usage float64)

	mu sync.RWMutex
}

// NewDataBuffer 创建数据缓冲区
func NewDataBuffer[T any](capacity int, threshold float64) *DataBuffer[T] {
	if capacity <= 0 {
		capacity = 256
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}

	return &DataBuffer[T]{
		data:      make(chan T, capacity),
		capacity:  capacity,
		threshold: threshold,
	}
}

// SetBackpressureCallback 设置背压触发回调
func (b *DataBuffer[T]) SetBackpressureCallback(callback func(usage float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBackpressure = callback
}

// SetBackpressureRelieveCallback 设置背压解除回调
func (b *DataBuffer[T]) SetBackpressureRelieveCallback(callback func(usage float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBackpressureRelieve = callback
}

// Push 推入数据（非阻塞）
// 返回 true 表示成功，false 表示缓冲区已满（数据被丢弃）
func (b *DataBuffer[T]) Push(item T) bool {
	select {
	case b.data <- item:
		atomic.AddInt64(&b.totalIn, 1)
		b.checkBackpressure()
		return true
	default:
		atomic.AddInt64(&b.dropped, 1)
		return false
	}
}

// TryPopWithDone 在 done 关闭前阻塞弹出数据
// 返回数据、是否成功、是否因为 done 通道关闭
func (b *DataBuffer[T]) TryPopWithDone(done <-chan struct{}) (T, bool, bool) {
	select {
	case item := <-b.data:
		atomic.AddInt64(&b.totalOut, 1)
		b.checkBackpressure()
		return item, true, false
	case <-done:
		var zero T
		return zero, false, true
	}
}

// Len 获取当前缓冲区长度
func (b *DataBuffer[T]) Len() int {
	return len(b.data)
}

// Cap 获取缓冲区容量
func (b *DataBuffer[T]) Cap() int {
	return b.capacity
}

// Usage 获取使用率
func (b *DataBuffer[T]) Usage() float64 {
	return float64(len(b.data)) / float64(b.capacity)
}

// IsBackpressure 是否处于背压状态
func (b *DataBuffer[T]) IsBackpressure() bool {
	return atomic.LoadInt32(&b.backpressure) == 1
}

// checkBackpressure 检查背压状态
func (b *DataBuffer[T]) checkBackpressure() {
	usage := b.Usage()

	if usage >= b.threshold {
		if atomic.CompareAndSwapInt32(&b.backpressure, 0, 1) {
			b.mu.RLock()
			callback := b.onBackpressure
			b.mu.RUnlock()
			if callback != nil {
				go callback(usage)
			}
		}
	} else if usage < b.threshold*0.5 {
		// 当使用率降到阈值的一半以下时解除背压
		if atomic.CompareAndSwapInt32(&b.backpressure, 1, 0) {
			b.mu.RLock()
			callback := b.onBackpressureRelieve
			b.mu.RUnlock()
			if callback != nil {
				go callback(usage)
			}
		}
	}
}

// Stats 获取统计信息
func (b *DataBuffer[T]) Stats() (totalIn, totalOut, dropped int64, usage float64) {
	return atomic.LoadInt64(&b.totalIn),
		atomic.LoadInt64(&b.totalOut),
		atomic.LoadInt64(&b.dropped),
		b.Usage()
}

// Drain 排空缓冲区并返回所有数据
func (b *DataBuffer[T]) Drain() []T {
	var items []T
	for {
		select {
		case item := <-b.data:
			items = append(items, item)
			atomic.AddInt64(&b.totalOut, 1)
		default:
			return items
		}
	}
}
