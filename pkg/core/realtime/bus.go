package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// TopicWorkflowEvents 工作流事件主题
const TopicWorkflowEvents = "content-pipeline.workflow.events"

// EventBus 工作流事件总线（对外导出）
type EventBus interface {
	// Publish 发布事件，没有订阅者时直接丢弃
	Publish(event *WorkflowEvent) error
	// Subscribe 订阅事件，ctx 取消后通道关闭
	Subscribe(ctx context.Context) (<-chan *WorkflowEvent, error)
	// Close 关闭总线
	Close() error
}

// BusOption 总线选项
type BusOption func(*busOptions)

type busOptions struct {
	debug bool
	trace bool
}

// WithDebugLog 开启watermill调试日志
func WithDebugLog(debug, trace bool) BusOption {
	return func(o *busOptions) {
		o.debug = debug
		o.trace = trace
	}
}

// watermillBus 基于 watermill gochannel 的进程内事件总线
type watermillBus struct {
	pubsub    *gochannel.GoChannel
	published int64 // atomic
	closed    int32 // atomic
}

// NewEventBus 创建进程内事件总线（对外导出）
func NewEventBus(opts ...BusOption) EventBus {
	options := &busOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := watermill.NewStdLogger(options.debug, options.trace)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
	return &watermillBus{pubsub: pubsub}
}

// Publish 发布事件
func (b *watermillBus) Publish(event *WorkflowEvent) error {
	if event == nil {
		return nil
	}
	if atomic.LoadInt32(&b.closed) == 1 {
		return fmt.Errorf("事件总线已关闭")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("workflow_id", event.WorkflowID)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(TopicWorkflowEvents, msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	atomic.AddInt64(&b.published, 1)
	return nil
}

// Subscribe 订阅事件
func (b *watermillBus) Subscribe(ctx context.Context) (<-chan *WorkflowEvent, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicWorkflowEvents)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	out := make(chan *WorkflowEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			var event WorkflowEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Printf("⚠️ [EventBus] 丢弃无法解析的事件 %s: %v", msg.UUID, err)
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close 关闭总线
func (b *watermillBus) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	return b.pubsub.Close()
}
