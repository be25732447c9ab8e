package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/realtime"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/plugin"
)

const (
	defaultNotifyTimeout = 15 * time.Second
	notifyQueueSize      = 256
	notifyWorkers        = 2
)

// Observer 工作流生命周期观察者
type Observer interface {
	WorkflowStarted(ctx context.Context, state *workflow.WorkflowState)
	WorkflowResumed(ctx context.Context, state *workflow.WorkflowState)
	StepFailed(ctx context.Context, record *workflow.ExecutionRecord)
	WorkflowSettled(ctx context.Context, outcome workflow.InstanceOutcome)
}

// LifecycleNotifier 将生命周期事件转发到事件总线和插件
// bus 和 plugins 均可为nil；插件在后台worker中执行，不阻塞引擎循环
type LifecycleNotifier struct {
	bus     realtime.EventBus
	plugins plugin.PluginManager
	timeout time.Duration

	queue  chan pluginCall
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type pluginCall struct {
	event plugin.TriggerEvent
	data  plugin.PluginData
}

// NewLifecycleNotifier 创建生命周期通知器，plugins 非nil时启动插件worker
func NewLifecycleNotifier(bus realtime.EventBus, plugins plugin.PluginManager) *LifecycleNotifier {
	n := &LifecycleNotifier{bus: bus, plugins: plugins, timeout: defaultNotifyTimeout}
	if plugins != nil {
		n.queue = make(chan pluginCall, notifyQueueSize)
		for i := 0; i < notifyWorkers; i++ {
			n.wg.Add(1)
			go n.worker()
		}
	}
	return n
}

func (n *LifecycleNotifier) worker() {
	defer n.wg.Done()
	for call := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := n.plugins.Trigger(ctx, call.event, call.data); err != nil {
			log.Printf("⚠️ [Notifier] 触发插件失败: Event=%s, WorkflowID=%s, Error=%v", call.event, call.data.WorkflowID, err)
		}
		cancel()
	}
}

// Close 停止接收新通知，等待队列中的通知发送完毕
func (n *LifecycleNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed || n.queue == nil {
		n.closed = true
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待插件通知发送超时: %w", ctx.Err())
	}
}

// WorkflowStarted 实例创建
func (n *LifecycleNotifier) WorkflowStarted(ctx context.Context, state *workflow.WorkflowState) {
	n.publish(realtime.NewWorkflowEvent(realtime.EventWorkflowStarted, state.WorkflowID, workflow.StepResearch, string(workflow.OutcomeRunning)).
		WithPayload("user_id", state.UserID))
	n.trigger(ctx, plugin.EventWorkflowStarted, plugin.PluginData{
		WorkflowID: state.WorkflowID,
		UserID:     state.UserID,
		Step:       string(workflow.StepResearch),
		Status:     string(workflow.OutcomeRunning),
	})
}

// WorkflowResumed 审核结果已提交
func (n *LifecycleNotifier) WorkflowResumed(ctx context.Context, state *workflow.WorkflowState) {
	n.publish(realtime.NewWorkflowEvent(realtime.EventWorkflowResumed, state.WorkflowID, workflow.StepReview, string(state.ReviewDecision)).
		WithPayload("revision_round", state.RevisionRound))
	data := plugin.PluginData{
		WorkflowID: state.WorkflowID,
		UserID:     state.UserID,
		Step:       string(workflow.StepReview),
		Status:     string(state.ReviewDecision),
		Data:       map[string]interface{}{"revision_round": state.RevisionRound},
	}
	if state.RevisionNotes != "" {
		data.Data["notes"] = state.RevisionNotes
	}
	n.trigger(ctx, plugin.EventWorkflowResumed, data)
}

// StepFailed 步骤失败
func (n *LifecycleNotifier) StepFailed(ctx context.Context, record *workflow.ExecutionRecord) {
	n.trigger(ctx, plugin.EventStepFailed, plugin.PluginData{
		WorkflowID: record.WorkflowID,
		Step:       string(record.Step),
		Status:     string(record.Status),
		Error:      record.Error,
		Data:       map[string]interface{}{"action": record.Action, "duration_ms": record.DurationMs},
	})
}

// WorkflowSettled 实例挂起或终止
// 挂起的审核提醒由 ReviewChannel 负责，这里只推送事件
func (n *LifecycleNotifier) WorkflowSettled(ctx context.Context, outcome workflow.InstanceOutcome) {
	n.publish(realtime.OutcomeEvent(outcome))

	event, ok := outcomePluginEvent(outcome.Status)
	if !ok {
		return
	}
	data := plugin.PluginData{
		WorkflowID: outcome.WorkflowID,
		Step:       string(outcome.Step),
		Status:     string(outcome.Status),
		Error:      outcome.Error,
		Data:       map[string]interface{}{},
	}
	if st := outcome.State; st != nil {
		data.UserID = st.UserID
		data.Data["revision_round"] = st.RevisionRound
		if st.SelectedTopic != nil {
			data.Data["topic"] = st.SelectedTopic.Title
		}
		if title := st.Content.PrimaryTitle(); title != "" {
			data.Data["title"] = title
		}
		if st.PublishResult != nil && st.PublishResult.ID != "" {
			data.Data["publish_id"] = st.PublishResult.ID
		}
	}
	n.trigger(ctx, event, data)
}

func outcomePluginEvent(status workflow.OutcomeStatus) (plugin.TriggerEvent, bool) {
	switch status {
	case workflow.OutcomePublished:
		return plugin.EventWorkflowPublished, true
	case workflow.OutcomeBlocked:
		return plugin.EventWorkflowBlocked, true
	case workflow.OutcomeRejected:
		return plugin.EventWorkflowRejected, true
	case workflow.OutcomeRevisionExhausted:
		return plugin.EventWorkflowRevisionExhausted, true
	case workflow.OutcomeFailed:
		return plugin.EventWorkflowFailed, true
	default:
		return "", false
	}
}

func (n *LifecycleNotifier) publish(event *realtime.WorkflowEvent) {
	if n.bus == nil {
		return
	}
	if err := n.bus.Publish(event); err != nil {
		log.Printf("⚠️ [Notifier] 发布事件失败: Type=%s, WorkflowID=%s, Error=%v", event.Type, event.WorkflowID, err)
	}
}

// trigger 将插件调用放入队列；队列已满时丢弃并记录日志
func (n *LifecycleNotifier) trigger(_ context.Context, event plugin.TriggerEvent, data plugin.PluginData) {
	if n.plugins == nil {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- pluginCall{event: event, data: data}:
	default:
		log.Printf("⚠️ [Notifier] 插件通知队列已满，丢弃: Event=%s, WorkflowID=%s", event, data.WorkflowID)
	}
}

// RecordSink 执行记录落库并推送 step.completed 事件
type RecordSink struct {
	store types.LogSink
	bus   realtime.EventBus
}

// NewRecordSink 创建执行记录Sink，store 必填
func NewRecordSink(store types.LogSink, bus realtime.EventBus) *RecordSink {
	return &RecordSink{store: store, bus: bus}
}

// Append 实现 types.LogSink；只有落库失败才返回错误
func (s *RecordSink) Append(ctx context.Context, record *workflow.ExecutionRecord) error {
	if err := s.store.Append(ctx, record); err != nil {
		return err
	}
	if s.bus != nil {
		if err := s.bus.Publish(realtime.StepCompletedEvent(record)); err != nil {
			log.Printf("⚠️ [RecordSink] 推送步骤事件失败: WorkflowID=%s, Error=%v", record.WorkflowID, err)
		}
	}
	return nil
}

var (
	_ Observer      = (*LifecycleNotifier)(nil)
	_ types.LogSink = (*RecordSink)(nil)
)
