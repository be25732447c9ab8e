package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/executor"
	"github.com/LENAX/content-pipeline/pkg/core/realtime"
	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/plugin"
	"github.com/LENAX/content-pipeline/pkg/storage"
)

var (
	// ErrNotRunning 引擎未启动
	ErrNotRunning = errors.New("引擎未启动")
	// ErrInvalidRequest 调用参数非法
	ErrInvalidRequest = errors.New("invalid request")
)

// Dependencies Engine依赖（显式注入，由宿主进程管理生命周期）
type Dependencies struct {
	Collaborators types.Collaborators
	Snapshots     suspension.Store
	Records       storage.ExecutionRecordRepository
	Bus           realtime.EventBus    // 可选
	Plugins       plugin.PluginManager // 可选
	Executor      executor.Options
	Coordinator   CoordinatorOptions
	Jobs          []BatchJob // 可选：定时批量任务
}

// Engine 内容流水线引擎（对外导出）
type Engine struct {
	workflows     *WorkflowEngine
	coordinator   *InstanceCoordinator
	snapshots     suspension.Store
	records       storage.ExecutionRecordRepository
	bus           realtime.EventBus
	pluginManager plugin.PluginManager
	cronScheduler *CronScheduler
	notifier      *LifecycleNotifier
	closers       []func() error
	running       bool
	mu            sync.RWMutex
}

// NewEngine 创建Engine实例（对外导出）
func NewEngine(deps Dependencies) (*Engine, error) {
	if deps.Snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}
	if deps.Records == nil {
		return nil, errors.New("execution record repository is required")
	}
	if deps.Plugins != nil && deps.Collaborators.Review == nil {
		deps.Collaborators.Review = plugin.NewReviewNotifier(deps.Plugins)
	}

	sink := NewRecordSink(deps.Records, deps.Bus)
	exec, err := executor.NewStepExecutor(deps.Collaborators, sink, deps.Executor)
	if err != nil {
		return nil, err
	}

	notifier := NewLifecycleNotifier(deps.Bus, deps.Plugins)
	wf, err := NewWorkflowEngine(exec, deps.Snapshots,
		WithObserver(notifier),
		WithDecisionSink(sink),
	)
	if err != nil {
		_ = notifier.Close(context.Background())
		return nil, err
	}

	eng := &Engine{
		workflows:     wf,
		coordinator:   NewInstanceCoordinator(wf, deps.Snapshots, deps.Coordinator),
		snapshots:     deps.Snapshots,
		records:       deps.Records,
		bus:           deps.Bus,
		pluginManager: deps.Plugins,
		notifier:      notifier,
	}
	eng.cronScheduler = NewCronScheduler(eng)
	for _, job := range deps.Jobs {
		if err := eng.cronScheduler.RegisterJob(job); err != nil {
			_ = notifier.Close(context.Background())
			return nil, err
		}
	}
	return eng, nil
}

// OnClose 注册Stop时执行的清理函数（如关闭数据库连接）
func (e *Engine) OnClose(fn func() error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closers = append(e.closers, fn)
}

// Start 启动引擎（对外导出）
// 启动时将上次进程中断的实例标记为失败，然后启动定时调度器
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	if _, err := e.workflows.RecoverInterrupted(ctx); err != nil {
		// 不阻止启动，仅记录日志
		log.Printf("⚠️ [Engine] 恢复中断实例失败: %v", err)
	}

	e.cronScheduler.Start()
	e.running = true
	log.Println("✅ [Engine] 内容流水线引擎已启动")
	return nil
}

// Stop 停止引擎（对外导出）
// 停止定时调度，取消并等待异步实例，关闭事件总线和存储
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return errors.Join(e.notifier.Close(ctx), e.closeAll())
	}
	e.running = false

	e.cronScheduler.Stop()

	var errs []error
	if err := e.coordinator.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.notifier.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.closeAll(); err != nil {
		errs = append(errs, err)
	}

	log.Println("✅ [Engine] 内容流水线引擎已停止")
	return errors.Join(errs...)
}

func (e *Engine) closeAll() error {
	var errs []error
	if e.bus != nil {
		if err := e.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭事件总线失败: %w", err))
		}
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// IsRunning 引擎是否已启动
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// StartWorkflow 异步启动实例，返回 workflow_id（对外导出）
func (e *Engine) StartWorkflow(ctx context.Context, userID string, recentTopics []string) (string, error) {
	if !e.IsRunning() {
		return "", ErrNotRunning
	}
	return e.coordinator.StartWorkflow(ctx, userID, recentTopics)
}

// RunWorkflow 同步执行实例直到挂起或终止（对外导出）
func (e *Engine) RunWorkflow(ctx context.Context, userID string, recentTopics []string) (workflow.InstanceOutcome, error) {
	if !e.IsRunning() {
		return workflow.InstanceOutcome{}, ErrNotRunning
	}
	return e.coordinator.RunWorkflow(ctx, userID, recentTopics)
}

// StartBatch 批量执行实例，全部结束后返回（对外导出）
func (e *Engine) StartBatch(ctx context.Context, userID string, count int) (workflow.BatchResult, error) {
	if !e.IsRunning() {
		return workflow.BatchResult{}, ErrNotRunning
	}
	return e.coordinator.StartBatch(ctx, userID, count)
}

// Resume 提交审核结论（对外导出）
func (e *Engine) Resume(ctx context.Context, workflowID string, decision workflow.ReviewDecision, notes string, expectedVersion int) (workflow.InstanceOutcome, error) {
	if !e.IsRunning() {
		return workflow.InstanceOutcome{}, ErrNotRunning
	}
	return e.workflows.Resume(ctx, workflowID, decision, notes, expectedVersion)
}

// Status 查询实例状态（对外导出）
func (e *Engine) Status(ctx context.Context, workflowID string) (*workflow.StatusView, error) {
	return e.workflows.Status(ctx, workflowID)
}

// ListWorkflows 分页查询实例快照
func (e *Engine) ListWorkflows(ctx context.Context, filter suspension.ListFilter) ([]*workflow.StatusView, int, error) {
	snaps, total, err := e.snapshots.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("查询实例列表失败: %w", err)
	}
	views := make([]*workflow.StatusView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, snapshotView(snap))
	}
	return views, total, nil
}

// WorkflowLogs 查询单个实例的执行记录（按时间正序）
func (e *Engine) WorkflowLogs(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error) {
	if _, err := e.snapshots.Get(ctx, workflowID); err != nil {
		return nil, err
	}
	return e.records.ListByWorkflow(ctx, workflowID)
}

// ListLogs 按条件分页查询执行记录
func (e *Engine) ListLogs(ctx context.Context, filter storage.RecordFilter) ([]*workflow.ExecutionRecord, int, error) {
	return e.records.ListRecords(ctx, filter)
}

// Graph 返回步骤图的Mermaid描述
func (e *Engine) Graph() string {
	return workflow.MermaidGraph()
}

// Events 订阅工作流事件，ctx 取消时关闭通道
func (e *Engine) Events(ctx context.Context) (<-chan *realtime.WorkflowEvent, error) {
	if e.bus == nil {
		return nil, errors.New("事件总线未配置")
	}
	return e.bus.Subscribe(ctx)
}

// GetPluginManager 获取插件管理器（对外导出）
func (e *Engine) GetPluginManager() plugin.PluginManager {
	return e.pluginManager
}

// GetCronScheduler 获取定时调度器
func (e *Engine) GetCronScheduler() *CronScheduler {
	return e.cronScheduler
}

// ListJobs 定时任务列表（含下次执行时间）
func (e *Engine) ListJobs() []JobInfo {
	return e.cronScheduler.ListJobs()
}

// RunJob 手动触发定时任务
func (e *Engine) RunJob(name string) (JobExecution, error) {
	if !e.IsRunning() {
		return JobExecution{}, ErrNotRunning
	}
	return e.cronScheduler.RunJob(name)
}

// JobExecutions 定时任务最近的执行记录
func (e *Engine) JobExecutions(limit int) []JobExecution {
	return e.cronScheduler.Executions(limit)
}

// SchedulerStatus 定时调度器状态
func (e *Engine) SchedulerStatus() SchedulerStatus {
	return e.cronScheduler.Status()
}

// InFlight 正在执行的实例数
func (e *Engine) InFlight() int {
	return e.workflows.InFlight()
}

// Ping 检查存储可用性
func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, _, err := e.snapshots.List(ctx, suspension.ListFilter{Limit: 1}); err != nil {
		return fmt.Errorf("快照存储不可用: %w", err)
	}
	return nil
}

var _ types.WorkflowInstanceManager = (*Engine)(nil)
