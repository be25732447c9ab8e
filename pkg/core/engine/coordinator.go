package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/LENAX/content-pipeline/pkg/core/executor"
	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

const (
	defaultBatchConcurrency = 5
	defaultMaxBatchSize     = 50
	defaultRecentWindow     = 20
)

// CoordinatorOptions 实例协调器配置
type CoordinatorOptions struct {
	BatchConcurrency  int // 批量执行的并发上限
	MaxBatchSize      int // 单次批量的最大数量
	RecentTopicWindow int // 选题去重参考的最近快照数量
}

func (o *CoordinatorOptions) applyDefaults() {
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = defaultBatchConcurrency
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = defaultMaxBatchSize
	}
	if o.RecentTopicWindow <= 0 {
		o.RecentTopicWindow = defaultRecentWindow
	}
}

// InstanceCoordinator 创建实例并驱动执行，支持批量扇出
type InstanceCoordinator struct {
	engine *WorkflowEngine
	store  suspension.Store
	opts   CoordinatorOptions

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// NewInstanceCoordinator 创建实例协调器
func NewInstanceCoordinator(engine *WorkflowEngine, store suspension.Store, opts CoordinatorOptions) *InstanceCoordinator {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &InstanceCoordinator{
		engine:  engine,
		store:   store,
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// StartWorkflow 异步启动一个实例，立即返回 workflow_id
// 实例在协调器的生命周期内执行，Shutdown 会取消并等待它
func (c *InstanceCoordinator) StartWorkflow(ctx context.Context, userID string, recentTopics []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", errors.New("instance coordinator is shut down")
	}

	state, err := c.newState(ctx, userID, recentTopics)
	if err != nil {
		return "", err
	}
	// 返回ID前写入 running 快照，调用方立即查询不会得到 NotFound
	admitted, err := c.engine.Admit(ctx, state)
	if err != nil {
		return "", err
	}

	ledger := executor.NewTopicLedger(admitted.RecentTopics)
	runCtx := executor.WithTopicLedger(c.baseCtx, ledger)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runIsolated(runCtx, admitted, c.engine.RunAdmitted)
	}()
	return admitted.WorkflowID, nil
}

// RunWorkflow 同步执行一个实例直到挂起或终止
func (c *InstanceCoordinator) RunWorkflow(ctx context.Context, userID string, recentTopics []string) (workflow.InstanceOutcome, error) {
	state, err := c.newState(ctx, userID, recentTopics)
	if err != nil {
		return workflow.InstanceOutcome{}, err
	}
	ctx = executor.WithTopicLedger(ctx, executor.NewTopicLedger(state.RecentTopics))
	return c.runIsolated(ctx, state, c.engine.Run), nil
}

// StartBatch 并发执行 count 个独立实例，全部结束后返回汇总
// 实例之间共享选题账本；单个实例失败或panic不影响其他实例
func (c *InstanceCoordinator) StartBatch(ctx context.Context, userID string, count int) (workflow.BatchResult, error) {
	if count <= 0 || count > c.opts.MaxBatchSize {
		return workflow.BatchResult{}, fmt.Errorf("%w: 批量数量必须在1到%d之间: %d", ErrInvalidRequest, c.opts.MaxBatchSize, count)
	}
	if userID == "" {
		return workflow.BatchResult{}, fmt.Errorf("%w: user_id不能为空", ErrInvalidRequest)
	}

	recent := c.recentTopics(ctx)
	ledger := executor.NewTopicLedger(recent)
	batchCtx := executor.WithTopicLedger(ctx, ledger)

	log.Printf("🚀 [Coordinator] 批量执行开始: UserID=%s, Count=%d, 并发=%d, 已用选题=%d", userID, count, c.opts.BatchConcurrency, len(recent))

	outcomes := make([]workflow.InstanceOutcome, count)
	g := new(errgroup.Group)
	g.SetLimit(c.opts.BatchConcurrency)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			state := workflow.NewWorkflowState(workflow.NewWorkflowID(), userID, recent)
			outcomes[i] = c.runIsolated(batchCtx, state, c.engine.Run)
			return nil
		})
	}
	_ = g.Wait()

	result := workflow.NewBatchResult(outcomes)
	log.Printf("✅ [Coordinator] 批量执行结束: UserID=%s, 成功=%d, 失败=%d", userID, result.Succeeded, result.Failed)
	return result, nil
}

type runFunc func(ctx context.Context, state *workflow.WorkflowState) workflow.InstanceOutcome

// runIsolated 执行单个实例，panic 转为失败结果
func (c *InstanceCoordinator) runIsolated(ctx context.Context, state *workflow.WorkflowState, run runFunc) (outcome workflow.InstanceOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [Coordinator] 实例panic: WorkflowID=%s, Panic=%v\n%s", state.WorkflowID, r, debug.Stack())
			outcome = workflow.FailedOutcome(state.WorkflowID, state.CurrentStep, state, fmt.Errorf("instance panic: %v", r))
		}
	}()
	return run(ctx, state)
}

// newState 创建初始状态；未指定最近选题时从历史快照补充
func (c *InstanceCoordinator) newState(ctx context.Context, userID string, recentTopics []string) (*workflow.WorkflowState, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id不能为空", ErrInvalidRequest)
	}
	if recentTopics == nil {
		recentTopics = c.recentTopics(ctx)
	}
	return workflow.NewWorkflowState(workflow.NewWorkflowID(), userID, recentTopics), nil
}

// recentTopics 最近 N 个快照中已选用的选题
func (c *InstanceCoordinator) recentTopics(ctx context.Context) []string {
	if c.store == nil {
		return nil
	}
	snaps, _, err := c.store.List(ctx, suspension.ListFilter{Limit: c.opts.RecentTopicWindow})
	if err != nil {
		log.Printf("⚠️ [Coordinator] 读取最近选题失败: %v", err)
		return nil
	}
	seen := make(map[string]struct{}, len(snaps))
	topics := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		if snap.State == nil || snap.State.SelectedTopic == nil {
			continue
		}
		title := snap.State.SelectedTopic.Title
		if _, ok := seen[title]; ok || title == "" {
			continue
		}
		seen[title] = struct{}{}
		topics = append(topics, title)
	}
	return topics
}

// Shutdown 取消异步实例并等待结束
func (c *InstanceCoordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待异步实例结束超时: %w", ctx.Err())
	}
}
