package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/executor"
	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// interruptedError 进程退出导致未完成的实例
const interruptedError = "workflow interrupted by engine restart"

// WorkflowEngine 单实例状态机（对外导出）
// Run 从 research 执行到挂起或终止；Resume 领取挂起快照后继续执行
// 同一 workflow_id 的 run/resume 通过按ID加锁串行执行
type WorkflowEngine struct {
	exec     *executor.StepExecutor
	store    suspension.Store
	sink     types.LogSink
	observer Observer
	locks    *keyedMutex
	inflight sync.Map // workflow_id -> workflow.Step
}

// WorkflowEngineOption 引擎选项
type WorkflowEngineOption func(*WorkflowEngine)

// WithObserver 设置生命周期观察者
func WithObserver(o Observer) WorkflowEngineOption {
	return func(w *WorkflowEngine) {
		w.observer = o
	}
}

// WithDecisionSink 设置审核结论的记录写入目标
func WithDecisionSink(sink types.LogSink) WorkflowEngineOption {
	return func(w *WorkflowEngine) {
		w.sink = sink
	}
}

// NewWorkflowEngine 创建工作流引擎
func NewWorkflowEngine(exec *executor.StepExecutor, store suspension.Store, opts ...WorkflowEngineOption) (*WorkflowEngine, error) {
	if exec == nil {
		return nil, errors.New("step executor is required")
	}
	if store == nil {
		return nil, errors.New("suspension store is required")
	}
	w := &WorkflowEngine{
		exec:  exec,
		store: store,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run 从 research 开始执行一个新实例，直到挂起或终止
// 返回值总是一个完整的 InstanceOutcome，不会向外抛出panic
func (w *WorkflowEngine) Run(ctx context.Context, state *workflow.WorkflowState) workflow.InstanceOutcome {
	admitted, err := w.Admit(ctx, state)
	if err != nil {
		id := ""
		if state != nil {
			id = state.WorkflowID
		}
		return workflow.FailedOutcome(id, workflow.StepResearch, state, err)
	}
	return w.RunAdmitted(ctx, admitted)
}

// Admit 写入实例的初始 running 快照，返回后即可按ID查询
// ID 已存在返回 ErrConflict；返回的状态交给 RunAdmitted 执行
func (w *WorkflowEngine) Admit(ctx context.Context, state *workflow.WorkflowState) (*workflow.WorkflowState, error) {
	if state == nil || state.WorkflowID == "" {
		return nil, fmt.Errorf("%w: workflow state without id", workflow.ErrPrecondition)
	}
	id := state.WorkflowID

	unlock := w.locks.Lock(id)
	defer unlock()

	if _, err := w.store.Get(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: workflow %s already exists", workflow.ErrConflict, id)
	} else if !errors.Is(err, workflow.ErrNotFound) {
		return nil, fmt.Errorf("查询快照失败: %w", err)
	}

	state = state.Clone()
	state.CurrentStep = workflow.StepResearch
	if err := w.save(ctx, state, suspension.StatusRunning, workflow.StepResearch, ""); err != nil {
		return nil, err
	}
	w.inflight.Store(id, workflow.StepResearch)
	return state, nil
}

// RunAdmitted 执行已通过 Admit 登记的实例
func (w *WorkflowEngine) RunAdmitted(ctx context.Context, state *workflow.WorkflowState) (outcome workflow.InstanceOutcome) {
	id := state.WorkflowID

	unlock := w.locks.Lock(id)
	defer unlock()
	defer w.recoverOutcome(id, state, &outcome)

	log.Printf("🚀 [WorkflowEngine] 实例开始执行: WorkflowID=%s, UserID=%s", id, state.UserID)
	if w.observer != nil {
		w.observer.WorkflowStarted(ctx, state)
	}
	return w.loop(ctx, state, workflow.StepResearch)
}

// Resume 提交审核结论并继续执行挂起的实例
// expectedVersion > 0 时要求快照版本一致，否则返回 ErrConflict
// 调用方错误（NotFound/Conflict/非法结论）通过 error 返回，执行结果通过 outcome 返回
func (w *WorkflowEngine) Resume(ctx context.Context, workflowID string, decision workflow.ReviewDecision, notes string, expectedVersion int) (outcome workflow.InstanceOutcome, err error) {
	if !decision.IsValid() {
		return workflow.InstanceOutcome{}, fmt.Errorf("%w: %q", workflow.ErrInvalidDecision, decision)
	}

	unlock := w.locks.Lock(workflowID)
	defer unlock()

	if expectedVersion > 0 {
		snap, err := w.store.Get(ctx, workflowID)
		if err != nil {
			return workflow.InstanceOutcome{}, err
		}
		if snap.Version != expectedVersion {
			return workflow.InstanceOutcome{}, fmt.Errorf("%w: workflow %s version is %d, expected %d", workflow.ErrConflict, workflowID, snap.Version, expectedVersion)
		}
	}

	snap, err := w.store.Claim(ctx, workflowID)
	if err != nil {
		return workflow.InstanceOutcome{}, err
	}
	if snap.State == nil {
		return workflow.InstanceOutcome{}, fmt.Errorf("%w: snapshot of %s has no state", workflow.ErrConflict, workflowID)
	}

	state := snap.State.Clone()
	state.ReviewDecision = decision
	state.RevisionNotes = notes
	state.UpdatedAt = time.Now()
	defer w.recoverOutcome(workflowID, state, &outcome)

	log.Printf("🔄 [WorkflowEngine] 实例恢复执行: WorkflowID=%s, Decision=%s, Round=%d", workflowID, decision, state.RevisionRound)
	w.recordDecision(ctx, state)
	if w.observer != nil {
		w.observer.WorkflowResumed(ctx, state)
	}

	tr := workflow.Route(workflow.StepReview, state)
	switch tr.Kind {
	case workflow.TransitionContinue:
		return w.loop(ctx, state, tr.Next), nil
	case workflow.TransitionTerminate:
		return w.finish(ctx, state, workflow.StepReview, tr.Outcome, nil), nil
	default:
		// 合法结论不会再次挂起
		return w.finish(ctx, state, workflow.StepReview, workflow.OutcomeFailed, fmt.Errorf("unexpected transition %s", tr)), nil
	}
}

// loop 从 step 开始顺序执行，直到挂起或终止
func (w *WorkflowEngine) loop(ctx context.Context, state *workflow.WorkflowState, step workflow.Step) workflow.InstanceOutcome {
	id := state.WorkflowID
	defer w.inflight.Delete(id)

	for {
		w.inflight.Store(id, step)

		if err := ctx.Err(); err != nil {
			state = state.Clone()
			state.Error = fmt.Sprintf("workflow cancelled before %s: %v", step, err)
			return w.finish(ctx, state, step, workflow.OutcomeFailed, err)
		}

		next, rec, err := w.exec.Execute(ctx, step, state)
		if err != nil {
			if errors.Is(err, workflow.ErrPrecondition) {
				next = state.Clone()
				next.Error = err.Error()
			}
			if rec != nil && w.observer != nil {
				w.observer.StepFailed(ctx, rec)
			}
			return w.finish(ctx, next, step, workflow.OutcomeFailed, err)
		}
		state = next

		tr := workflow.Route(step, state)
		switch tr.Kind {
		case workflow.TransitionContinue:
			log.Printf("➡️ [WorkflowEngine] 步骤迁移: WorkflowID=%s, %s %s", id, step, tr)
			step = tr.Next
		case workflow.TransitionSuspend:
			return w.suspend(ctx, state)
		default:
			return w.finish(ctx, state, step, tr.Outcome, nil)
		}
	}
}

// suspend 持久化挂起快照，持久化失败时实例失败
func (w *WorkflowEngine) suspend(ctx context.Context, state *workflow.WorkflowState) workflow.InstanceOutcome {
	state.CurrentStep = workflow.StepReview
	if err := w.save(ctx, state, suspension.StatusSuspended, workflow.StepReview, ""); err != nil {
		failed := state.Clone()
		failed.Error = err.Error()
		return w.finish(ctx, failed, workflow.StepReview, workflow.OutcomeFailed, err)
	}

	outcome := workflow.InstanceOutcome{
		WorkflowID: state.WorkflowID,
		Status:     workflow.OutcomeSuspended,
		Step:       workflow.StepReview,
		State:      state,
	}
	log.Printf("⏸️ [WorkflowEngine] 实例已挂起等待审核: WorkflowID=%s, Round=%d", state.WorkflowID, state.RevisionRound)
	if w.observer != nil {
		w.observer.WorkflowSettled(ctx, outcome)
	}
	return outcome
}

// finish 写入终止快照并返回终态结果
func (w *WorkflowEngine) finish(ctx context.Context, state *workflow.WorkflowState, step workflow.Step, status workflow.OutcomeStatus, cause error) workflow.InstanceOutcome {
	if status == workflow.OutcomeFailed && state.Error == "" {
		msg := "workflow failed"
		if cause != nil {
			msg = cause.Error()
		}
		state = state.Clone()
		state.Error = msg
	}
	state.UpdatedAt = time.Now()

	if err := w.save(ctx, state, suspension.StatusTerminated, step, status); err != nil {
		log.Printf("⚠️ [WorkflowEngine] 写入终止快照失败: WorkflowID=%s, Error=%v", state.WorkflowID, err)
	}

	outcome := workflow.InstanceOutcome{
		WorkflowID: state.WorkflowID,
		Status:     status,
		Step:       step,
		State:      state,
		Error:      state.Error,
	}
	if status.IsFailure() {
		log.Printf("❌ [WorkflowEngine] 实例失败: WorkflowID=%s, Step=%s, Error=%s", state.WorkflowID, step, state.Error)
	} else {
		log.Printf("✅ [WorkflowEngine] 实例结束: WorkflowID=%s, Step=%s, Outcome=%s", state.WorkflowID, step, status)
	}
	if w.observer != nil {
		w.observer.WorkflowSettled(ctx, outcome)
	}
	return outcome
}

// save 写入快照，取消的ctx不影响落库
func (w *WorkflowEngine) save(ctx context.Context, state *workflow.WorkflowState, status suspension.Status, step workflow.Step, outcome workflow.OutcomeStatus) error {
	snap := suspension.NewSnapshot(state.Clone(), status, step)
	snap.Outcome = outcome
	if err := w.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		return fmt.Errorf("保存快照失败: WorkflowID=%s, Status=%s: %w", state.WorkflowID, status, err)
	}
	return nil
}

// recordDecision 记录审核结论，写入失败只记录日志
func (w *WorkflowEngine) recordDecision(ctx context.Context, state *workflow.WorkflowState) {
	if w.sink == nil {
		return
	}
	rec := workflow.NewExecutionRecord(state.WorkflowID, workflow.StepReview, "submit_decision", workflow.RecordSuccess)
	rec.Input = map[string]interface{}{
		"decision":       string(state.ReviewDecision),
		"revision_round": state.RevisionRound,
	}
	if state.RevisionNotes != "" {
		rec.Input["notes"] = state.RevisionNotes
	}
	if err := w.sink.Append(context.WithoutCancel(ctx), rec); err != nil {
		log.Printf("⚠️ [WorkflowEngine] 写入审核记录失败: WorkflowID=%s, Error=%v", state.WorkflowID, err)
	}
}

// recoverOutcome 兜底：循环内任何panic都转为失败结果
func (w *WorkflowEngine) recoverOutcome(id string, state *workflow.WorkflowState, outcome *workflow.InstanceOutcome) {
	r := recover()
	if r == nil {
		return
	}
	w.inflight.Delete(id)
	log.Printf("❌ [WorkflowEngine] 引擎循环panic: WorkflowID=%s, Panic=%v\n%s", id, r, debug.Stack())
	failed := state.Clone()
	if failed == nil {
		failed = &workflow.WorkflowState{WorkflowID: id}
	}
	failed.Error = fmt.Sprintf("engine panic: %v", r)
	if err := w.save(context.Background(), failed, suspension.StatusTerminated, failed.CurrentStep, workflow.OutcomeFailed); err != nil {
		log.Printf("⚠️ [WorkflowEngine] 写入终止快照失败: WorkflowID=%s, Error=%v", id, err)
	}
	*outcome = workflow.FailedOutcome(id, failed.CurrentStep, failed, errors.New(failed.Error))
}

// Status 查询实例状态
func (w *WorkflowEngine) Status(ctx context.Context, workflowID string) (*workflow.StatusView, error) {
	snap, err := w.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	view := snapshotView(snap)
	if step, ok := w.inflight.Load(workflowID); ok {
		view.InFlight = true
		view.Step = step.(workflow.Step)
	}
	return view, nil
}

// InFlight 当前正在执行的实例数
func (w *WorkflowEngine) InFlight() int {
	n := 0
	w.inflight.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// RecoverInterrupted 将上次进程遗留的 running/resumed 快照标记为失败
// 只处理当前进程中没有在执行的实例
func (w *WorkflowEngine) RecoverInterrupted(ctx context.Context) (int, error) {
	recovered := 0
	for _, status := range []suspension.Status{suspension.StatusRunning, suspension.StatusResumed} {
		snaps, err := w.listAll(ctx, status)
		if err != nil {
			return recovered, fmt.Errorf("查询%s状态快照失败: %w", status, err)
		}
		for _, snap := range snaps {
			if _, running := w.inflight.Load(snap.WorkflowID); running {
				continue
			}
			if w.markInterrupted(ctx, snap) {
				recovered++
			}
		}
	}
	if recovered > 0 {
		log.Printf("⚠️ [WorkflowEngine] 已将%d个中断的实例标记为失败", recovered)
	}
	return recovered, nil
}

func (w *WorkflowEngine) markInterrupted(ctx context.Context, snap *suspension.Snapshot) bool {
	unlock := w.locks.Lock(snap.WorkflowID)
	defer unlock()

	state := snap.State
	if state == nil {
		state = &workflow.WorkflowState{WorkflowID: snap.WorkflowID, UserID: snap.UserID}
	}
	state = state.Clone()
	state.Error = interruptedError
	if err := w.save(ctx, state, suspension.StatusTerminated, snap.Step, workflow.OutcomeFailed); err != nil {
		log.Printf("⚠️ [WorkflowEngine] 标记中断实例失败: WorkflowID=%s, Error=%v", snap.WorkflowID, err)
		return false
	}
	return true
}

// listAll 分页读取全部指定状态的快照
func (w *WorkflowEngine) listAll(ctx context.Context, status suspension.Status) ([]*suspension.Snapshot, error) {
	const pageSize = 200
	var all []*suspension.Snapshot
	for offset := 0; ; offset += pageSize {
		page, total, err := w.store.List(ctx, suspension.ListFilter{Status: status, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize || offset+len(page) >= total {
			return all, nil
		}
	}
}

// snapshotView 快照转换为状态视图
func snapshotView(snap *suspension.Snapshot) *workflow.StatusView {
	view := &workflow.StatusView{
		WorkflowID: snap.WorkflowID,
		UserID:     snap.UserID,
		Status:     string(snap.Status),
		Step:       snap.Step,
		Outcome:    snap.Outcome,
		Error:      snap.Error,
		Version:    snap.Version,
		UpdatedAt:  snap.UpdatedAt,
		State:      snap.State,
	}
	if snap.State != nil {
		view.RevisionRound = snap.State.RevisionRound
	}
	return view
}
