// Package executor 负责执行单个流水线步骤：超时控制、失败捕获与执行记录落库
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

const (
	defaultStepTimeout   = 60 * time.Second
	defaultCreateTimeout = 90 * time.Second
	defaultSinkTimeout   = 5 * time.Second
	defaultTopicCount    = 15
)

// RetryPolicy 发布步骤的重试策略
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Options 执行器配置
type Options struct {
	DefaultTimeout time.Duration                   // 未单独配置的步骤的超时
	StepTimeouts   map[workflow.Step]time.Duration // 按步骤覆盖超时
	SinkTimeout    time.Duration                   // 执行记录写入超时
	PublishRetry   RetryPolicy
	TopicCount     int // research 步骤请求的候选数量
}

func (o *Options) applyDefaults() {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = defaultStepTimeout
	}
	if o.StepTimeouts == nil {
		o.StepTimeouts = make(map[workflow.Step]time.Duration)
	}
	if o.StepTimeouts[workflow.StepCreate] <= 0 {
		o.StepTimeouts[workflow.StepCreate] = defaultCreateTimeout
	}
	if o.SinkTimeout <= 0 {
		o.SinkTimeout = defaultSinkTimeout
	}
	if o.PublishRetry.MaxAttempts <= 0 {
		o.PublishRetry.MaxAttempts = 3
	}
	if o.PublishRetry.InitialDelay <= 0 {
		o.PublishRetry.InitialDelay = time.Second
	}
	if o.PublishRetry.MaxDelay <= 0 {
		o.PublishRetry.MaxDelay = 10 * time.Second
	}
	if o.TopicCount <= 0 {
		o.TopicCount = defaultTopicCount
	}
}

// stepReport 步骤函数的执行摘要
type stepReport struct {
	Action string
	Status workflow.RecordStatus // 为空时记为 SUCCESS
	Output map[string]interface{}
	undo   func() // 步骤结果被丢弃时撤销其副作用（如选题占用）
}

func (r *stepReport) rollback() {
	if r != nil && r.undo != nil {
		r.undo()
	}
}

type stepFunc func(ctx context.Context, st *workflow.WorkflowState) (*stepReport, error)

type stepResult struct {
	report *stepReport
	err    error
}

// StepExecutor 步骤执行器（对外导出）
type StepExecutor struct {
	collab types.Collaborators
	sink   types.LogSink
	opts   Options
	steps  map[workflow.Step]stepFunc
}

// NewStepExecutor 创建步骤执行器
func NewStepExecutor(collab types.Collaborators, sink types.LogSink, opts Options) (*StepExecutor, error) {
	if err := collab.Validate(); err != nil {
		return nil, fmt.Errorf("创建StepExecutor失败: %w", err)
	}
	opts.applyDefaults()

	e := &StepExecutor{
		collab: collab,
		sink:   sink,
		opts:   opts,
	}
	e.steps = map[workflow.Step]stepFunc{
		workflow.StepResearch:          e.research,
		workflow.StepTopicCompliance:   e.topicCompliance,
		workflow.StepCreate:            e.create,
		workflow.StepContentCompliance: e.contentCompliance,
		workflow.StepReview:            e.review,
		workflow.StepPublish:           e.publish,
		workflow.StepAnalytics:         e.analytics,
	}
	return e, nil
}

// Timeout 返回步骤的超时时间
func (e *StepExecutor) Timeout(step workflow.Step) time.Duration {
	if d, ok := e.opts.StepTimeouts[step]; ok && d > 0 {
		return d
	}
	return e.opts.DefaultTimeout
}

// Execute 执行单个步骤，返回更新后的状态与本次执行记录
// 前置条件不满足时立即返回 ErrPrecondition，不执行步骤也不修改状态
// 步骤失败时返回设置了 error 的状态、FAILED 记录和 *workflow.StepError
func (e *StepExecutor) Execute(ctx context.Context, step workflow.Step, state *workflow.WorkflowState) (*workflow.WorkflowState, *workflow.ExecutionRecord, error) {
	if err := checkPrecondition(step, state); err != nil {
		return state, nil, err
	}
	fn := e.steps[step]

	input := describeInput(step, state)
	start := time.Now()
	timeout := e.Timeout(step)

	stepCtx, cancel := context.WithTimeout(WithStep(WithWorkflowID(ctx, state.WorkflowID), step), timeout)
	defer cancel()

	work := state.Clone()
	done := make(chan stepResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("❌ [StepExecutor] 步骤panic: WorkflowID=%s, Step=%s, Panic=%v\n%s", state.WorkflowID, step, r, debug.Stack())
				done <- stepResult{err: workflow.NewStepError(step, workflow.KindCollaboratorUnavailable, fmt.Errorf("panic: %v", r))}
			}
		}()
		report, err := fn(stepCtx, work)
		done <- stepResult{report: report, err: err}
	}()

	var res stepResult
	select {
	case res = <-done:
	case <-stepCtx.Done():
		res = stepResult{err: stepCtx.Err()}
		// 超时后才返回的结果不会被采用
		go func() {
			late := <-done
			late.report.rollback()
		}()
	}
	duration := time.Since(start)

	if res.err != nil {
		res.report.rollback()
		stepErr := classify(step, res.err)
		failed := state.Clone()
		failed.Error = stepErr.Error()
		failed.CurrentStep = step
		failed.UpdatedAt = time.Now()

		rec := workflow.NewExecutionRecord(state.WorkflowID, step, actionOf(step, res.report), workflow.RecordFailed)
		rec.Input = input
		if res.report != nil {
			rec.Output = res.report.Output
		}
		rec.Error = stepErr.Error()
		rec.DurationMs = duration.Milliseconds()
		e.emit(ctx, rec)

		log.Printf("❌ [StepExecutor] 步骤失败: WorkflowID=%s, Step=%s, Kind=%s, 耗时=%dms, 错误=%v",
			state.WorkflowID, step, stepErr.Kind, rec.DurationMs, stepErr.Err)
		return failed, rec, stepErr
	}

	work.CurrentStep = step
	work.UpdatedAt = time.Now()

	status := workflow.RecordSuccess
	if res.report != nil && res.report.Status != "" {
		status = res.report.Status
	}
	rec := workflow.NewExecutionRecord(state.WorkflowID, step, actionOf(step, res.report), status)
	rec.Input = input
	if res.report != nil {
		rec.Output = res.report.Output
	}
	rec.DurationMs = duration.Milliseconds()
	e.emit(ctx, rec)

	log.Printf("✅ [StepExecutor] 步骤完成: WorkflowID=%s, Step=%s, Status=%s, 耗时=%dms", state.WorkflowID, step, status, rec.DurationMs)
	return work, rec, nil
}

// emit 在有限时间内写入执行记录，写入失败只记录日志
func (e *StepExecutor) emit(ctx context.Context, rec *workflow.ExecutionRecord) {
	if e.sink == nil {
		return
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.SinkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.sink.Append(sinkCtx, rec)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("⚠️ [StepExecutor] 写入执行记录失败: WorkflowID=%s, Step=%s, Error=%v", rec.WorkflowID, rec.Step, err)
		}
	case <-sinkCtx.Done():
		log.Printf("⚠️ [StepExecutor] 写入执行记录超时: WorkflowID=%s, Step=%s", rec.WorkflowID, rec.Step)
	}
}

// classify 将任意错误归类为步骤错误
func classify(step workflow.Step, err error) *workflow.StepError {
	var se *workflow.StepError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, types.ErrGenerationTimeout) {
		return workflow.NewStepError(step, workflow.KindTimeout, err)
	}
	return workflow.NewStepError(step, workflow.KindCollaboratorUnavailable, err)
}

func actionOf(step workflow.Step, report *stepReport) string {
	if report != nil && report.Action != "" {
		return report.Action
	}
	return string(step)
}

// checkPrecondition 步骤前置条件检查
func checkPrecondition(step workflow.Step, s *workflow.WorkflowState) error {
	if s == nil {
		return fmt.Errorf("%w: nil state", workflow.ErrPrecondition)
	}
	if !step.IsValid() {
		return fmt.Errorf("%w: unknown step %q", workflow.ErrPrecondition, step)
	}
	if s.Failed() {
		return fmt.Errorf("%w: workflow %s already failed", workflow.ErrPrecondition, s.WorkflowID)
	}

	switch step {
	case workflow.StepTopicCompliance:
		if s.SelectedTopic == nil {
			return fmt.Errorf("%w: %s requires selected_topic", workflow.ErrPrecondition, step)
		}
	case workflow.StepCreate:
		if s.SelectedTopic == nil {
			return fmt.Errorf("%w: %s requires selected_topic", workflow.ErrPrecondition, step)
		}
		if s.RevisionRound >= workflow.MaxRevisionRounds {
			return fmt.Errorf("%w: revision_round %d reached the cap", workflow.ErrPrecondition, s.RevisionRound)
		}
	case workflow.StepContentCompliance, workflow.StepReview:
		if s.Content == nil {
			return fmt.Errorf("%w: %s requires content", workflow.ErrPrecondition, step)
		}
	case workflow.StepPublish:
		if s.Content == nil {
			return fmt.Errorf("%w: %s requires content", workflow.ErrPrecondition, step)
		}
		if s.ReviewDecision != workflow.DecisionApproved {
			return fmt.Errorf("%w: %s requires an approved review", workflow.ErrPrecondition, step)
		}
	case workflow.StepAnalytics:
		if !s.Published {
			return fmt.Errorf("%w: %s requires a published workflow", workflow.ErrPrecondition, step)
		}
	}
	return nil
}

// describeInput 记录步骤输入快照
func describeInput(step workflow.Step, s *workflow.WorkflowState) map[string]interface{} {
	in := map[string]interface{}{}
	switch step {
	case workflow.StepResearch:
		in["user_id"] = s.UserID
		in["recent_topics"] = len(s.RecentTopics)
	case workflow.StepTopicCompliance:
		in["title"] = s.SelectedTopic.Title
	case workflow.StepCreate:
		in["topic"] = s.SelectedTopic.Title
		in["revision_round"] = s.RevisionRound
		if s.RevisionNotes != "" {
			in["revision_notes"] = s.RevisionNotes
		}
	case workflow.StepContentCompliance:
		in["titles"] = s.Content.Titles
		in["body_length"] = len([]rune(s.Content.Body))
	case workflow.StepReview:
		in["revision_round"] = s.RevisionRound
	case workflow.StepPublish:
		in["title"] = s.Content.PrimaryTitle()
		in["tags"] = s.Content.Tags
	case workflow.StepAnalytics:
		in["published"] = s.Published
	}
	return in
}
