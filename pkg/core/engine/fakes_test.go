package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/core/executor"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage/memory"
)

type stubTopics struct {
	calls  atomic.Int32
	failOn int32         // 第N次调用失败，0表示不失败
	gate   chan struct{} // 非nil时等待关闭后才返回
}

func (s *stubTopics) Discover(ctx context.Context, count int) ([]workflow.TopicCandidate, error) {
	n := s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.failOn > 0 && n == s.failOn {
		return nil, fmt.Errorf("hot list down: %w", types.ErrSourceUnavailable)
	}
	all := make([]workflow.TopicCandidate, 0, 10)
	for i := 0; i < 10; i++ {
		all = append(all, workflow.TopicCandidate{Title: fmt.Sprintf("热点%02d", i), Source: "weibo", Score: float64(100 - i)})
	}
	if count > 0 && count < len(all) {
		all = all[:count]
	}
	return all, nil
}

type stubGenerator struct {
	calls atomic.Int32
	mu    sync.Mutex
	reqs  []types.GenerateRequest
}

func (s *stubGenerator) Generate(_ context.Context, req types.GenerateRequest) (*types.Draft, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	return &types.Draft{
		Titles: []string{fmt.Sprintf("%s 第%d版", req.Topic.Title, req.RevisionRound)},
		Body:   "姐妹们！今天聊聊日常打理钱的小方法，理财有风险，投资需谨慎。",
		Tags:   []string{"理财"},
	}, nil
}

func (s *stubGenerator) requests() []types.GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.GenerateRequest(nil), s.reqs...)
}

type stubChecker struct {
	block bool
}

func (s *stubChecker) Check(_ context.Context, _ types.ComplianceSubject) (*workflow.ComplianceVerdict, error) {
	if s.block {
		return &workflow.ComplianceVerdict{Status: workflow.ComplianceBlock, RiskLevel: workflow.RiskHigh, Issues: []string{"包含敏感词"}}, nil
	}
	return &workflow.ComplianceVerdict{Status: workflow.CompliancePass, RiskLevel: workflow.RiskLow}, nil
}

type stubReview struct {
	mu      sync.Mutex
	notices []types.ReviewNotice
}

func (s *stubReview) NotifyReview(_ context.Context, n types.ReviewNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	return nil
}

func (s *stubReview) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notices)
}

type stubPublisher struct {
	calls atomic.Int32
	fail  bool
}

func (s *stubPublisher) Publish(_ context.Context, req types.PublishRequest) (*workflow.PublishResult, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, errors.New("mcp unreachable")
	}
	return &workflow.PublishResult{Success: true, ID: "note-" + req.WorkflowID}, nil
}

// recordingObserver 记录生命周期回调
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	resumed  []string
	failed   []workflow.Step
	outcomes []workflow.InstanceOutcome
}

func (o *recordingObserver) WorkflowStarted(_ context.Context, s *workflow.WorkflowState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, s.WorkflowID)
}

func (o *recordingObserver) WorkflowResumed(_ context.Context, s *workflow.WorkflowState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resumed = append(o.resumed, s.WorkflowID)
}

func (o *recordingObserver) StepFailed(_ context.Context, rec *workflow.ExecutionRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, rec.Step)
}

func (o *recordingObserver) WorkflowSettled(_ context.Context, out workflow.InstanceOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

type harness struct {
	topics    *stubTopics
	generator *stubGenerator
	topicChk  *stubChecker
	contChk   *stubChecker
	review    *stubReview
	publisher *stubPublisher
	snapshots *memory.SnapshotStore
	records   *memory.ExecutionLog
	observer  *recordingObserver
}

func newHarness() *harness {
	return &harness{
		topics:    &stubTopics{},
		generator: &stubGenerator{},
		topicChk:  &stubChecker{},
		contChk:   &stubChecker{},
		review:    &stubReview{},
		publisher: &stubPublisher{},
		snapshots: memory.NewSnapshotStore(),
		records:   memory.NewExecutionLog(),
		observer:  &recordingObserver{},
	}
}

func (h *harness) collaborators() types.Collaborators {
	return types.Collaborators{
		Topics:            h.topics,
		Generator:         h.generator,
		TopicCompliance:   h.topicChk,
		ContentCompliance: h.contChk,
		Review:            h.review,
		Publisher:         h.publisher,
	}
}

func (h *harness) executorOptions() executor.Options {
	return executor.Options{
		DefaultTimeout: 5 * time.Second,
		SinkTimeout:    time.Second,
		PublishRetry:   executor.RetryPolicy{MaxAttempts: 2, InitialDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond},
	}
}

func (h *harness) workflowEngine(t *testing.T) *WorkflowEngine {
	t.Helper()
	exec, err := executor.NewStepExecutor(h.collaborators(), h.records, h.executorOptions())
	require.NoError(t, err)
	w, err := NewWorkflowEngine(exec, h.snapshots, WithObserver(h.observer), WithDecisionSink(h.records))
	require.NoError(t, err)
	return w
}

func (h *harness) engine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(Dependencies{
		Collaborators: h.collaborators(),
		Snapshots:     h.snapshots,
		Records:       h.records,
		Executor:      h.executorOptions(),
		Coordinator:   CoordinatorOptions{BatchConcurrency: 3},
	})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng
}

func newState(id string) *workflow.WorkflowState {
	return workflow.NewWorkflowState(id, "user-1", nil)
}
