package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

func newTestExecutor(t *testing.T, f *fixture, opts Options) *StepExecutor {
	t.Helper()
	if opts.PublishRetry.InitialDelay == 0 {
		opts.PublishRetry = RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	}
	e, err := NewStepExecutor(f.collaborators(), f.sink, opts)
	require.NoError(t, err)
	return e
}

func stateWithTopic() *workflow.WorkflowState {
	s := workflow.NewWorkflowState("wf-test", "u1", nil)
	s.SelectedTopic = &workflow.TopicCandidate{Title: "存款利率调整", Source: "weibo", Score: 95}
	return s
}

func TestNewStepExecutor_RequiresCollaborators(t *testing.T) {
	_, err := NewStepExecutor(types.Collaborators{}, nil, Options{})
	assert.Error(t, err)
}

func TestExecute_PreconditionFailsFast(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{})

	s := workflow.NewWorkflowState("wf-test", "u1", nil)
	got, rec, err := e.Execute(context.Background(), workflow.StepCreate, s)

	assert.ErrorIs(t, err, workflow.ErrPrecondition)
	assert.Nil(t, rec)
	assert.Same(t, s, got)
	assert.Equal(t, int32(0), f.generator.calls)
	assert.Equal(t, 0, f.sink.count())
}

func TestExecute_FailedStateIsNotRedriven(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{})

	s := stateWithTopic()
	s.Error = "previous failure"
	_, _, err := e.Execute(context.Background(), workflow.StepCreate, s)
	assert.ErrorIs(t, err, workflow.ErrPrecondition)
}

func TestExecute_CreateCapEnforced(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{})

	s := stateWithTopic()
	s.RevisionRound = workflow.MaxRevisionRounds
	_, _, err := e.Execute(context.Background(), workflow.StepCreate, s)
	assert.ErrorIs(t, err, workflow.ErrPrecondition)
	assert.Equal(t, int32(0), f.generator.calls)
}

func TestExecute_CreateSuccess(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{})

	s := stateWithTopic()
	got, rec, err := e.Execute(context.Background(), workflow.StepCreate, s)
	require.NoError(t, err)

	assert.Equal(t, 1, got.RevisionRound)
	assert.Equal(t, 0, s.RevisionRound, "input state must not be mutated")
	require.NotNil(t, got.Content)
	assert.Equal(t, "姐妹们！理财小技巧", got.Content.PrimaryTitle())
	assert.Len(t, got.Content.Images, 2, "only the first two prompts are rendered")
	assert.Equal(t, workflow.StepCreate, got.CurrentStep)

	assert.Equal(t, workflow.RecordSuccess, rec.Status)
	assert.Equal(t, "generate_content", rec.Action)
	assert.Equal(t, 1, f.sink.count())
}

func TestExecute_CreateValidation(t *testing.T) {
	cases := []struct {
		name  string
		draft *types.Draft
	}{
		{"no titles", &types.Draft{Titles: nil, Body: "这是一段足够长的正文内容"}},
		{"blank titles", &types.Draft{Titles: []string{" ", ""}, Body: "这是一段足够长的正文内容"}},
		{"empty body", &types.Draft{Titles: []string{"t"}, Body: "   "}},
		{"short body", &types.Draft{Titles: []string{"t"}, Body: "太短了"}},
		{"nine chars", &types.Draft{Titles: []string{"t"}, Body: "123456789"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.generator.draft = tc.draft
			e := newTestExecutor(t, f, Options{})

			got, rec, err := e.Execute(context.Background(), workflow.StepCreate, stateWithTopic())
			require.Error(t, err)

			var se *workflow.StepError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, workflow.KindValidation, se.Kind)
			assert.NotEmpty(t, got.Error)
			assert.Nil(t, got.Content, "no placeholder content is substituted")
			assert.Equal(t, 0, got.RevisionRound)
			assert.Equal(t, workflow.RecordFailed, rec.Status)
			assert.Equal(t, 1, f.sink.count())
		})
	}
}

func TestExecute_CreateTenCharsAccepted(t *testing.T) {
	f := newFixture()
	f.generator.draft = &types.Draft{Titles: []string{"t"}, Body: "一二三四五六七八九十"}
	e := newTestExecutor(t, f, Options{})

	got, _, err := e.Execute(context.Background(), workflow.StepCreate, stateWithTopic())
	require.NoError(t, err)
	assert.Equal(t, 1, got.RevisionRound)
}

func TestExecute_ImageFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.images.err = errors.New("image api down")
	e := newTestExecutor(t, f, Options{})

	got, rec, err := e.Execute(context.Background(), workflow.StepCreate, stateWithTopic())
	require.NoError(t, err)
	assert.Empty(t, got.Content.Images)
	assert.Equal(t, "image api down", rec.Output["image_error"])
}

func TestExecute_CreateTimeout(t *testing.T) {
	f := newFixture()
	f.generator.block = true
	e := newTestExecutor(t, f, Options{
		StepTimeouts: map[workflow.Step]time.Duration{workflow.StepCreate: 50 * time.Millisecond},
	})

	start := time.Now()
	got, rec, err := e.Execute(context.Background(), workflow.StepCreate, stateWithTopic())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, workflow.KindTimeout, workflow.KindOf(err))
	assert.NotEmpty(t, got.Error)
	assert.Equal(t, workflow.RecordFailed, rec.Status)
}

func TestExecute_DefaultCreateTimeout(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{DefaultTimeout: 10 * time.Second})

	assert.Equal(t, 90*time.Second, e.Timeout(workflow.StepCreate))
	assert.Equal(t, 10*time.Second, e.Timeout(workflow.StepResearch))
}

func TestExecute_ResearchEmptyIsFailure(t *testing.T) {
	f := newFixture()
	f.topics.candidates = nil
	e := newTestExecutor(t, f, Options{})

	got, rec, err := e.Execute(context.Background(), workflow.StepResearch, workflow.NewWorkflowState("wf", "u", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSourceUnavailable)
	assert.Equal(t, workflow.KindCollaboratorUnavailable, workflow.KindOf(err))
	assert.NotEmpty(t, got.Error)
	assert.Equal(t, workflow.RecordFailed, rec.Status)
}

func TestExecute_ResearchAvoidsRecentTopics(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{})

	recent := []string{"存款利率调整", "年轻人理财新方式", "信用卡积分攻略", "房贷提前还款"}
	for i := 0; i < 20; i++ {
		got, _, err := e.Execute(context.Background(), workflow.StepResearch, workflow.NewWorkflowState("wf", "u", recent))
		require.NoError(t, err)
		assert.NotContains(t, recent, got.SelectedTopic.Title)
		assert.Len(t, got.HotTopics, 6)
	}
}

func TestExecute_ResearchTimeoutReleasesTopic(t *testing.T) {
	f := newFixture()
	f.topics.delay = 80 * time.Millisecond
	e := newTestExecutor(t, f, Options{DefaultTimeout: 20 * time.Millisecond})

	ledger := NewTopicLedger(nil)
	ctx := WithTopicLedger(context.Background(), ledger)
	_, rec, err := e.Execute(ctx, workflow.StepResearch, workflow.NewWorkflowState("wf", "u", nil))
	require.Error(t, err)
	assert.Equal(t, workflow.RecordFailed, rec.Status)

	// 上游返回后挑选的选题会被撤销
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, ledger.Used())
}

func TestExecute_ResearchKeepsTopicOnSuccess(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{})

	ledger := NewTopicLedger(nil)
	ctx := WithTopicLedger(context.Background(), ledger)
	got, _, err := e.Execute(ctx, workflow.StepResearch, workflow.NewWorkflowState("wf", "u", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{got.SelectedTopic.Title}, ledger.Used())
}

func TestExecute_ContentComplianceSeesTitlesAndBody(t *testing.T) {
	f := newFixture()
	rec := &recordingChecker{verdict: passVerdict()}
	collab := f.collaborators()
	collab.ContentCompliance = rec
	e, err := NewStepExecutor(collab, f.sink, Options{})
	require.NoError(t, err)

	s := stateWithTopic()
	s.Content = &workflow.Content{Titles: []string{"标题一", "标题二"}, Body: "正文内容"}
	_, _, err = e.Execute(context.Background(), workflow.StepContentCompliance, s)
	require.NoError(t, err)
	assert.Equal(t, types.ComplianceSubject{Titles: []string{"标题一", "标题二"}, Body: "正文内容"}, rec.last)
}

func TestExecute_ComplianceErrorIsBlock(t *testing.T) {
	f := newFixture()
	f.topicChk.verdict = nil
	f.topicChk.err = errors.New("checker crashed")
	e := newTestExecutor(t, f, Options{})

	got, rec, err := e.Execute(context.Background(), workflow.StepTopicCompliance, stateWithTopic())
	require.NoError(t, err)
	assert.True(t, got.ComplianceResult.Blocked())
	assert.Equal(t, workflow.RecordBlocked, rec.Status)
	assert.Equal(t, workflow.Terminate(workflow.OutcomeBlocked), workflow.Route(workflow.StepTopicCompliance, got))
}

func TestExecute_ReviewClearsDecisionAndNotifies(t *testing.T) {
	f := newFixture()
	f.review.err = errors.New("webhook down")
	e := newTestExecutor(t, f, Options{})

	s := stateWithTopic()
	s.Content = &workflow.Content{Titles: []string{"t"}, Body: "这是一段足够长的正文内容"}
	s.ReviewDecision = workflow.DecisionRevision
	s.RevisionRound = 1

	got, rec, err := e.Execute(context.Background(), workflow.StepReview, s)
	require.NoError(t, err)
	assert.Equal(t, workflow.DecisionPending, got.ReviewDecision)
	assert.Equal(t, workflow.RecordPending, rec.Status)
	assert.Len(t, f.review.notices, 1)
	assert.Equal(t, "webhook down", rec.Output["notify_error"])
}

func approvedState() *workflow.WorkflowState {
	s := stateWithTopic()
	s.Content = &workflow.Content{Titles: []string{"t"}, Body: "这是一段足够长的正文内容", Tags: []string{"理财"}}
	s.ReviewDecision = workflow.DecisionApproved
	s.RevisionRound = 1
	return s
}

func TestExecute_PublishRetriesThenSucceeds(t *testing.T) {
	f := newFixture()
	f.publisher.failures = 2
	e := newTestExecutor(t, f, Options{})

	got, rec, err := e.Execute(context.Background(), workflow.StepPublish, approvedState())
	require.NoError(t, err)
	assert.True(t, got.Published)
	assert.Equal(t, 3, got.PublishResult.Attempts)
	assert.Equal(t, "note-123", got.PublishResult.ID)
	assert.Equal(t, int32(3), f.publisher.calls)
	assert.Equal(t, 1, f.sink.count(), "retries stay inside one step invocation")
	assert.Equal(t, workflow.RecordSuccess, rec.Status)
}

func TestExecute_PublishGivesUpAfterThreeAttempts(t *testing.T) {
	f := newFixture()
	f.publisher.failures = 10
	e := newTestExecutor(t, f, Options{})

	got, rec, err := e.Execute(context.Background(), workflow.StepPublish, approvedState())
	require.Error(t, err)
	assert.False(t, got.Published)
	assert.NotEmpty(t, got.Error)
	assert.Equal(t, int32(3), f.publisher.calls)
	assert.Equal(t, 3, rec.Output["attempts"])
}

func TestExecute_PublishRequiresApproval(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{})

	s := approvedState()
	s.ReviewDecision = workflow.DecisionRevision
	_, _, err := e.Execute(context.Background(), workflow.StepPublish, s)
	assert.ErrorIs(t, err, workflow.ErrPrecondition)
	assert.Equal(t, int32(0), f.publisher.calls)
}

func TestExecute_SlowSinkIsBounded(t *testing.T) {
	f := newFixture()
	f.sink.block = true
	e := newTestExecutor(t, f, Options{SinkTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, rec, err := e.Execute(context.Background(), workflow.StepTopicCompliance, stateWithTopic())
	require.NoError(t, err)
	assert.NotNil(t, rec)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type panicChecker struct{}

func (panicChecker) Check(context.Context, types.ComplianceSubject) (*workflow.ComplianceVerdict, error) {
	panic("checker bug")
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	f := newFixture()
	collab := f.collaborators()
	collab.ContentCompliance = panicChecker{}
	e, err := NewStepExecutor(collab, f.sink, Options{})
	require.NoError(t, err)

	s := stateWithTopic()
	s.Content = &workflow.Content{Titles: []string{"t"}, Body: "这是一段足够长的正文内容"}
	got, rec, err := e.Execute(context.Background(), workflow.StepContentCompliance, s)
	require.Error(t, err)
	assert.NotEmpty(t, got.Error)
	assert.Equal(t, workflow.RecordFailed, rec.Status)
	assert.Equal(t, 1, f.sink.count())
}

func TestExecute_AnalyticsSummary(t *testing.T) {
	f := newFixture()
	e := newTestExecutor(t, f, Options{})

	s := approvedState()
	s.Published = true
	s.PublishResult = &workflow.PublishResult{Success: true, ID: "n1", Attempts: 1}

	got, rec, err := e.Execute(context.Background(), workflow.StepAnalytics, s)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepAnalytics, got.CurrentStep)
	assert.Equal(t, true, rec.Output["published"])
	assert.Equal(t, "n1", rec.Output["publish_id"])
}
