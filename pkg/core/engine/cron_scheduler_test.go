package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

type batchCall struct {
	userID string
	count  int
}

type fakeManager struct {
	mu    sync.Mutex
	calls []batchCall
	gate  chan struct{} // 非nil时 StartBatch 等待关闭
}

func (m *fakeManager) StartWorkflow(context.Context, string, []string) (string, error) {
	return "wf-1", nil
}

func (m *fakeManager) RunWorkflow(context.Context, string, []string) (workflow.InstanceOutcome, error) {
	return workflow.InstanceOutcome{}, nil
}

func (m *fakeManager) StartBatch(ctx context.Context, userID string, count int) (workflow.BatchResult, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return workflow.BatchResult{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, batchCall{userID: userID, count: count})
	return workflow.BatchResult{Succeeded: count}, nil
}

func (m *fakeManager) Resume(context.Context, string, workflow.ReviewDecision, string, int) (workflow.InstanceOutcome, error) {
	return workflow.InstanceOutcome{}, nil
}

func (m *fakeManager) Status(context.Context, string) (*workflow.StatusView, error) {
	return nil, workflow.ErrNotFound
}

func TestCronScheduler_RegisterValidation(t *testing.T) {
	cs := NewCronScheduler(&fakeManager{})

	assert.Error(t, cs.RegisterJob(BatchJob{CronExpr: "0 0 8 * * *", Count: 1}))
	assert.Error(t, cs.RegisterJob(BatchJob{Name: "zero", CronExpr: "0 0 8 * * *"}))
	assert.Error(t, cs.RegisterJob(BatchJob{Name: "bad", CronExpr: "not a cron", Count: 1}))

	require.NoError(t, cs.RegisterJob(BatchJob{Name: "morning", CronExpr: "0 0 8 * * *", Count: 3}))
	assert.Error(t, cs.RegisterJob(BatchJob{Name: "morning", CronExpr: "0 0 9 * * *", Count: 1}))

	require.NoError(t, cs.RegisterJob(BatchJob{Name: "evening", CronExpr: "@every 1h", Count: 1}))
	assert.Equal(t, []string{"evening", "morning"}, cs.GetRegisteredJobs())
}

func TestCronScheduler_UnregisterAndNextRun(t *testing.T) {
	cs := NewCronScheduler(&fakeManager{})
	require.NoError(t, cs.RegisterJob(BatchJob{Name: "morning", CronExpr: "0 0 8 * * *", Count: 3}))

	cs.Start()
	defer cs.Stop()

	next, ok := cs.NextRun("morning")
	require.True(t, ok)
	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, 0, next.Minute())

	require.NoError(t, cs.UnregisterJob("morning"))
	assert.Error(t, cs.UnregisterJob("morning"))
	_, ok = cs.NextRun("morning")
	assert.False(t, ok)
	assert.Empty(t, cs.GetRegisteredJobs())
}

func TestCronScheduler_TriggerStartsBatch(t *testing.T) {
	m := &fakeManager{}
	cs := NewCronScheduler(m)

	cs.triggerJob(BatchJob{Name: "manual", UserID: "ops", Count: 4})

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.calls, 1)
	assert.Equal(t, batchCall{userID: "ops", count: 4}, m.calls[0])
}

func TestCronScheduler_DefaultUser(t *testing.T) {
	m := &fakeManager{}
	cs := NewCronScheduler(m)
	require.NoError(t, cs.RegisterJob(BatchJob{Name: "j", CronExpr: "@every 1h", Count: 2}))

	cs.mu.RLock()
	job := cs.jobs["j"]
	cs.mu.RUnlock()
	assert.Equal(t, "default", job.UserID)
}

func (m *fakeManager) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestCronScheduler_ListAndRunJob(t *testing.T) {
	m := &fakeManager{}
	cs := NewCronScheduler(m)
	require.NoError(t, cs.RegisterJob(BatchJob{Name: "morning", CronExpr: "0 0 8 * * *", UserID: "ops", Count: 4}))
	require.NoError(t, cs.RegisterJob(BatchJob{Name: "evening", CronExpr: "0 0 20 * * *", Count: 1}))

	jobs := cs.ListJobs()
	require.Len(t, jobs, 2)
	assert.Nil(t, jobs[0].NextRun)

	cs.Start()
	defer cs.Stop()
	assert.True(t, cs.Status().Running)
	assert.Equal(t, 2, cs.Status().Jobs)

	jobs = cs.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "evening", jobs[0].Name)
	assert.Equal(t, "morning", jobs[1].Name)
	require.NotNil(t, jobs[1].NextRun)
	assert.Equal(t, 8, jobs[1].NextRun.Hour())
	assert.Nil(t, jobs[1].LastRun)

	_, err := cs.RunJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	exec, err := cs.RunJob("morning")
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, exec.Trigger)
	assert.NotEmpty(t, exec.ID)

	require.Eventually(t, func() bool {
		runs := cs.Executions(10)
		return len(runs) == 1 && runs[0].Status == JobSuccess
	}, 2*time.Second, 10*time.Millisecond)

	run := cs.Executions(10)[0]
	assert.Equal(t, exec.ID, run.ID)
	assert.Equal(t, 4, run.Succeeded)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, 1, m.callCount())
	assert.NotNil(t, cs.ListJobs()[1].LastRun)
}

func TestCronScheduler_RunJobRejectsOverlap(t *testing.T) {
	m := &fakeManager{gate: make(chan struct{})}
	cs := NewCronScheduler(m)
	require.NoError(t, cs.RegisterJob(BatchJob{Name: "j", CronExpr: "@every 1h", Count: 2}))
	cs.Start()

	_, err := cs.RunJob("j")
	require.NoError(t, err)
	_, err = cs.RunJob("j")
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.Equal(t, 1, cs.Status().ActiveRuns)
	assert.True(t, cs.ListJobs()[0].Running)

	// cron 触发也会跳过
	cs.triggerJob(BatchJob{Name: "j", UserID: "default", Count: 2})
	assert.Len(t, cs.Executions(0), 1)

	close(m.gate)
	require.Eventually(t, func() bool { return cs.Status().ActiveRuns == 0 }, 2*time.Second, 10*time.Millisecond)
	cs.Stop()
	assert.False(t, cs.Status().Running)
	assert.Equal(t, JobSuccess, cs.Executions(1)[0].Status)
}

func TestCronScheduler_FailedRunRecorded(t *testing.T) {
	m := &fakeManager{gate: make(chan struct{})}
	cs := NewCronScheduler(m)
	require.NoError(t, cs.RegisterJob(BatchJob{Name: "j", CronExpr: "@every 1h", Count: 2}))

	_, err := cs.RunJob("j")
	require.NoError(t, err)
	cs.Stop()

	runs := cs.Executions(0)
	require.Len(t, runs, 1)
	assert.Equal(t, JobFailure, runs[0].Status)
	assert.Contains(t, runs[0].Error, "context canceled")

	_, err = cs.RunJob("j")
	assert.Error(t, err)
}
