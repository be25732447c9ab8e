package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/api"
	"github.com/LENAX/content-pipeline/pkg/cli/output"
	"github.com/LENAX/content-pipeline/pkg/collaborator/compliance"
	"github.com/LENAX/content-pipeline/pkg/collaborator/publisher"
	"github.com/LENAX/content-pipeline/pkg/core/engine"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage/memory"
)

type oneTopic struct{}

func (oneTopic) Discover(context.Context, int) ([]workflow.TopicCandidate, error) {
	return []workflow.TopicCandidate{{Title: "基金定投", Source: "weibo", Score: 70}}, nil
}

type fixedDraft struct{}

func (fixedDraft) Generate(context.Context, types.GenerateRequest) (*types.Draft, error) {
	return &types.Draft{Titles: []string{"基金定投入门"}, Body: "每月固定投入，平摊成本。理财有风险，投资需谨慎。"}, nil
}

func newTestServer(t *testing.T, jobs ...engine.BatchJob) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng, err := engine.NewEngine(engine.Dependencies{
		Collaborators: types.Collaborators{
			Topics:            oneTopic{},
			Generator:         fixedDraft{},
			TopicCompliance:   compliance.NewTopicChecker(nil),
			ContentCompliance: compliance.NewContentChecker(compliance.Rules{}),
			Publisher:         publisher.NewDryRunPublisher(),
		},
		Snapshots: memory.NewSnapshotStore(),
		Records:   memory.NewExecutionLog(),
		Jobs:      jobs,
	})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	srv := httptest.NewServer(api.SetupRouter(eng, api.RouterOptions{Version: "test"}))
	t.Cleanup(func() {
		srv.Close()
		_ = eng.Stop(context.Background())
	})
	return srv.URL
}

// run 执行命令并捕获输出
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// 全局flag在多次Execute之间保留取值
	outputJSON = false
	var buf bytes.Buffer
	prev := output.Stdout
	output.Stdout = &buf
	defer func() { output.Stdout = prev }()

	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Content Pipeline CLI")
	assert.Contains(t, out, Version)
}

func TestWorkflowCommands(t *testing.T) {
	url := newTestServer(t)

	out, err := run(t, "--server", url, "--json", "workflow", "start", "--user", "alice", "--wait")
	require.NoError(t, err)
	var outcome workflow.InstanceOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome), out)
	assert.Equal(t, workflow.OutcomeSuspended, outcome.Status)

	out, err = run(t, "--server", url, "workflow", "list", "--status", "suspended")
	require.NoError(t, err)
	assert.Contains(t, out, outcome.WorkflowID)
	assert.Contains(t, out, "WORKFLOW_ID")

	out, err = run(t, "--server", url, "workflow", "status", outcome.WorkflowID)
	require.NoError(t, err)
	assert.Contains(t, out, "基金定投入门")

	out, err = run(t, "--server", url, "workflow", "review", outcome.WorkflowID, "--decision", "rejected", "--notes", "不合适")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")

	out, err = run(t, "--server", url, "logs", "--workflow", outcome.WorkflowID)
	require.NoError(t, err)
	assert.Contains(t, out, "research")

	out, err = run(t, "--server", url, "workflow", "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
}

func TestSchedulerCommands(t *testing.T) {
	url := newTestServer(t, engine.BatchJob{Name: "morning", CronExpr: "0 0 8 * * *", UserID: "ops", Count: 1})

	out, err := run(t, "--server", url, "scheduler", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "running")

	out, err = run(t, "--server", url, "scheduler", "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "NEXT_RUN")
	assert.Contains(t, out, "morning")
	assert.Contains(t, out, "08:00:00")

	out, err = run(t, "--server", url, "scheduler", "run", "missing")
	assert.Error(t, err)
	assert.Contains(t, out, "404")

	out, err = run(t, "--server", url, "--json", "scheduler", "run", "morning")
	require.NoError(t, err)
	var exec engine.JobExecution
	require.NoError(t, json.Unmarshal([]byte(out), &exec), out)
	assert.Equal(t, engine.TriggerManual, exec.Trigger)

	require.Eventually(t, func() bool {
		out, err := run(t, "--server", url, "--json", "scheduler", "history")
		if err != nil {
			return false
		}
		var runs []engine.JobExecution
		return json.Unmarshal([]byte(out), &runs) == nil && len(runs) == 1 && runs[0].Status == engine.JobSuccess
	}, 3*time.Second, 20*time.Millisecond)

	out, err = run(t, "--server", url, "scheduler", "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "manual")
}

func TestStatsCommand(t *testing.T) {
	url := newTestServer(t)

	_, err := run(t, "--server", url, "workflow", "start", "--user", "alice", "--wait")
	require.NoError(t, err)

	out, err := run(t, "--server", url, "--json", "stats")
	require.NoError(t, err)
	var ov engine.Overview
	require.NoError(t, json.Unmarshal([]byte(out), &ov), out)
	assert.Equal(t, 1, ov.Total)
	assert.Equal(t, 1, ov.PendingReview)
	assert.Equal(t, map[string]int{"suspended": 1}, ov.ByStatus)

	out, err = run(t, "--server", url, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "实例总数: 1")
	assert.Contains(t, out, "suspended")
}

func TestWorkflowReviewInvalidDecision(t *testing.T) {
	_, err := run(t, "workflow", "review", "wf-1", "--decision", "maybe")
	assert.ErrorIs(t, err, workflow.ErrInvalidDecision)
}

func TestWorkflowStatusNotFound(t *testing.T) {
	url := newTestServer(t)
	out, err := run(t, "--server", url, "workflow", "status", "missing")
	assert.Error(t, err)
	assert.Contains(t, out, "404")
}

func TestResolveConfigPath(t *testing.T) {
	p, err := resolveConfigPath("/tmp/custom.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.yaml", p)

	t.Chdir(t.TempDir())
	_, err = resolveConfigPath("")
	assert.Error(t, err)
}
