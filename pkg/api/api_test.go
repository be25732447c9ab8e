package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/api"
	"github.com/LENAX/content-pipeline/pkg/api/dto"
	"github.com/LENAX/content-pipeline/pkg/api/middleware"
	"github.com/LENAX/content-pipeline/pkg/collaborator/compliance"
	"github.com/LENAX/content-pipeline/pkg/collaborator/publisher"
	"github.com/LENAX/content-pipeline/pkg/core/engine"
	"github.com/LENAX/content-pipeline/pkg/core/realtime"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedTopics struct{}

func (fixedTopics) Discover(_ context.Context, count int) ([]workflow.TopicCandidate, error) {
	out := make([]workflow.TopicCandidate, 0, 5)
	for i := 0; i < 5; i++ {
		out = append(out, workflow.TopicCandidate{Title: fmt.Sprintf("存款利率调整%d", i), Source: "weibo", Score: float64(90 - i)})
	}
	return out, nil
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, req types.GenerateRequest) (*types.Draft, error) {
	return &types.Draft{
		Titles: []string{req.Topic.Title + "，姐妹们看过来"},
		Body:   strings.Repeat("存款搬家之前先算清楚利息。", 5) + "理财有风险，投资需谨慎。",
		Tags:   []string{"理财"},
	}, nil
}

func newTestEngine(t *testing.T, jobs ...engine.BatchJob) *engine.Engine {
	t.Helper()
	eng, err := engine.NewEngine(engine.Dependencies{
		Collaborators: types.Collaborators{
			Topics:            fixedTopics{},
			Generator:         echoGenerator{},
			TopicCompliance:   compliance.NewTopicChecker(nil),
			ContentCompliance: compliance.NewContentChecker(compliance.Rules{}),
			Publisher:         publisher.NewDryRunPublisher(),
		},
		Snapshots:   memory.NewSnapshotStore(),
		Records:     memory.NewExecutionLog(),
		Bus:         realtime.NewEventBus(),
		Coordinator: engine.CoordinatorOptions{MaxBatchSize: 3},
		Jobs:        jobs,
	})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng
}

func newRouter(t *testing.T, jobs ...engine.BatchJob) (*gin.Engine, *engine.Engine) {
	eng := newTestEngine(t, jobs...)
	return api.SetupRouter(eng, api.RouterOptions{Version: "1.0.0-test", StreamBufferSize: 16}), eng
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) dto.APIResponse[T] {
	t.Helper()
	var resp dto.APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// TestHealthHandler 测试健康检查
func TestHealthHandler(t *testing.T) {
	router, _ := newRouter(t)

	t.Run("健康检查返回版本和运行时长", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.HealthResponse](t, w)
		assert.Equal(t, 0, resp.Code)
		assert.Equal(t, "healthy", resp.Data.Status)
		assert.Equal(t, "1.0.0-test", resp.Data.Version)
		assert.NotEmpty(t, resp.Data.Uptime)
	})

	t.Run("存储可用时就绪", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

// TestWorkflowAPI_ReviewFlow 同步执行、查询、审核通过的完整流程
func TestWorkflowAPI_ReviewFlow(t *testing.T) {
	router, _ := newRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/workflows", dto.StartWorkflowRequest{UserID: "user-1", Wait: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	started := decode[workflow.InstanceOutcome](t, w)
	assert.Equal(t, workflow.OutcomeSuspended, started.Data.Status)
	id := started.Data.WorkflowID
	require.NotEmpty(t, id)

	w = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[workflow.StatusView](t, w)
	assert.Equal(t, "suspended", view.Data.Status)
	assert.Equal(t, workflow.StepReview, view.Data.Step)

	w = doJSON(t, router, http.MethodGet, "/api/v1/workflows?status=suspended", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.ListResponse[workflow.StatusView]](t, w)
	assert.Equal(t, 1, list.Data.Total)

	w = doJSON(t, router, http.MethodPost, "/api/v1/workflows/"+id+"/review", dto.ReviewRequest{
		Decision: "approved",
		Version:  view.Data.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	final := decode[workflow.InstanceOutcome](t, w)
	assert.Equal(t, workflow.OutcomePublished, final.Data.Status)
	require.NotNil(t, final.Data.State.PublishResult)
	assert.Equal(t, "dryrun-"+id, final.Data.State.PublishResult.ID)

	// 重复提交
	w = doJSON(t, router, http.MethodPost, "/api/v1/workflows/"+id+"/review", dto.ReviewRequest{Decision: "approved"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+id+"/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[dto.ListResponse[workflow.ExecutionRecord]](t, w)
	assert.GreaterOrEqual(t, logs.Data.Total, 8)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs?workflow_id="+id+"&step=publish", nil)
	require.Equal(t, http.StatusOK, w.Code)
	filtered := decode[dto.ListResponse[workflow.ExecutionRecord]](t, w)
	require.Equal(t, 1, filtered.Data.Total)
	assert.Equal(t, workflow.StepPublish, filtered.Data.Items[0].Step)
}

// TestWorkflowAPI_Errors 错误码映射
func TestWorkflowAPI_Errors(t *testing.T) {
	router, _ := newRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"缺少user_id", http.MethodPost, "/api/v1/workflows", map[string]interface{}{}, http.StatusBadRequest},
		{"实例不存在", http.MethodGet, "/api/v1/workflows/missing", nil, http.StatusNotFound},
		{"日志实例不存在", http.MethodGet, "/api/v1/workflows/missing/logs", nil, http.StatusNotFound},
		{"审核实例不存在", http.MethodPost, "/api/v1/workflows/missing/review", dto.ReviewRequest{Decision: "approved"}, http.StatusNotFound},
		{"非法审核结论", http.MethodPost, "/api/v1/workflows/missing/review", map[string]string{"decision": "maybe"}, http.StatusBadRequest},
		{"批量数量为0", http.MethodPost, "/api/v1/workflows/batch", dto.BatchRequest{UserID: "u"}, http.StatusBadRequest},
		{"批量数量超限", http.MethodPost, "/api/v1/workflows/batch", dto.BatchRequest{UserID: "u", Count: 5}, http.StatusBadRequest},
		{"非法状态过滤", http.MethodGet, "/api/v1/workflows?status=unknown", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			resp := decode[any](t, w)
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}

// TestWorkflowAPI_BatchAndAsync 批量执行和异步启动
func TestWorkflowAPI_BatchAndAsync(t *testing.T) {
	router, eng := newRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/workflows/batch", dto.BatchRequest{UserID: "user-1", Count: 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	batch := decode[workflow.BatchResult](t, w)
	assert.Equal(t, 3, batch.Data.Succeeded)
	assert.Len(t, batch.Data.Outcomes, 3)

	w = doJSON(t, router, http.MethodPost, "/api/v1/workflows", dto.StartWorkflowRequest{UserID: "user-2"})
	require.Equal(t, http.StatusAccepted, w.Code)
	started := decode[dto.StartWorkflowResponse](t, w)
	require.NotEmpty(t, started.Data.WorkflowID)

	assert.Eventually(t, func() bool {
		view, err := eng.Status(context.Background(), started.Data.WorkflowID)
		return err == nil && view.Status == "suspended"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestWorkflowAPI_Graph 步骤图
func TestWorkflowAPI_Graph(t *testing.T) {
	router, _ := newRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/workflows/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.GraphResponse](t, w)
	assert.Equal(t, workflow.Steps(), resp.Data.Steps)
	assert.NotEmpty(t, resp.Data.Edges)
	assert.True(t, strings.HasPrefix(resp.Data.Mermaid, "graph TD"))
}

// TestEventStream WebSocket推送挂起事件
func TestEventStream(t *testing.T) {
	router, eng := newRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	out, err := eng.RunWorkflow(context.Background(), "user-1", nil)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev realtime.WorkflowEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.WorkflowID == out.WorkflowID && ev.Type == realtime.EventWorkflowSuspended {
			assert.Equal(t, workflow.StepReview, ev.Step)
			return
		}
	}
}

// TestMiddleware 测试中间件
func TestMiddleware(t *testing.T) {
	t.Run("Recovery中间件捕获panic", func(t *testing.T) {
		router := gin.New()
		router.Use(middleware.Recovery())
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		w := doJSON(t, router, http.MethodGet, "/panic", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decode[any](t, w)
		assert.Equal(t, 500, resp.Code)
	})

	t.Run("CORS预检请求", func(t *testing.T) {
		router := gin.New()
		router.Use(middleware.CORS())
		router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := doJSON(t, router, http.MethodOptions, "/x", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServerConfig(t *testing.T) {
	s := api.NewAPIServer(nil, api.ServerConfig{Host: "127.0.0.1", Port: 9090}, "dev")
	assert.Equal(t, "127.0.0.1:9090", s.Addr())
	assert.NoError(t, s.Shutdown(context.Background()))
}

// TestSchedulerAPI 定时任务列表、手动触发和执行记录
func TestSchedulerAPI(t *testing.T) {
	router, _ := newRouter(t, engine.BatchJob{Name: "morning", CronExpr: "0 0 8 * * *", UserID: "ops", Count: 2})

	w := doJSON(t, router, http.MethodGet, "/api/v1/scheduler/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[engine.SchedulerStatus](t, w)
	assert.True(t, status.Data.Running)
	assert.Equal(t, 1, status.Data.Jobs)

	w = doJSON(t, router, http.MethodGet, "/api/v1/scheduler/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	jobs := decode[dto.ListResponse[engine.JobInfo]](t, w)
	require.Len(t, jobs.Data.Items, 1)
	job := jobs.Data.Items[0]
	assert.Equal(t, "morning", job.Name)
	assert.Equal(t, "0 0 8 * * *", job.CronExpr)
	require.NotNil(t, job.NextRun)
	assert.Equal(t, 8, job.NextRun.Local().Hour())

	w = doJSON(t, router, http.MethodPost, "/api/v1/scheduler/jobs/missing/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/scheduler/jobs/morning/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	run := decode[engine.JobExecution](t, w)
	assert.Equal(t, "morning", run.Data.Job)
	assert.Equal(t, engine.TriggerManual, run.Data.Trigger)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/executions?limit=5", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var runs dto.APIResponse[dto.ListResponse[engine.JobExecution]]
		if json.Unmarshal(w.Body.Bytes(), &runs) != nil {
			return false
		}
		return len(runs.Data.Items) == 1 && runs.Data.Items[0].Status == engine.JobSuccess
	}, 3*time.Second, 20*time.Millisecond)

	w = doJSON(t, router, http.MethodGet, "/api/v1/scheduler/executions?limit=0", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/v1/scheduler/executions?limit=1000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestStatsAPI 按状态与结局统计实例
func TestStatsAPI(t *testing.T) {
	router, eng := newRouter(t)
	ctx := context.Background()

	first, err := eng.RunWorkflow(ctx, "user-1", nil)
	require.NoError(t, err)
	_, err = eng.RunWorkflow(ctx, "user-1", nil)
	require.NoError(t, err)
	done, err := eng.Resume(ctx, first.WorkflowID, workflow.DecisionApproved, "", 0)
	require.NoError(t, err)
	require.Equal(t, workflow.OutcomePublished, done.Status)

	w := doJSON(t, router, http.MethodGet, "/api/v1/stats/overview", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ov := decode[engine.Overview](t, w).Data
	assert.Equal(t, 2, ov.Total)
	assert.Equal(t, 1, ov.ByStatus["suspended"])
	assert.Equal(t, 1, ov.ByStatus["terminated"])
	assert.Equal(t, map[string]int{"published": 1}, ov.ByOutcome)
	assert.Equal(t, 1, ov.PendingReview)
	assert.Equal(t, 2, ov.TodayCreated)
	assert.Equal(t, 1, ov.TodayPublished)
	assert.Equal(t, 0, ov.InFlight)
}
